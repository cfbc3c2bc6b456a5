// =============================================================================
// 🧠 MockThreadStore - 对话记忆存储模拟实现
// =============================================================================
// 包装真实的 memory.Store, 支持按操作注入错误和统计调用次数
//
// 使用方法:
//
//	store := mocks.NewMockThreadStore(memory.NewInMemoryStore(memory.DefaultConfig(), nil))
//	store.WithAcquireError(types.NewError(types.ErrThreadCorrupt, "corrupt"))
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/askflow/memory"
)

// MockThreadStore 是对话记忆存储的模拟实现
type MockThreadStore struct {
	inner memory.Store

	mu sync.RWMutex

	// 错误注入
	createErr  error
	acquireErr error
	getErr     error
	clearErr   error

	// 调用记录
	createCalls  int
	acquireCalls int
	getCalls     int
	clearCalls   int
}

// NewMockThreadStore 创建新的 MockThreadStore
func NewMockThreadStore(inner memory.Store) *MockThreadStore {
	return &MockThreadStore{inner: inner}
}

// WithCreateError 设置 Create 错误
func (m *MockThreadStore) WithCreateError(err error) *MockThreadStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
	return m
}

// WithAcquireError 设置 Acquire 错误
func (m *MockThreadStore) WithAcquireError(err error) *MockThreadStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquireErr = err
	return m
}

// WithGetError 设置 Get 错误
func (m *MockThreadStore) WithGetError(err error) *MockThreadStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
	return m
}

// WithClearError 设置 Clear 错误
func (m *MockThreadStore) WithClearError(err error) *MockThreadStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearErr = err
	return m
}

// Create 实现 memory.Store
func (m *MockThreadStore) Create(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.createCalls++
	err := m.createErr
	m.mu.Unlock()
	if err != nil {
		return "", err
	}
	return m.inner.Create(ctx)
}

// Acquire 实现 memory.Store
func (m *MockThreadStore) Acquire(ctx context.Context, threadID string) (*memory.Session, error) {
	m.mu.Lock()
	m.acquireCalls++
	err := m.acquireErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.Acquire(ctx, threadID)
}

// Get 实现 memory.Store
func (m *MockThreadStore) Get(ctx context.Context, threadID string) (*memory.Thread, error) {
	m.mu.Lock()
	m.getCalls++
	err := m.getErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.Get(ctx, threadID)
}

// Clear 实现 memory.Store
func (m *MockThreadStore) Clear(ctx context.Context, threadID string) error {
	m.mu.Lock()
	m.clearCalls++
	err := m.clearErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Clear(ctx, threadID)
}

// Close 实现 memory.Store
func (m *MockThreadStore) Close() error {
	return m.inner.Close()
}

// AcquireCalls 返回 Acquire 调用次数
func (m *MockThreadStore) AcquireCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.acquireCalls
}

// CreateCalls 返回 Create 调用次数
func (m *MockThreadStore) CreateCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.createCalls
}

// GetCalls 返回 Get 调用次数
func (m *MockThreadStore) GetCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCalls
}

var _ memory.Store = (*MockThreadStore)(nil)
