package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/askflow/rag"
)

// MockChunkStore 包装真实的 rag.ChunkStore, 可对单路检索注入错误并记录过滤条件.
type MockChunkStore struct {
	inner rag.ChunkStore

	mu        sync.Mutex
	denseErr  error
	sparseErr error
	filters   []*rag.MetadataFilter
}

// NewMockChunkStore 创建新的 MockChunkStore
func NewMockChunkStore(inner rag.ChunkStore) *MockChunkStore {
	return &MockChunkStore{inner: inner}
}

// WithDenseError 设置稠密检索错误
func (m *MockChunkStore) WithDenseError(err error) *MockChunkStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denseErr = err
	return m
}

// WithSparseError 设置稀疏检索错误
func (m *MockChunkStore) WithSparseError(err error) *MockChunkStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sparseErr = err
	return m
}

// SearchDense 实现 rag.ChunkStore
func (m *MockChunkStore) SearchDense(ctx context.Context, vector []float64, k int, filter *rag.MetadataFilter) ([]rag.ScoredChunk, error) {
	m.mu.Lock()
	m.filters = append(m.filters, filter)
	err := m.denseErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.SearchDense(ctx, vector, k, filter)
}

// SearchSparse 实现 rag.ChunkStore
func (m *MockChunkStore) SearchSparse(ctx context.Context, query rag.SparseVector, k int, filter *rag.MetadataFilter) ([]rag.ScoredChunk, error) {
	m.mu.Lock()
	m.filters = append(m.filters, filter)
	err := m.sparseErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.SearchSparse(ctx, query, k, filter)
}

// Get 实现 rag.ChunkStore
func (m *MockChunkStore) Get(ctx context.Context, ids []string) ([]rag.Chunk, error) {
	return m.inner.Get(ctx, ids)
}

// Count 实现 rag.ChunkStore
func (m *MockChunkStore) Count(ctx context.Context) (int, error) {
	return m.inner.Count(ctx)
}

// Filters 返回每次检索收到的过滤条件 (nil 表示不过滤)
func (m *MockChunkStore) Filters() []*rag.MetadataFilter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*rag.MetadataFilter(nil), m.filters...)
}

var _ rag.ChunkStore = (*MockChunkStore)(nil)
