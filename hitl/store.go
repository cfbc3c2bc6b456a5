package hitl

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/askflow/types"
)

// PendingStore 保存按线程 ID 索引的挂起记录, 每个线程至多一条.
type PendingStore interface {
	// Save 保存记录, 替换同一线程的旧记录.
	Save(ctx context.Context, p *PendingClarification) error

	// Take 原子地取出并删除记录; 不存在或已过期时返回 CLARIFICATION_NOT_FOUND.
	Take(ctx context.Context, threadID string) (*PendingClarification, error)

	// Delete 删除记录, 不存在时不报错.
	Delete(ctx context.Context, threadID string) error
}

// InMemoryPendingStore 进程内挂起记录存储.
type InMemoryPendingStore struct {
	mu      sync.Mutex
	pending map[string]*PendingClarification
	now     func() time.Time
}

// NewInMemoryPendingStore 创建进程内存储; now 为空时使用 time.Now.
func NewInMemoryPendingStore(now func() time.Time) *InMemoryPendingStore {
	if now == nil {
		now = time.Now
	}
	return &InMemoryPendingStore{
		pending: make(map[string]*PendingClarification),
		now:     now,
	}
}

// Save 保存记录, 顺带清理已过期的记录.
func (s *InMemoryPendingStore) Save(ctx context.Context, p *PendingClarification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *p
	cp.Options = append([]string(nil), p.Options...)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, existing := range s.pending {
		if existing.Expired(now) {
			delete(s.pending, id)
		}
	}
	s.pending[p.ThreadID] = &cp
	return nil
}

// Take 取出记录
func (s *InMemoryPendingStore) Take(ctx context.Context, threadID string) (*PendingClarification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[threadID]
	if !ok {
		return nil, errNotFound(threadID)
	}
	delete(s.pending, threadID)
	if p.Expired(s.now()) {
		return nil, errNotFound(threadID)
	}
	return p, nil
}

// Delete 删除记录
func (s *InMemoryPendingStore) Delete(ctx context.Context, threadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.pending, threadID)
	s.mu.Unlock()
	return nil
}

// Len 返回记录数 (含尚未清理的过期记录)
func (s *InMemoryPendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

var _ PendingStore = (*InMemoryPendingStore)(nil)

// storeError 把存储后端错误包装为服务不可用.
func storeError(op string, err error) error {
	return types.NewError(types.ErrServiceUnavailable, "pending clarification store "+op+" failed").
		WithCause(err).
		WithRetryable(true)
}
