package hitl

import (
	"context"
	"time"

	"github.com/BaSui01/askflow/internal/cache"
)

const redisKeyPrefix = "clarification:"

// RedisPendingStore 基于 Redis 的挂起记录存储, 记录在进程重启后仍可恢复.
// 过期由 Redis 键 TTL 负责, Take 使用 GETDEL 保证只被消费一次.
type RedisPendingStore struct {
	cache *cache.Manager
	now   func() time.Time
}

// NewRedisPendingStore 创建 Redis 存储
func NewRedisPendingStore(manager *cache.Manager) *RedisPendingStore {
	return &RedisPendingStore{cache: manager, now: time.Now}
}

// Save 保存记录, TTL 取记录剩余有效期.
func (s *RedisPendingStore) Save(ctx context.Context, p *PendingClarification) error {
	ttl := p.ExpiresAt.Sub(s.now())
	if p.ExpiresAt.IsZero() {
		ttl = 0
	} else if ttl <= 0 {
		return nil
	}
	if err := s.cache.SetJSON(ctx, redisKeyPrefix+p.ThreadID, p, ttl); err != nil {
		return storeError("save", err)
	}
	return nil
}

// Take 取出记录
func (s *RedisPendingStore) Take(ctx context.Context, threadID string) (*PendingClarification, error) {
	var p PendingClarification
	if err := s.cache.TakeJSON(ctx, redisKeyPrefix+threadID, &p); err != nil {
		if cache.IsCacheMiss(err) {
			return nil, errNotFound(threadID)
		}
		return nil, storeError("take", err)
	}
	if p.Expired(s.now()) {
		return nil, errNotFound(threadID)
	}
	return &p, nil
}

// Delete 删除记录
func (s *RedisPendingStore) Delete(ctx context.Context, threadID string) error {
	if err := s.cache.Delete(ctx, redisKeyPrefix+threadID); err != nil {
		return storeError("delete", err)
	}
	return nil
}

var _ PendingStore = (*RedisPendingStore)(nil)
