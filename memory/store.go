package memory

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/askflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store 对话记忆存储. 线程只能通过 Session.Append 追加轮次.
type Store interface {
	// Create 创建一个新的空线程并返回其 ID.
	Create(ctx context.Context) (string, error)

	// Acquire 获取线程的独占会话, 线程不存在时创建.
	// 在锁等待超时前无法获得时返回 THREAD_BUSY.
	Acquire(ctx context.Context, threadID string) (*Session, error)

	// Get 返回线程快照; 不存在时返回 NOT_FOUND.
	Get(ctx context.Context, threadID string) (*Thread, error)

	// Clear 删除线程及其全部轮次.
	Clear(ctx context.Context, threadID string) error

	// Close 停止后台清理.
	Close() error
}

// Config 配置进程内线程存储
type Config struct {
	// TTL 空闲超过该时长的线程被清理, 0 表示不过期
	TTL time.Duration `json:"ttl" yaml:"ttl"`
	// MaxThreads 线程数上限, 0 表示不限
	MaxThreads int `json:"max_threads" yaml:"max_threads"`
	// CleanupInterval 后台清理周期, 0 表示不启动
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
	// LockTimeout 等待线程独占访问的上限
	LockTimeout time.Duration `json:"lock_timeout" yaml:"lock_timeout"`

	// Now 用于测试, 默认 time.Now.
	Now func() time.Time `json:"-" yaml:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		TTL:             24 * time.Hour,
		MaxThreads:      10000,
		CleanupInterval: 5 * time.Minute,
		LockTimeout:     30 * time.Second,
	}
}

type threadEntry struct {
	thread  Thread
	lock    chan struct{} // 容量 1 的信号量, 等待者按到达顺序排队
	removed bool

	// 以下字段由 InMemoryStore.mu 保护
	refs     int
	lastUsed time.Time
}

// InMemoryStore 进程内线程存储. 线程数据由 mu 保护, 线程独占访问由各自的 lock 保证.
type InMemoryStore struct {
	mu      sync.Mutex
	threads map[string]*threadEntry
	config  Config
	now     func() time.Time
	logger  *zap.Logger

	closed   bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewInMemoryStore 创建线程存储, CleanupInterval > 0 时启动后台清理.
func NewInMemoryStore(config Config, logger *zap.Logger) *InMemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	s := &InMemoryStore{
		threads: make(map[string]*threadEntry),
		config:  config,
		now:     now,
		logger:  logger.With(zap.String("component", "thread_store")),
		stopCh:  make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		s.wg.Add(1)
		go s.janitor(config.CleanupInterval)
	}
	return s
}

// Create 创建新线程
func (s *InMemoryStore) Create(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errStoreClosed()
	}
	s.newEntryLocked(id)
	return id, nil
}

// Acquire 获取线程独占会话
func (s *InMemoryStore) Acquire(ctx context.Context, threadID string) (*Session, error) {
	if threadID == "" {
		return nil, types.NewInvalidRequestError("thread_id is required")
	}

	waitCtx := ctx
	if s.config.LockTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.config.LockTimeout)
		defer cancel()
	}

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, errStoreClosed()
		}
		e, ok := s.threads[threadID]
		if !ok {
			e = s.newEntryLocked(threadID)
		}
		e.refs++
		s.mu.Unlock()

		select {
		case e.lock <- struct{}{}:
		case <-waitCtx.Done():
			s.unref(e)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s.logger.Warn("thread lock wait timed out", zap.String("thread_id", threadID))
			return nil, types.NewError(types.ErrThreadBusy, fmt.Sprintf("thread %s is busy", threadID)).
				WithHTTPStatus(http.StatusConflict).
				WithRetryable(true)
		}

		s.mu.Lock()
		removed := e.removed
		s.mu.Unlock()
		if !removed {
			return &Session{store: s, entry: e, threadID: threadID}, nil
		}
		// 等待期间线程被清除, 重新查找
		<-e.lock
		s.unref(e)
	}
}

// Get 返回线程快照
func (s *InMemoryStore) Get(ctx context.Context, threadID string) (*Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.threads[threadID]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrNotFound, fmt.Sprintf("thread %s not found", threadID))
	}
	snapshot := e.thread
	snapshot.Turns = cloneTurns(e.thread.Turns)
	return &snapshot, nil
}

// Clear 删除线程. 正在处理的轮次完成前等待其释放.
func (s *InMemoryStore) Clear(ctx context.Context, threadID string) error {
	s.mu.Lock()
	_, ok := s.threads[threadID]
	s.mu.Unlock()
	if !ok {
		return types.NewNotFoundError(types.ErrNotFound, fmt.Sprintf("thread %s not found", threadID))
	}

	sess, err := s.Acquire(ctx, threadID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	sess.entry.removed = true
	delete(s.threads, threadID)
	s.mu.Unlock()
	sess.Release()

	s.logger.Info("thread cleared", zap.String("thread_id", threadID))
	return nil
}

// Len 返回线程数量
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}

// Close 停止后台清理; 之后的 Create/Acquire 返回错误.
func (s *InMemoryStore) Close() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.stopCh)
	})
	s.wg.Wait()
	return nil
}

func (s *InMemoryStore) newEntryLocked(id string) *threadEntry {
	now := s.now()
	e := &threadEntry{
		thread:   Thread{ID: id, Turns: []Turn{}, CreatedAt: now, UpdatedAt: now},
		lock:     make(chan struct{}, 1),
		lastUsed: now,
	}
	s.threads[id] = e
	s.evictOverflowLocked(id)
	return e
}

func (s *InMemoryStore) unref(e *threadEntry) {
	s.mu.Lock()
	e.refs--
	e.lastUsed = s.now()
	s.mu.Unlock()
}

func (s *InMemoryStore) janitor(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if n := s.evictExpired(); n > 0 {
				s.logger.Debug("expired threads evicted", zap.Int("count", n))
			}
		}
	}
}

// evictExpired 清理空闲超过 TTL 且未被占用的线程.
func (s *InMemoryStore) evictExpired() int {
	if s.config.TTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.config.TTL)
	evicted := 0
	for id, e := range s.threads {
		if e.refs == 0 && e.lastUsed.Before(cutoff) {
			e.removed = true
			delete(s.threads, id)
			evicted++
		}
	}
	return evicted
}

// evictOverflowLocked 超过上限时淘汰最近最少使用且未被占用的线程, keep 不参与淘汰.
func (s *InMemoryStore) evictOverflowLocked(keep string) {
	if s.config.MaxThreads <= 0 || len(s.threads) <= s.config.MaxThreads {
		return
	}
	type candidate struct {
		id       string
		lastUsed time.Time
	}
	idle := make([]candidate, 0, len(s.threads))
	for id, e := range s.threads {
		if e.refs == 0 && id != keep {
			idle = append(idle, candidate{id: id, lastUsed: e.lastUsed})
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].lastUsed.Before(idle[j].lastUsed) })

	for _, c := range idle {
		if len(s.threads) <= s.config.MaxThreads {
			break
		}
		s.threads[c.id].removed = true
		delete(s.threads, c.id)
		s.logger.Debug("thread evicted", zap.String("thread_id", c.id), zap.String("reason", "max_threads"))
	}
}

func errStoreClosed() error {
	return types.NewError(types.ErrServiceUnavailable, "thread store is closed")
}

// Session 持有线程的独占访问权. 用完必须 Release.
type Session struct {
	store    *InMemoryStore
	entry    *threadEntry
	threadID string

	once     sync.Once
	released bool
}

// ThreadID 返回线程 ID
func (s *Session) ThreadID() string { return s.threadID }

// Turns 返回当前轮次的副本.
func (s *Session) Turns() []Turn {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return cloneTurns(s.entry.thread.Turns)
}

// Append 追加一轮. turn.TurnIndex 必须等于当前轮数, 否则返回 THREAD_CORRUPT 且线程不变.
func (s *Session) Append(turn Turn) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if s.released {
		return types.NewInternalError("append on released thread session")
	}
	thread := &s.entry.thread
	if turn.TurnIndex != len(thread.Turns) {
		return types.NewError(types.ErrThreadCorrupt,
			fmt.Sprintf("thread %s: turn index %d, expected %d", s.threadID, turn.TurnIndex, len(thread.Turns))).
			WithHTTPStatus(http.StatusInternalServerError)
	}
	now := s.store.now()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}
	thread.Turns = append(thread.Turns, turn)
	thread.UpdatedAt = now
	s.entry.lastUsed = now
	return nil
}

// Release 释放独占访问, 可重复调用.
func (s *Session) Release() {
	s.once.Do(func() {
		s.store.mu.Lock()
		s.released = true
		s.store.mu.Unlock()
		<-s.entry.lock
		s.store.unref(s.entry)
	})
}

// IsThreadBusy 判断错误是否为线程忙.
func IsThreadBusy(err error) bool {
	return types.IsErrorCode(err, types.ErrThreadBusy)
}
