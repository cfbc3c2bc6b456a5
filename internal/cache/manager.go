// Package cache provides the shared Redis connection used for pending clarifications.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/askflow/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 Redis 管理器
// =============================================================================

// ErrCacheMiss 键不存在或已过期
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Config Redis 连接配置
type Config struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db"`
	KeyPrefix    string        `yaml:"key_prefix" json:"key_prefix"`
	DefaultTTL   time.Duration `yaml:"default_ttl" json:"default_ttl"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 健康检查间隔, 0 表示不做后台检查
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		KeyPrefix:           "askflow:",
		DefaultTTL:          30 * time.Minute,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Manager 持有 Redis 客户端, 所有键自动加上 KeyPrefix.
type Manager struct {
	redis     *redis.Client
	config    Config
	logger    *zap.Logger
	collector *metrics.Collector

	mu     sync.RWMutex
	closed bool
	stopCh chan struct{}
}

// Option 配置 Manager
type Option func(*Manager)

// WithCollector 记录读取命中/未命中, 标签取键的第一段 (如 "clarification").
func WithCollector(c *metrics.Collector) Option {
	return func(m *Manager) { m.collector = c }
}

// NewManager 连接 Redis 并在连接失败时返回错误.
func NewManager(config Config, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	m.logger.Info("redis connected",
		zap.String("addr", config.Addr),
		zap.Int("db", config.DB),
		zap.Int("pool_size", config.PoolSize))
	return m, nil
}

func (m *Manager) key(k string) string { return m.config.KeyPrefix + k }

func (m *Manager) client() (*redis.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("cache manager is closed")
	}
	return m.redis, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// SetJSON 序列化并写入, ttl 为 0 时使用 DefaultTTL.
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	rdb, err := m.client()
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	if err := rdb.Set(ctx, m.key(key), data, ttl).Err(); err != nil {
		m.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// GetJSON 读取并反序列化; 不存在时返回 ErrCacheMiss.
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	rdb, err := m.client()
	if err != nil {
		return err
	}
	data, err := rdb.Get(ctx, m.key(key)).Bytes()
	return m.decode(key, data, err, dest)
}

// TakeJSON 原子地读取并删除 (GETDEL), 保证同一个值只被消费一次.
func (m *Manager) TakeJSON(ctx context.Context, key string, dest any) error {
	rdb, err := m.client()
	if err != nil {
		return err
	}
	data, err := rdb.GetDel(ctx, m.key(key)).Bytes()
	return m.decode(key, data, err, dest)
}

func (m *Manager) decode(key string, data []byte, err error, dest any) error {
	if errors.Is(err, redis.Nil) {
		m.collector.RecordCacheMiss(keyKind(key))
		return ErrCacheMiss
	}
	if err != nil {
		m.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache get failed: %w", err)
	}
	m.collector.RecordCacheHit(keyKind(key))
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// keyKind 返回键的第一段作为指标标签
func keyKind(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "default"
}

// Delete 删除键
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	rdb, err := m.client()
	if err != nil {
		return err
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = m.key(k)
	}
	if err := rdb.Del(ctx, prefixed...).Err(); err != nil {
		m.logger.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	rdb, err := m.client()
	if err != nil {
		return err
	}
	return rdb.Ping(ctx).Err()
}

// Close 关闭连接并停止健康检查, 可重复调用.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.stopCh)
	m.logger.Info("closing redis connection")
	return m.redis.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := m.Ping(ctx); err != nil {
				m.logger.Error("redis health check failed", zap.Error(err))
			}
			cancel()
		}
	}
}
