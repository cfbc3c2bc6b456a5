package turnlog

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/askflow/internal/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Source 引用来源
type Source struct {
	Document string `json:"document"`
	Page     int    `json:"page,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Entry 一轮问答的审计记录
type Entry struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	TurnID            string    `gorm:"size:64;not null;uniqueIndex" json:"turn_id"`
	ThreadID          string    `gorm:"size:64;index:idx_thread_turn" json:"thread_id"` // 无状态请求为空
	TurnIndex         int       `gorm:"index:idx_thread_turn" json:"turn_index"`
	Route             string    `gorm:"size:32;not null;index" json:"route"`
	Outcome           string    `gorm:"size:32;not null" json:"outcome"` // answer, fallback
	RawQuery          string    `gorm:"type:text;not null" json:"raw_query"`
	ReformulatedQuery *string   `gorm:"type:text" json:"reformulated_query,omitempty"`
	RewriteCount      int       `gorm:"default:0" json:"rewrite_count"`
	ValidationCount   int       `gorm:"default:0" json:"validation_count"`
	ValidationPassed  bool      `json:"validation_passed"`
	RerankSkipped     bool      `json:"rerank_skipped"`
	FilterFallback    bool      `json:"filter_fallback"`
	Resumed           bool      `json:"resumed"` // 澄清后恢复的轮次
	RetrievedChunks   int       `json:"retrieved_chunks"`
	Sources           []Source  `gorm:"serializer:json;type:text" json:"sources"`
	Degraded          []string  `gorm:"serializer:json;type:text" json:"degraded,omitempty"`
	LatencyMs         int64     `json:"latency_ms"`
	CreatedAt         time.Time `gorm:"index" json:"created_at"`
}

// TableName 表名
func (Entry) TableName() string { return "askflow_turns" }

// Recorder 将轮次写入数据库
type Recorder struct {
	db      *gorm.DB
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewRecorder 创建审计记录器; collector 可为 nil.
func NewRecorder(db *gorm.DB, collector *metrics.Collector, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		db:      db,
		metrics: collector,
		logger:  logger.With(zap.String("component", "turnlog")),
	}
}

// Migrate 创建或更新审计表
func (r *Recorder) Migrate() error {
	if err := r.db.AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("failed to auto migrate turn log: %w", err)
	}
	return nil
}

// Record 写入一条记录
func (r *Recorder) Record(ctx context.Context, entry *Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	start := time.Now()
	err := r.db.WithContext(ctx).Create(entry).Error
	r.metrics.RecordDBQuery("turnlog", "insert", time.Since(start))
	if err != nil {
		r.logger.Warn("failed to record turn",
			zap.String("turn_id", entry.TurnID),
			zap.String("thread_id", entry.ThreadID),
			zap.Error(err))
		return fmt.Errorf("record turn %s: %w", entry.TurnID, err)
	}
	return nil
}

// ListByThread 按轮次顺序返回线程的记录; limit <= 0 表示不限.
func (r *Recorder) ListByThread(ctx context.Context, threadID string, limit int) ([]Entry, error) {
	start := time.Now()
	q := r.db.WithContext(ctx).Where("thread_id = ?", threadID).Order("turn_index ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []Entry
	err := q.Find(&entries).Error
	r.metrics.RecordDBQuery("turnlog", "select", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("list turns for thread %s: %w", threadID, err)
	}
	return entries, nil
}

// CountByRoute 统计各路由的轮次数
func (r *Recorder) CountByRoute(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Route string
		Count int64
	}
	err := r.db.WithContext(ctx).Model(&Entry{}).
		Select("route, count(*) as count").
		Group("route").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count turns by route: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Route] = row.Count
	}
	return out, nil
}
