package hitl

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/askflow/rag"
	"github.com/BaSui01/askflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Trigger 挂起原因
type Trigger string

const (
	TriggerClarifyRoute        Trigger = "clarify_route"
	TriggerValidationExhausted Trigger = "validation_exhausted"
)

// DefaultQuestion 澄清生成失败时使用的问题.
const DefaultQuestion = "Could you tell me a bit more about what you're looking for?"

// DefaultOptions 澄清生成失败时使用的选项.
var DefaultOptions = []string{
	"Program eligibility requirements",
	"Income limits for a family size",
	"Office locations and hours",
	"Program reports and outcomes",
}

// PendingClarification 挂起的轮次, 可以跨进程序列化.
type PendingClarification struct {
	ID            string          `json:"id"`
	ThreadID      string          `json:"thread_id"`
	Ephemeral     bool            `json:"ephemeral"` // 无状态请求的临时线程, 恢复后不写记忆
	TurnID        string          `json:"turn_id"`
	OriginalQuery string          `json:"original_query"`
	Question      string          `json:"question"`
	Options       []string        `json:"options"`
	Trigger       Trigger         `json:"trigger"`
	PartialState  json.RawMessage `json:"partial_state,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// ResumeQuery 将用户回复并入原查询.
func (p *PendingClarification) ResumeQuery(reply string) string {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return p.OriginalQuery
	}
	q := strings.TrimRight(strings.TrimSpace(p.OriginalQuery), "?.!")
	return ResumedQuery(q, reply)
}

// ResumedQuery 返回 "Q, specifically R".
func ResumedQuery(query, reply string) string {
	return fmt.Sprintf("%s, specifically %s", query, strings.TrimSpace(reply))
}

// Expired 判断记录在 now 时是否已过期
func (p *PendingClarification) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// DecodeState 解码挂起时保存的部分状态
func (p *PendingClarification) DecodeState(out any) error {
	if len(p.PartialState) == 0 {
		return nil
	}
	return json.Unmarshal(p.PartialState, out)
}

// Proposal 澄清问题与选项
type Proposal struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Fallback bool     `json:"fallback"` // 使用了默认问题与选项
}

// SuspendRequest 挂起请求
type SuspendRequest struct {
	ThreadID     string
	Ephemeral    bool
	TurnID       string
	Query        string
	Trigger      Trigger
	Proposal     Proposal
	PartialState any
}

// ClarificationConfig 澄清配置
type ClarificationConfig struct {
	MinOptions int           `json:"min_options" yaml:"min_options"`
	MaxOptions int           `json:"max_options" yaml:"max_options"`
	TTL        time.Duration `json:"ttl" yaml:"ttl"`
	MaxHistory int           `json:"max_history" yaml:"max_history"` // 生成提示中的历史轮数

	FallbackQuestion string   `json:"fallback_question" yaml:"fallback_question"`
	FallbackOptions  []string `json:"fallback_options" yaml:"fallback_options"`
}

// DefaultClarificationConfig 返回默认配置
func DefaultClarificationConfig() ClarificationConfig {
	return ClarificationConfig{
		MinOptions:       2,
		MaxOptions:       4,
		TTL:              30 * time.Minute,
		MaxHistory:       3,
		FallbackQuestion: DefaultQuestion,
		FallbackOptions:  append([]string(nil), DefaultOptions...),
	}
}

// ClarificationManager 生成澄清问题并管理挂起/恢复.
type ClarificationManager struct {
	client rag.LLMClient
	store  PendingStore
	config ClarificationConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewClarificationManager 创建澄清管理器
func NewClarificationManager(client rag.LLMClient, store PendingStore, config ClarificationConfig, logger *zap.Logger) *ClarificationManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultClarificationConfig()
	if config.MinOptions < 2 {
		config.MinOptions = defaults.MinOptions
	}
	if config.MaxOptions < config.MinOptions || config.MaxOptions > 4 {
		config.MaxOptions = defaults.MaxOptions
	}
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.FallbackQuestion == "" {
		config.FallbackQuestion = defaults.FallbackQuestion
	}
	if len(config.FallbackOptions) < config.MinOptions {
		config.FallbackOptions = defaults.FallbackOptions
	}
	return &ClarificationManager{
		client: client,
		store:  store,
		config: config,
		logger: logger.With(zap.String("component", "clarification")),
		now:    time.Now,
	}
}

// Propose 为模糊查询生成澄清问题. LLM 失败或选项不足时使用默认问题与选项.
func (m *ClarificationManager) Propose(ctx context.Context, query string, history []rag.ConversationTurn) Proposal {
	var b strings.Builder
	if len(history) > 0 {
		if m.config.MaxHistory > 0 && len(history) > m.config.MaxHistory {
			history = history[len(history)-m.config.MaxHistory:]
		}
		fmt.Fprintf(&b, "Conversation so far:\n%s\n\n", rag.FormatHistory(history, 300))
	}
	fmt.Fprintf(&b, "Ambiguous message: %s\nOffer between %d and %d options.", query, m.config.MinOptions, m.config.MaxOptions)

	var out struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
	}
	if err := m.client.Classify(ctx, rag.ClarifierSystemPrompt, b.String(), &out); err != nil {
		m.logger.Warn("clarification generation failed, using default question", zap.Error(err))
		return m.fallback()
	}

	options := normalizeOptions(out.Options, m.config.MaxOptions)
	question := strings.TrimSpace(out.Question)
	if question == "" || len(options) < m.config.MinOptions {
		m.logger.Warn("clarification proposal incomplete, using default question",
			zap.Int("options", len(options)))
		return m.fallback()
	}
	return Proposal{Question: question, Options: options}
}

func (m *ClarificationManager) fallback() Proposal {
	return Proposal{
		Question: m.config.FallbackQuestion,
		Options:  normalizeOptions(m.config.FallbackOptions, m.config.MaxOptions),
		Fallback: true,
	}
}

// normalizeOptions 去空白, 忽略大小写去重, 截断到 limit.
func normalizeOptions(options []string, limit int) []string {
	seen := make(map[string]bool, len(options))
	out := make([]string, 0, min(len(options), limit))
	for _, o := range options {
		o = strings.TrimSpace(o)
		key := strings.ToLower(o)
		if o == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, o)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Suspend 保存挂起记录. 同一线程已有的挂起记录被替换.
func (m *ClarificationManager) Suspend(ctx context.Context, req SuspendRequest) (*PendingClarification, error) {
	if req.ThreadID == "" {
		return nil, types.NewInvalidRequestError("thread id is required to suspend a turn")
	}
	now := m.now()
	pending := &PendingClarification{
		ID:            uuid.NewString(),
		ThreadID:      req.ThreadID,
		Ephemeral:     req.Ephemeral,
		TurnID:        req.TurnID,
		OriginalQuery: req.Query,
		Question:      req.Proposal.Question,
		Options:       append([]string(nil), req.Proposal.Options...),
		Trigger:       req.Trigger,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.config.TTL),
	}
	if req.PartialState != nil {
		data, err := json.Marshal(req.PartialState)
		if err != nil {
			return nil, types.NewInternalError("failed to encode partial state").WithCause(err)
		}
		pending.PartialState = data
	}

	if err := m.store.Save(ctx, pending); err != nil {
		return nil, err
	}
	m.logger.Info("turn suspended for clarification",
		zap.String("thread_id", pending.ThreadID),
		zap.String("turn_id", pending.TurnID),
		zap.String("trigger", string(pending.Trigger)),
		zap.Int("options", len(pending.Options)))
	return pending, nil
}

// Resume 取出线程的挂起记录; 不存在或已过期时返回 CLARIFICATION_NOT_FOUND.
// 记录被取出后即失效, 同一回复不会被处理两次.
func (m *ClarificationManager) Resume(ctx context.Context, threadID string) (*PendingClarification, error) {
	pending, err := m.store.Take(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if pending.Expired(m.now()) {
		m.logger.Info("pending clarification expired", zap.String("thread_id", threadID))
		return nil, errNotFound(threadID)
	}
	m.logger.Debug("turn resumed", zap.String("thread_id", threadID), zap.String("turn_id", pending.TurnID))
	return pending, nil
}

// Restore 放回一条已取出但未能处理的记录; 已过期的记录直接丢弃.
func (m *ClarificationManager) Restore(ctx context.Context, pending *PendingClarification) error {
	if pending == nil || pending.Expired(m.now()) {
		return nil
	}
	return m.store.Save(ctx, pending)
}

// Discard 丢弃线程的挂起记录, 不存在时不报错.
func (m *ClarificationManager) Discard(ctx context.Context, threadID string) error {
	return m.store.Delete(ctx, threadID)
}

func errNotFound(threadID string) error {
	return types.NewNotFoundError(types.ErrClarificationNotFound,
		fmt.Sprintf("no pending clarification for thread %s", threadID))
}

// IsNotFound 判断是否为挂起记录不存在
func IsNotFound(err error) bool {
	return types.IsErrorCode(err, types.ErrClarificationNotFound)
}
