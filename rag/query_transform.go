package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ReformulationPattern 触发改写的启发式模式族
type ReformulationPattern string

const (
	PatternNone         ReformulationPattern = ""
	PatternPronoun      ReformulationPattern = "pronoun"       // 代词或省略: "that family", "what about 5?"
	PatternCorrection   ReformulationPattern = "correction"    // "I meant X": 替换上一轮参数
	PatternTopicReturn  ReformulationPattern = "topic_return"  // "back to my X question": 恢复较早话题
	PatternHypothetical ReformulationPattern = "hypothetical"  // "what if X": 把新值并入上一轮上下文
	PatternNegation     ReformulationPattern = "negation"      // "not for X": 从上一轮补全主语
)

var reformulationRules = []struct {
	pattern ReformulationPattern
	re      *regexp.Regexp
}{
	{PatternCorrection, regexp.MustCompile(`(?i)(\b(i meant|i mean|actually|correction|i said|not what i asked)\b|^\s*(sorry|no),)`)},
	{PatternTopicReturn, regexp.MustCompile(`(?i)\b(back to|going back|go back|return to|returning to|earlier question|my (first|previous|earlier|original|other) question)\b`)},
	{PatternHypothetical, regexp.MustCompile(`(?i)\b(what if|suppose|supposing|assuming|hypothetically|if instead|what would happen if)\b`)},
	{PatternNegation, regexp.MustCompile(`(?i)^\s*(but not|and not|not for|not the|excluding|except|without|what about not|no,? not)\b`)},
	{PatternPronoun, regexp.MustCompile(`(?i)(\b(it|its|that|this|those|these|they|them|their|there|he|she|his|her|the same|that one|the former|the latter|above)\b|^\s*(and|also|what about|how about|same for|ok so|so)\b)`)},
}

// DetectReformulationPattern 判断查询是否依赖上下文; 无历史时总是返回 PatternNone.
func DetectReformulationPattern(query string, hasHistory bool) ReformulationPattern {
	if !hasHistory {
		return PatternNone
	}
	for _, rule := range reformulationRules {
		if rule.re.MatchString(query) {
			return rule.pattern
		}
	}
	// 极短的追问通常是省略句
	if len(strings.Fields(query)) <= 3 && !strings.Contains(query, "?") {
		return PatternPronoun
	}
	return PatternNone
}

var patternInstructions = map[ReformulationPattern]string{
	PatternPronoun:      "Resolve pronouns and omitted subjects to the concrete entities and values from the conversation.",
	PatternCorrection:   "The user is correcting a parameter of their previous question. Restate the previous question with the corrected value replacing the old one.",
	PatternTopicReturn:  "The user is returning to an earlier topic. Find that earlier question in the conversation and restate it fully, including its parameters.",
	PatternHypothetical: "The user proposes a new value. Restate the previous question with the new value merged into the prior context.",
	PatternNegation:     "The user is excluding something. Make the subject from the previous turn explicit in the rewritten question.",
}

// ReformulatorConfig 配置查询改写
type ReformulatorConfig struct {
	MaxHistoryTurns int `json:"max_history_turns" yaml:"max_history_turns"` // 提供给改写的历史轮数
	MaxAnswerChars  int `json:"max_answer_chars" yaml:"max_answer_chars"`   // 每个历史回答的截断长度
}

// DefaultReformulatorConfig 返回默认配置
func DefaultReformulatorConfig() ReformulatorConfig {
	return ReformulatorConfig{
		MaxHistoryTurns: 6,
		MaxAnswerChars:  1500,
	}
}

// Reformulation 改写结果
type Reformulation struct {
	Query     string               `json:"query"`               // 实际使用的查询
	Rewritten *string              `json:"rewritten,omitempty"` // 未改写时为 nil
	Pattern   ReformulationPattern `json:"pattern,omitempty"`
	Degraded  bool                 `json:"degraded,omitempty"`  // LLM 失败, 使用原查询
}

// Reformulator 将依赖上下文的追问改写为自包含查询.
type Reformulator struct {
	client LLMClient
	config ReformulatorConfig
	logger *zap.Logger
}

// NewReformulator 创建改写器
func NewReformulator(client LLMClient, config ReformulatorConfig, logger *zap.Logger) *Reformulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxHistoryTurns <= 0 {
		config.MaxHistoryTurns = DefaultReformulatorConfig().MaxHistoryTurns
	}
	return &Reformulator{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "reformulator")),
	}
}

// Reformulate 按需改写查询; LLM 失败时退回原查询, 不阻塞本轮.
func (r *Reformulator) Reformulate(ctx context.Context, query string, history []ConversationTurn) Reformulation {
	result := Reformulation{Query: query}

	pattern := DetectReformulationPattern(query, len(history) > 0)
	if pattern == PatternNone {
		return result
	}
	result.Pattern = pattern

	if len(history) > r.config.MaxHistoryTurns && pattern != PatternTopicReturn {
		history = history[len(history)-r.config.MaxHistoryTurns:]
	}

	user := fmt.Sprintf("Conversation so far:\n%s\n\nInstruction: %s\n\nLatest message: %s\n\nRewritten question:",
		FormatHistory(history, r.config.MaxAnswerChars), patternInstructions[pattern], query)

	text, err := r.client.Generate(ctx, ReformulatorSystemPrompt, user)
	if err != nil {
		r.logger.Warn("reformulation failed, using raw query",
			zap.String("pattern", string(pattern)),
			zap.Error(err))
		result.Degraded = true
		return result
	}

	rewritten := cleanQuery(text)
	if rewritten == "" {
		return result
	}
	result.Query = rewritten
	result.Rewritten = &rewritten

	r.logger.Debug("query reformulated",
		zap.String("pattern", string(pattern)),
		zap.String("rewritten", truncateRunes(rewritten, 120)))
	return result
}

// Broaden 在检索结果全部不相关时请求一个更宽泛的检索查询; 失败时返回原查询与错误.
func (r *Reformulator) Broaden(ctx context.Context, query string, attempt int) (string, error) {
	user := fmt.Sprintf("Original question: %s\nRewrite attempt: %d\n\nNew search query:", query, attempt)
	text, err := r.client.Generate(ctx, RewriteSystemPrompt, user)
	if err != nil {
		return query, err
	}
	if q := cleanQuery(text); q != "" {
		return q, nil
	}
	return query, nil
}

var queryLabelPrefix = regexp.MustCompile(`(?i)^(rewritten (question|query)|new (search )?query|question|query)\s*:\s*`)

// cleanQuery 去除模型常见的标签前缀与引号, 只保留第一行.
func cleanQuery(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	text = queryLabelPrefix.ReplaceAllString(text, "")
	return strings.Trim(strings.TrimSpace(text), "\"'`")
}
