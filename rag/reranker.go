package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// RerankConfig LLM 重排序配置
type RerankConfig struct {
	// 相对分数带: 保留加权分数不低于最高分 Percentile% 的候选
	Percentile float64 `json:"percentile" yaml:"percentile"`
	MinKeep    int     `json:"min_keep" yaml:"min_keep"`
	MaxKeep    int     `json:"max_keep" yaml:"max_keep"`
	// RelevanceFloor 裁判分数低于该值的候选视为不相关 (0-10 刻度)
	RelevanceFloor float64 `json:"relevance_floor" yaml:"relevance_floor"`

	// 元数据加权系数
	FiscalYearBoost   float64 `json:"fiscal_year_boost" yaml:"fiscal_year_boost"`
	DocumentTypeBoost float64 `json:"document_type_boost" yaml:"document_type_boost"`
	TopicTagBoost     float64 `json:"topic_tag_boost" yaml:"topic_tag_boost"` // 每个命中标签 +0.1

	MaxCandidates int `json:"max_candidates" yaml:"max_candidates"`   // 单次批量评分的候选上限
	MaxChunkChars int `json:"max_chunk_chars" yaml:"max_chunk_chars"` // 评分提示中每段截断长度
	BypassLimit   int `json:"bypass_limit" yaml:"bypass_limit"`       // 跳过重排时透传的数量上限
}

// DefaultRerankConfig 默认配置
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		Percentile:        90,
		MinKeep:           1,
		MaxKeep:           10,
		RelevanceFloor:    2,
		FiscalYearBoost:   1.2,
		DocumentTypeBoost: 1.15,
		TopicTagBoost:     0.1,
		MaxCandidates:     30,
		MaxChunkChars:     1200,
		BypassLimit:       8,
	}
}

// RerankedCandidate 重排后的候选
type RerankedCandidate struct {
	Chunk          Chunk   `json:"chunk"`
	RelevanceScore float64 `json:"relevance_score"` // 裁判分数 0-10
	BoostedScore   float64 `json:"boosted_score"`
	Scored         bool    `json:"scored"` // 未评分 (裁判失败或跳过) 时为 false
}

// RerankOutcome 重排结果
type RerankOutcome struct {
	Candidates  []RerankedCandidate `json:"candidates"`
	Input       int                 `json:"input"`        // 输入候选数
	Skipped     bool                `json:"skipped"`      // 后端已排序, 跳过重排
	JudgeFailed bool                `json:"judge_failed"` // 裁判调用失败, 候选未评分透传
}

// Chunks 返回候选块, 保持顺序.
func (o *RerankOutcome) Chunks() []Chunk {
	out := make([]Chunk, 0, len(o.Candidates))
	for _, c := range o.Candidates {
		out = append(out, c.Chunk)
	}
	return out
}

// LLMReranker 使用一次批量 LLM 调用为全部候选打分.
type LLMReranker struct {
	client LLMClient
	config RerankConfig
	logger *zap.Logger
}

// NewLLMReranker 创建 LLM 重排序器
func NewLLMReranker(client LLMClient, config RerankConfig, logger *zap.Logger) *LLMReranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultRerankConfig()
	if config.Percentile <= 0 || config.Percentile > 100 {
		config.Percentile = defaults.Percentile
	}
	if config.MinKeep <= 0 {
		config.MinKeep = defaults.MinKeep
	}
	if config.MaxKeep < config.MinKeep {
		config.MaxKeep = max(defaults.MaxKeep, config.MinKeep)
	}
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = defaults.MaxCandidates
	}
	if config.BypassLimit <= 0 {
		config.BypassLimit = defaults.BypassLimit
	}
	return &LLMReranker{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "reranker")),
	}
}

// Rerank 重排序. preRanked 为 true 时跳过评分, 截断后原样透传.
func (r *LLMReranker) Rerank(ctx context.Context, query string, hints QueryHints, results []RetrievalResult, preRanked bool) *RerankOutcome {
	outcome := &RerankOutcome{Input: len(results), Candidates: []RerankedCandidate{}}
	if len(results) == 0 {
		return outcome
	}

	if preRanked {
		n := min(len(results), r.config.BypassLimit)
		for _, res := range results[:n] {
			outcome.Candidates = append(outcome.Candidates, RerankedCandidate{Chunk: res.Chunk, BoostedScore: res.FusionScore})
		}
		outcome.Skipped = true
		r.logger.Debug("rerank skipped for pre-ranked results", zap.Int("kept", n))
		return outcome
	}

	// 限制候选数量（LLM 重排序成本高）
	candidates := results
	if len(candidates) > r.config.MaxCandidates {
		candidates = candidates[:r.config.MaxCandidates]
	}

	scores, err := r.judge(ctx, query, candidates)
	if err != nil {
		r.logger.Warn("reranker judge failed, passing candidates through unscored",
			zap.Int("candidates", len(candidates)),
			zap.Error(err))
		for _, res := range candidates {
			outcome.Candidates = append(outcome.Candidates, RerankedCandidate{Chunk: res.Chunk})
		}
		outcome.JudgeFailed = true
		return outcome
	}

	scored := make([]RerankedCandidate, len(candidates))
	for i, res := range candidates {
		scored[i] = RerankedCandidate{
			Chunk:          res.Chunk,
			RelevanceScore: scores[i],
			BoostedScore:   scores[i] * MetadataBoost(res.Chunk.Metadata, hints, r.config),
			Scored:         true,
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].BoostedScore > scored[j].BoostedScore
	})

	outcome.Candidates = ApplyCutoff(scored, r.config.Percentile, r.config.RelevanceFloor, r.config.MinKeep, r.config.MaxKeep)

	r.logger.Debug("reranking completed",
		zap.Int("input", len(candidates)),
		zap.Int("kept", len(outcome.Candidates)))
	return outcome
}

// judge 批量评分; 缺失的条目记 0 分.
func (r *LLMReranker) judge(ctx context.Context, query string, candidates []RetrievalResult) ([]float64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nPassages:\n", query)
	for i, res := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, truncateRunes(res.Chunk.Text, r.config.MaxChunkChars))
	}
	fmt.Fprintf(&b, "Score all %d passages.", len(candidates))

	var out struct {
		Scores []struct {
			Index int     `json:"index"`
			Score float64 `json:"score"`
		} `json:"scores"`
	}
	if err := r.client.Classify(ctx, RerankerSystemPrompt, b.String(), &out); err != nil {
		return nil, err
	}
	if len(out.Scores) == 0 {
		return nil, fmt.Errorf("judge returned no scores")
	}

	scores := make([]float64, len(candidates))
	for _, s := range out.Scores {
		if s.Index < 1 || s.Index > len(candidates) {
			continue
		}
		scores[s.Index-1] = math.Max(0, math.Min(10, s.Score))
	}
	return scores, nil
}

// MetadataBoost 计算元数据加权倍数: 财年命中 ×FiscalYearBoost, 文档类型命中 ×DocumentTypeBoost,
// 主题标签命中 ×(1 + TopicTagBoost×命中数).
func MetadataBoost(meta ChunkMetadata, hints QueryHints, cfg RerankConfig) float64 {
	boost := 1.0
	if hints.FiscalYear != "" && strings.EqualFold(hints.FiscalYear, meta.FiscalYear) && cfg.FiscalYearBoost > 0 {
		boost *= cfg.FiscalYearBoost
	}
	if hints.DocumentType != "" && strings.EqualFold(hints.DocumentType, meta.DocumentType) && cfg.DocumentTypeBoost > 0 {
		boost *= cfg.DocumentTypeBoost
	}
	matched := 0
	for _, tag := range hints.TopicTags {
		if meta.HasTopicTag(tag) {
			matched++
		}
	}
	return boost * (1 + cfg.TopicTagBoost*float64(matched))
}

// ApplyCutoff 自适应截断. 输入按加权分数降序; 先去掉低于相关性下限的候选,
// 再保留加权分数不低于最高分 percentile% 的候选 (相对分数带), 数量限制在
// [minKeep, maxKeep]. 多个同样强的块全部保留, 单个突出的块只保留它自己.
// 全部低于下限时返回空.
func ApplyCutoff(sorted []RerankedCandidate, percentile, floor float64, minKeep, maxKeep int) []RerankedCandidate {
	relevant := make([]RerankedCandidate, 0, len(sorted))
	for _, c := range sorted {
		if c.RelevanceScore >= floor {
			relevant = append(relevant, c)
		}
	}
	if len(relevant) == 0 {
		return relevant
	}

	threshold := bandThreshold(relevant[0].BoostedScore, percentile)
	keep := 0
	for keep < len(relevant) && relevant[keep].BoostedScore >= threshold {
		keep++
	}
	keep = max(keep, min(minKeep, len(relevant)))
	if maxKeep > 0 {
		keep = min(keep, maxKeep)
	}
	return relevant[:keep]
}

// bandThreshold 返回相对最高分的截断线; 最高分非正时所有候选并列.
func bandThreshold(top, percentile float64) float64 {
	if top <= 0 {
		return math.Inf(-1)
	}
	return top * math.Max(0, math.Min(percentile, 100)) / 100
}
