package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RetrievalMode 检索模式
type RetrievalMode string

const (
	// RetrievalModeHybrid 本地执行稠密 + 稀疏检索并做 RRF 融合.
	RetrievalModeHybrid RetrievalMode = "hybrid"
	// RetrievalModeManaged 由检索后端自行融合排序, 结果视为已排序.
	RetrievalModeManaged RetrievalMode = "managed"
)

// HybridRetrievalConfig 混合检索配置
type HybridRetrievalConfig struct {
	Mode     RetrievalMode `json:"mode" yaml:"mode"`
	Prefetch int           `json:"prefetch" yaml:"prefetch"` // 每路检索的候选上限
	RRFK     float64       `json:"rrf_k" yaml:"rrf_k"`       // RRF 常数 k
	TopN     int           `json:"top_n" yaml:"top_n"`       // 融合后返回数量

	// 低于阈值的单路命中在融合前被丢弃
	DenseMinScore  float64 `json:"dense_min_score" yaml:"dense_min_score"`
	SparseMinScore float64 `json:"sparse_min_score" yaml:"sparse_min_score"`
}

// DefaultHybridRetrievalConfig 返回默认混合检索配置
func DefaultHybridRetrievalConfig() HybridRetrievalConfig {
	return HybridRetrievalConfig{
		Mode:     RetrievalModeHybrid,
		Prefetch: 100,
		RRFK:     60,
		TopN:     30,
	}
}

// RetrievalResult 融合后的检索结果; 未出现在某一路时对应 Rank 为 0.
type RetrievalResult struct {
	Chunk       Chunk   `json:"chunk"`
	FusionScore float64 `json:"fusion_score"`
	DenseScore  float64 `json:"dense_score,omitempty"`
	SparseScore float64 `json:"sparse_score,omitempty"`
	DenseRank   int     `json:"dense_rank,omitempty"`
	SparseRank  int     `json:"sparse_rank,omitempty"`
}

// rawScore 是同分时的比较依据: 两路原始分数中较高者.
func (r RetrievalResult) rawScore() float64 {
	switch {
	case r.DenseRank > 0 && r.SparseRank > 0:
		return math.Max(r.DenseScore, r.SparseScore)
	case r.DenseRank > 0:
		return r.DenseScore
	default:
		return r.SparseScore
	}
}

// RetrievalOutcome 一次检索调用的结果与观测标记.
type RetrievalOutcome struct {
	Results        []RetrievalResult `json:"results"`
	Query          string            `json:"query"`
	Filter         *MetadataFilter   `json:"filter,omitempty"`
	FilterFallback bool              `json:"filter_fallback"` // 过滤检索为空, 已改为不过滤
	PreRanked      bool              `json:"pre_ranked"`      // 结果由后端排序 (managed 模式)
}

// ChunkIDs 返回结果的块 ID 列表.
func (o *RetrievalOutcome) ChunkIDs() []string {
	ids := make([]string, 0, len(o.Results))
	for _, r := range o.Results {
		ids = append(ids, r.Chunk.ID)
	}
	return ids
}

// QueryEmbedder 生成查询向量; embedding.Provider 满足该接口.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
}

// HybridRetriever 混合检索器
type HybridRetriever struct {
	store    ChunkStore
	managed  ManagedSearcher
	embedder QueryEmbedder
	encoder  *TermEncoder
	config   HybridRetrievalConfig
	logger   *zap.Logger
}

// NewHybridRetriever 创建混合检索器. managed 模式要求 store 实现 ManagedSearcher.
func NewHybridRetriever(store ChunkStore, embedder QueryEmbedder, config HybridRetrievalConfig, logger *zap.Logger) (*HybridRetriever, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultHybridRetrievalConfig()
	if config.Mode == "" {
		config.Mode = defaults.Mode
	}
	if config.Prefetch <= 0 {
		config.Prefetch = defaults.Prefetch
	}
	if config.RRFK <= 0 {
		config.RRFK = defaults.RRFK
	}
	if config.TopN <= 0 {
		config.TopN = defaults.TopN
	}

	r := &HybridRetriever{
		store:    store,
		embedder: embedder,
		encoder:  NewTermEncoder(),
		config:   config,
		logger:   logger.With(zap.String("component", "hybrid_retriever")),
	}
	switch config.Mode {
	case RetrievalModeHybrid:
	case RetrievalModeManaged:
		managed, ok := store.(ManagedSearcher)
		if !ok {
			return nil, fmt.Errorf("retrieval mode %q requires a store with built-in fusion", config.Mode)
		}
		r.managed = managed
	default:
		return nil, fmt.Errorf("unknown retrieval mode %q", config.Mode)
	}
	return r, nil
}

// Mode 返回检索模式
func (r *HybridRetriever) Mode() RetrievalMode { return r.config.Mode }

// Retrieve 执行检索. 提示产生的过滤检索为空或出错时自动改为不过滤检索.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, hints QueryHints) (*RetrievalOutcome, error) {
	dense, sparse := r.encodeQuery(ctx, query)

	outcome := &RetrievalOutcome{Query: query, Filter: hints.Filter(), PreRanked: r.managed != nil}

	results, err := r.search(ctx, dense, sparse, outcome.Filter)
	if err != nil && (outcome.Filter == nil || ctx.Err() != nil) {
		return nil, err
	}
	if outcome.Filter != nil && (err != nil || len(results) == 0) {
		reason := "no results"
		if err != nil {
			reason = err.Error()
		}
		r.logger.Warn("filter fallback: filtered search failed, retrying unfiltered",
			zap.String("reason", reason),
			zap.String("fiscal_year", outcome.Filter.FiscalYear),
			zap.String("document_type", outcome.Filter.DocumentType))
		outcome.FilterFallback = true
		results, err = r.search(ctx, dense, sparse, nil)
		if err != nil {
			return nil, err
		}
	}
	outcome.Results = results

	r.logger.Debug("retrieval completed",
		zap.Int("results", len(results)),
		zap.Bool("filter_fallback", outcome.FilterFallback),
		zap.String("mode", string(r.config.Mode)))
	return outcome, nil
}

// encodeQuery 生成两路查询表示; 向量化失败时只走稀疏检索.
func (r *HybridRetriever) encodeQuery(ctx context.Context, query string) ([]float64, SparseVector) {
	sparse := r.encoder.Encode(query)
	if r.embedder == nil {
		return nil, sparse
	}
	dense, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, using sparse search only", zap.Error(err))
		return nil, sparse
	}
	return dense, sparse
}

func (r *HybridRetriever) search(ctx context.Context, dense []float64, sparse SparseVector, filter *MetadataFilter) ([]RetrievalResult, error) {
	if r.managed != nil {
		hits, err := r.managed.HybridQuery(ctx, dense, sparse, r.config.Prefetch, r.config.TopN, filter)
		if err != nil {
			return nil, err
		}
		out := make([]RetrievalResult, 0, len(hits))
		for _, h := range hits {
			out = append(out, RetrievalResult{Chunk: h.Chunk, FusionScore: h.Score})
		}
		return out, nil
	}

	var (
		denseHits, sparseHits []ScoredChunk
		denseErr, sparseErr   error
	)
	// 两路检索只读且无副作用, 并发执行; 单路失败不取消另一路.
	g, gctx := errgroup.WithContext(ctx)
	if len(dense) > 0 {
		g.Go(func() error {
			denseHits, denseErr = r.store.SearchDense(gctx, dense, r.config.Prefetch, filter)
			return nil
		})
	}
	if len(sparse) > 0 {
		g.Go(func() error {
			sparseHits, sparseErr = r.store.SearchSparse(gctx, sparse, r.config.Prefetch, filter)
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case denseErr != nil && sparseErr != nil:
		return nil, errors.Join(denseErr, sparseErr)
	case denseErr != nil:
		r.logger.Warn("dense search failed, using sparse results only", zap.Error(denseErr))
	case sparseErr != nil:
		r.logger.Warn("sparse search failed, using dense results only", zap.Error(sparseErr))
	}

	denseHits = aboveThreshold(denseHits, r.config.DenseMinScore)
	sparseHits = aboveThreshold(sparseHits, r.config.SparseMinScore)
	return FuseRRF(denseHits, sparseHits, r.config.RRFK, r.config.TopN), nil
}

func aboveThreshold(hits []ScoredChunk, min float64) []ScoredChunk {
	out := hits[:0:0]
	for _, h := range hits {
		if h.Score > min {
			out = append(out, h)
		}
	}
	return out
}

// FuseRRF 以倒数排名融合两路有序结果: score = Σ 1/(k + rank), rank 从 1 开始.
// 只出现在一路中的块只获得该路的分数. 同分时原始分数较高者在前, 再按 ID 排序.
func FuseRRF(dense, sparse []ScoredChunk, k float64, topN int) []RetrievalResult {
	byID := make(map[string]*RetrievalResult, len(dense)+len(sparse))
	order := make([]string, 0, len(dense)+len(sparse))

	get := func(c Chunk) *RetrievalResult {
		if res, ok := byID[c.ID]; ok {
			return res
		}
		res := &RetrievalResult{Chunk: c}
		byID[c.ID] = res
		order = append(order, c.ID)
		return res
	}

	for i, hit := range dense {
		res := get(hit.Chunk)
		if res.DenseRank != 0 {
			continue
		}
		res.DenseRank = i + 1
		res.DenseScore = hit.Score
		res.FusionScore += 1.0 / (k + float64(i+1))
	}
	for i, hit := range sparse {
		res := get(hit.Chunk)
		if res.SparseRank != 0 {
			continue
		}
		res.SparseRank = i + 1
		res.SparseScore = hit.Score
		res.FusionScore += 1.0 / (k + float64(i+1))
	}

	results := make([]RetrievalResult, 0, len(order))
	for _, id := range order {
		results = append(results, *byID[id])
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.FusionScore != b.FusionScore {
			return a.FusionScore > b.FusionScore
		}
		if ra, rb := a.rawScore(), b.rawScore(); ra != rb {
			return ra > rb
		}
		return a.Chunk.ID < b.Chunk.ID
	})

	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results
}
