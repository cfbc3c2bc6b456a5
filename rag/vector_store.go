package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ====== 内存块存储（用于测试和小规模语料）======

// InMemoryChunkStore 内存块存储, 读多写少.
type InMemoryChunkStore struct {
	chunks  []Chunk
	index   map[string]int
	encoder *TermEncoder
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewInMemoryChunkStore 创建内存块存储
func NewInMemoryChunkStore(logger *zap.Logger) *InMemoryChunkStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryChunkStore{
		index:   make(map[string]int),
		encoder: NewTermEncoder(),
		logger:  logger.With(zap.String("component", "inmemory_chunk_store")),
	}
}

// Add 添加或替换块; 缺少稀疏向量时按正文编码.
func (s *InMemoryChunkStore) Add(chunks ...Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk has empty id")
		}
		if c.Sparse == nil {
			c.Sparse = s.encoder.Encode(c.Text)
		}
		if i, ok := s.index[c.ID]; ok {
			s.chunks[i] = c
			continue
		}
		s.index[c.ID] = len(s.chunks)
		s.chunks = append(s.chunks, c)
	}

	s.logger.Debug("chunks added", zap.Int("count", len(chunks)), zap.Int("total", len(s.chunks)))
	return nil
}

// SearchDense 余弦相似度检索
func (s *InMemoryChunkStore) SearchDense(ctx context.Context, vector []float64, k int, filter *MetadataFilter) ([]ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]ScoredChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		if len(c.Dense) == 0 || !filter.Matches(c.Metadata) {
			continue
		}
		results = append(results, ScoredChunk{Chunk: c, Score: cosineSimilarity(vector, c.Dense)})
	}
	return topK(results, k), nil
}

// SearchSparse 稀疏点积检索, 只返回有词项重叠的块.
func (s *InMemoryChunkStore) SearchSparse(ctx context.Context, query SparseVector, k int, filter *MetadataFilter) ([]ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]ScoredChunk, 0)
	for _, c := range s.chunks {
		if !filter.Matches(c.Metadata) {
			continue
		}
		if score := query.Dot(c.Sparse); score > 0 {
			results = append(results, ScoredChunk{Chunk: c, Score: score})
		}
	}
	return topK(results, k), nil
}

// Get 按 ID 返回块
func (s *InMemoryChunkStore) Get(ctx context.Context, ids []string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Chunk, 0, len(ids))
	for _, id := range ids {
		if i, ok := s.index[id]; ok {
			out = append(out, s.chunks[i])
		}
	}
	return out, nil
}

// Count 返回块数量
func (s *InMemoryChunkStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// topK 按分数降序截断, 同分按 ID 排序保证确定性.
func topK(results []ScoredChunk, k int) []ScoredChunk {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if k >= 0 && k < len(results) {
		results = results[:k]
	}
	return results
}

// cosineSimilarity 计算余弦相似度, 维度不一致或零向量返回 0.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
