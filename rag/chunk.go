package rag

import (
	"context"
	"slices"
	"strings"
)

// ChunkKind 区分表格块与正文块.
type ChunkKind string

const (
	ChunkKindTable     ChunkKind = "table"
	ChunkKindNarrative ChunkKind = "narrative"
)

// ChunkMetadata 是块的结构化元数据.
type ChunkMetadata struct {
	DocumentID   string    `json:"document_id"`
	Page         int       `json:"page"`
	URL          string    `json:"url,omitempty"`
	FiscalYear   string    `json:"fiscal_year,omitempty"`
	DocumentType string    `json:"document_type,omitempty"`
	TopicTags    []string  `json:"topic_tags,omitempty"`
	ChunkKind    ChunkKind `json:"chunk_kind,omitempty"`
}

// HasTopicTag reports whether the chunk carries tag (case-insensitive).
func (m ChunkMetadata) HasTopicTag(tag string) bool {
	return slices.ContainsFunc(m.TopicTags, func(t string) bool {
		return strings.EqualFold(t, tag)
	})
}

// SparseVector 稀疏词项权重向量 (term -> weight).
type SparseVector map[string]float64

// Dot 计算两个稀疏向量的点积.
func (v SparseVector) Dot(other SparseVector) float64 {
	if len(v) > len(other) {
		v, other = other, v
	}
	var sum float64
	for term, w := range v {
		sum += w * other[term]
	}
	return sum
}

// Chunk 是不可变的可检索单元, 由外部摄取流程创建.
type Chunk struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Dense    []float64     `json:"dense_vector,omitempty"`
	Sparse   SparseVector  `json:"sparse_vector,omitempty"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ScoredChunk 单路检索命中.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// MetadataFilter 元数据过滤谓词, 空字段不参与匹配.
type MetadataFilter struct {
	FiscalYear   string `json:"fiscal_year,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
}

// IsEmpty 判断过滤器是否没有任何条件.
func (f *MetadataFilter) IsEmpty() bool {
	return f == nil || (f.FiscalYear == "" && f.DocumentType == "")
}

// Matches 判断元数据是否满足过滤条件.
func (f *MetadataFilter) Matches(m ChunkMetadata) bool {
	if f.IsEmpty() {
		return true
	}
	if f.FiscalYear != "" && !strings.EqualFold(f.FiscalYear, m.FiscalYear) {
		return false
	}
	if f.DocumentType != "" && !strings.EqualFold(f.DocumentType, m.DocumentType) {
		return false
	}
	return true
}

// ChunkStore 是语料库的检索能力, 对本模块只读.
type ChunkStore interface {
	// SearchDense 按稠密向量相似度返回前 k 个块, 分数降序.
	SearchDense(ctx context.Context, vector []float64, k int, filter *MetadataFilter) ([]ScoredChunk, error)

	// SearchSparse 按稀疏词项权重返回前 k 个块, 分数降序.
	SearchSparse(ctx context.Context, query SparseVector, k int, filter *MetadataFilter) ([]ScoredChunk, error)

	// Get 按 ID 返回块内容, 未知 ID 被忽略.
	Get(ctx context.Context, ids []string) ([]Chunk, error)

	// Count 返回语料库中的块数.
	Count(ctx context.Context) (int, error)
}

// ManagedSearcher 由自带融合排序的检索后端实现.
type ManagedSearcher interface {
	HybridQuery(ctx context.Context, dense []float64, sparse SparseVector, prefetch, limit int, filter *MetadataFilter) ([]ScoredChunk, error)
}

// Source 是返回给调用方的引用来源.
type Source struct {
	Document string `json:"document"`
	Page     int    `json:"page"`
	URL      string `json:"url"`
}

// SourceOf 从块元数据构造引用来源.
func SourceOf(c Chunk) Source {
	return Source{
		Document: c.Metadata.DocumentID,
		Page:     c.Metadata.Page,
		URL:      c.Metadata.URL,
	}
}
