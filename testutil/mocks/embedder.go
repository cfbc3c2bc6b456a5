package mocks

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/BaSui01/askflow/llm/embedding"
)

// HashEmbedder 把词项哈希到固定维度的词袋向量并做 L2 归一化.
// 相同文本总得到相同向量, 共享词越多余弦相似度越高.
type HashEmbedder struct {
	dims int

	mu    sync.Mutex
	err   error
	calls int
}

// NewHashEmbedder 创建哈希嵌入器, dims <= 0 时使用 64.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 64
	}
	return &HashEmbedder{dims: dims}
}

// WithError 设置所有调用返回错误
func (e *HashEmbedder) WithError(err error) *HashEmbedder {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
	return e
}

// Vector 计算文本向量
func (e *HashEmbedder) Vector(text string) []float64 {
	vec := make([]float64, e.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(e.dims)]++
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (e *HashEmbedder) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.err
}

// Embed 实现 embedding.Provider
func (e *HashEmbedder) Embed(ctx context.Context, req *embedding.EmbeddingRequest) (*embedding.EmbeddingResponse, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	resp := &embedding.EmbeddingResponse{Provider: e.Name(), Model: "hash"}
	for i, text := range req.Input {
		resp.Embeddings = append(resp.Embeddings, embedding.EmbeddingData{Index: i, Embedding: e.Vector(text)})
	}
	return resp, nil
}

// EmbedQuery 实现 embedding.Provider
func (e *HashEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.begin(); err != nil {
		return nil, err
	}
	return e.Vector(query), nil
}

// Name 返回提供者名称
func (e *HashEmbedder) Name() string { return "hash" }

// Dimensions 返回向量维度
func (e *HashEmbedder) Dimensions() int { return e.dims }

// CallCount 返回调用次数
func (e *HashEmbedder) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

var _ embedding.Provider = (*HashEmbedder)(nil)
