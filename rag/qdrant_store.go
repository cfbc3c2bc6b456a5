package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/askflow/llm/providers"
	"github.com/BaSui01/askflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QdrantConfig configures the Qdrant ChunkStore implementation.
//
// Notes:
//   - Each point carries a named dense vector and a named sparse vector.
//   - Point IDs are UUIDs derived from Chunk.ID; the original ID lives in payload.
//   - Sparse terms are mapped to integer indices by FNV-1a hashing.
type QdrantConfig struct {
	Host       string        `json:"host" yaml:"host"`
	Port       int           `json:"port" yaml:"port"`
	BaseURL    string        `json:"base_url,omitempty" yaml:"base_url"`
	APIKey     string        `json:"api_key,omitempty" yaml:"api_key"`
	Collection string        `json:"collection" yaml:"collection"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout"`

	AutoCreateCollection bool   `json:"auto_create_collection,omitempty" yaml:"auto_create_collection"`
	Distance             string `json:"distance,omitempty" yaml:"distance"`         // Cosine (default), Dot, Euclid
	DenseVectorName      string `json:"dense_vector_name" yaml:"dense_vector_name"`   // default "dense"
	SparseVectorName     string `json:"sparse_vector_name" yaml:"sparse_vector_name"` // default "sparse"
}

// QdrantChunkStore implements ChunkStore and ManagedSearcher using Qdrant's REST API.
type QdrantChunkStore struct {
	cfg QdrantConfig

	baseURL string
	client  *http.Client
	logger  *zap.Logger

	ensureOnce sync.Once
	ensureErr  error
}

// NewQdrantChunkStore creates a Qdrant-backed ChunkStore.
func NewQdrantChunkStore(cfg QdrantConfig, logger *zap.Logger) *QdrantChunkStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	if cfg.DenseVectorName == "" {
		cfg.DenseVectorName = "dense"
	}
	if cfg.SparseVectorName == "" {
		cfg.SparseVectorName = "sparse"
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}

	return &QdrantChunkStore{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "qdrant_store")),
	}
}

var qdrantNamespace = uuid.MustParse("d9bde6d4-4f3a-4e6b-8f7a-5d8d2f3b4c1a")

func qdrantPointID(chunkID string) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(chunkID)).String()
}

// qdrantPayload 是写入每个点的 payload.
type qdrantPayload struct {
	ChunkID  string        `json:"chunk_id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

type qdrantSparse struct {
	Indices []uint32  `json:"indices"`
	Values  []float64 `json:"values"`
}

type qdrantPoint struct {
	ID      any           `json:"id"`
	Score   float64       `json:"score"`
	Payload qdrantPayload `json:"payload"`
}

type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

type qdrantPrefetch struct {
	Query any    `json:"query"`
	Using string `json:"using"`
	Limit int    `json:"limit"`
}

type qdrantQueryRequest struct {
	Prefetch    []qdrantPrefetch `json:"prefetch,omitempty"`
	Query       any              `json:"query"`
	Using       string           `json:"using,omitempty"`
	Limit       int              `json:"limit"`
	Filter      *qdrantFilter    `json:"filter,omitempty"`
	WithPayload bool             `json:"with_payload"`
}

type qdrantQueryResponse struct {
	Result struct {
		Points []qdrantPoint `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// encodeSparse 把词项向量转为 Qdrant 的 indices/values 形式, 哈希冲突的权重相加.
func encodeSparse(v SparseVector) qdrantSparse {
	merged := make(map[uint32]float64, len(v))
	for term, w := range v {
		merged[termIndex(term)] += w
	}
	out := qdrantSparse{
		Indices: make([]uint32, 0, len(merged)),
		Values:  make([]float64, 0, len(merged)),
	}
	for idx := range merged {
		out.Indices = append(out.Indices, idx)
	}
	sort.Slice(out.Indices, func(i, j int) bool { return out.Indices[i] < out.Indices[j] })
	for _, idx := range out.Indices {
		out.Values = append(out.Values, merged[idx])
	}
	return out
}

// buildFilter 把元数据过滤器转换为 must 条件.
func buildFilter(f *MetadataFilter) *qdrantFilter {
	if f.IsEmpty() {
		return nil
	}
	out := &qdrantFilter{}
	add := func(key, value string) {
		if value == "" {
			return
		}
		var c qdrantCondition
		c.Key = key
		c.Match.Value = value
		out.Must = append(out.Must, c)
	}
	add("metadata.fiscal_year", f.FiscalYear)
	add("metadata.document_type", f.DocumentType)
	return out
}

func (s *QdrantChunkStore) collectionPath(suffix string) (string, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return "", types.NewInvalidRequestError("qdrant collection is required")
	}
	return fmt.Sprintf("/collections/%s%s", url.PathEscape(s.cfg.Collection), suffix), nil
}

// EnsureCollection 在开启自动创建时创建带稠密与稀疏命名向量的集合.
func (s *QdrantChunkStore) EnsureCollection(ctx context.Context, vectorSize int) error {
	if !s.cfg.AutoCreateCollection {
		return nil
	}
	if vectorSize <= 0 {
		return fmt.Errorf("qdrant vector size must be > 0")
	}
	path, err := s.collectionPath("")
	if err != nil {
		return err
	}

	s.ensureOnce.Do(func() {
		body := map[string]any{
			"vectors": map[string]any{
				s.cfg.DenseVectorName: map[string]any{
					"size":     vectorSize,
					"distance": s.cfg.Distance,
				},
			},
			"sparse_vectors": map[string]any{
				s.cfg.SparseVectorName: map[string]any{},
			},
		}
		err := s.doJSON(ctx, http.MethodPut, path, body, nil)
		// Qdrant returns 409 if collection exists.
		var te *types.Error
		if errors.As(err, &te) && te.HTTPStatus == http.StatusConflict {
			err = nil
		}
		s.ensureErr = err
	})
	return s.ensureErr
}

// Upsert 写入块 (摄取流程与测试使用).
func (s *QdrantChunkStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	vectorSize := 0
	for i, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk[%d] has empty id", i)
		}
		if len(c.Dense) == 0 {
			return fmt.Errorf("chunk[%d] has no dense vector", i)
		}
		if vectorSize == 0 {
			vectorSize = len(c.Dense)
		}
		if len(c.Dense) != vectorSize {
			return fmt.Errorf("chunk[%d] dense dimension mismatch: got=%d want=%d", i, len(c.Dense), vectorSize)
		}
	}
	if err := s.EnsureCollection(ctx, vectorSize); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  map[string]any `json:"vector"`
		Payload qdrantPayload  `json:"payload"`
	}
	points := make([]point, 0, len(chunks))
	for _, c := range chunks {
		points = append(points, point{
			ID: qdrantPointID(c.ID),
			Vector: map[string]any{
				s.cfg.DenseVectorName:  c.Dense,
				s.cfg.SparseVectorName: encodeSparse(c.Sparse),
			},
			Payload: qdrantPayload{ChunkID: c.ID, Text: c.Text, Metadata: c.Metadata},
		})
	}

	path, err := s.collectionPath("/points?wait=true")
	if err != nil {
		return err
	}
	if err := s.doJSON(ctx, http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
		return err
	}
	s.logger.Debug("qdrant upsert completed", zap.Int("count", len(chunks)))
	return nil
}

// SearchDense 使用命名稠密向量检索.
func (s *QdrantChunkStore) SearchDense(ctx context.Context, vector []float64, k int, filter *MetadataFilter) ([]ScoredChunk, error) {
	if k <= 0 {
		return []ScoredChunk{}, nil
	}
	if len(vector) == 0 {
		return nil, types.NewInvalidRequestError("query vector is required")
	}
	return s.query(ctx, qdrantQueryRequest{
		Query:       vector,
		Using:       s.cfg.DenseVectorName,
		Limit:       k,
		Filter:      buildFilter(filter),
		WithPayload: true,
	})
}

// SearchSparse 使用命名稀疏向量检索.
func (s *QdrantChunkStore) SearchSparse(ctx context.Context, query SparseVector, k int, filter *MetadataFilter) ([]ScoredChunk, error) {
	if k <= 0 || len(query) == 0 {
		return []ScoredChunk{}, nil
	}
	return s.query(ctx, qdrantQueryRequest{
		Query:       encodeSparse(query),
		Using:       s.cfg.SparseVectorName,
		Limit:       k,
		Filter:      buildFilter(filter),
		WithPayload: true,
	})
}

// HybridQuery 由 Qdrant 在服务端做 prefetch + RRF 融合.
func (s *QdrantChunkStore) HybridQuery(ctx context.Context, dense []float64, sparse SparseVector, prefetch, limit int, filter *MetadataFilter) ([]ScoredChunk, error) {
	if limit <= 0 {
		return []ScoredChunk{}, nil
	}
	req := qdrantQueryRequest{
		Query:       map[string]string{"fusion": "rrf"},
		Limit:       limit,
		Filter:      buildFilter(filter),
		WithPayload: true,
	}
	if len(dense) > 0 {
		req.Prefetch = append(req.Prefetch, qdrantPrefetch{Query: dense, Using: s.cfg.DenseVectorName, Limit: prefetch})
	}
	if len(sparse) > 0 {
		req.Prefetch = append(req.Prefetch, qdrantPrefetch{Query: encodeSparse(sparse), Using: s.cfg.SparseVectorName, Limit: prefetch})
	}
	if len(req.Prefetch) == 0 {
		return []ScoredChunk{}, nil
	}
	return s.query(ctx, req)
}

func (s *QdrantChunkStore) query(ctx context.Context, req qdrantQueryRequest) ([]ScoredChunk, error) {
	path, err := s.collectionPath("/points/query")
	if err != nil {
		return nil, err
	}
	var resp qdrantQueryResponse
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	out := make([]ScoredChunk, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		out = append(out, ScoredChunk{Chunk: p.toChunk(), Score: p.Score})
	}
	return out, nil
}

func (p qdrantPoint) toChunk() Chunk {
	id := p.Payload.ChunkID
	if id == "" {
		// Fallback to point ID if payload does not include chunk_id.
		id = fmt.Sprint(p.ID)
	}
	return Chunk{ID: id, Text: p.Payload.Text, Metadata: p.Payload.Metadata}
}

// Get 按块 ID 取回 payload.
func (s *QdrantChunkStore) Get(ctx context.Context, ids []string) ([]Chunk, error) {
	if len(ids) == 0 {
		return []Chunk{}, nil
	}
	pointIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrantPointID(id))
	}
	path, err := s.collectionPath("/points")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result []qdrantPoint `json:"result"`
	}
	req := map[string]any{"ids": pointIDs, "with_payload": true}
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	out := make([]Chunk, 0, len(resp.Result))
	for _, p := range resp.Result {
		out = append(out, p.toChunk())
	}
	return out, nil
}

// Count 返回集合中的点数量.
func (s *QdrantChunkStore) Count(ctx context.Context) (int, error) {
	path, err := s.collectionPath("/points/count")
	if err != nil {
		return 0, err
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodPost, path, map[string]bool{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *QdrantChunkStore) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(s.cfg.APIKey) != "" {
		// Qdrant convention.
		req.Header.Set("api-key", s.cfg.APIKey)
	}
}

func (s *QdrantChunkStore) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return types.NewTimeoutError("qdrant request timed out").WithCause(err).WithProvider("qdrant")
		}
		return types.NewError(types.ErrServiceUnavailable, "qdrant unreachable").
			WithCause(err).
			WithHTTPStatus(http.StatusServiceUnavailable).
			WithRetryable(true).
			WithProvider("qdrant")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := providers.ReadErrorMessage(resp.Body)
		return providers.MapHTTPError(resp.StatusCode, fmt.Sprintf("qdrant %s %s: %s", method, path, msg), "qdrant")
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewError(types.ErrMalformedResponse, "decode qdrant response").WithCause(err).WithProvider("qdrant")
	}
	return nil
}
