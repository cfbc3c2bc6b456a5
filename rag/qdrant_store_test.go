package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/BaSui01/askflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const qdrantPointsBody = `{
	"status": "ok",
	"result": {"points": [
		{"id": "p1", "score": 0.9, "payload": {"chunk_id": "smi-1", "text": "SMI for a family of 4 is $92,041", "metadata": {"document_id": "smi-table.pdf", "page": 3, "fiscal_year": "FY2024"}}},
		{"id": "p2", "score": 0.4, "payload": {"text": "no chunk id"}}
	]}
}`

func TestQdrantChunkStore_UpsertAndSearch(t *testing.T) {
	t.Parallel()

	var createCalls, upsertCalls, queryCalls, countCalls atomic.Int64
	var mu sync.Mutex
	var lastQuery map[string]any
	captured := func() map[string]any {
		mu.Lock()
		defer mu.Unlock()
		return lastQuery
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/collections/chunks", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		createCalls.Add(1)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body["vectors"], "dense")
		assert.Contains(t, body["sparse_vectors"], "sparse")
		_, _ = w.Write([]byte(`{"status":"ok","result":true}`))
	})
	mux.HandleFunc("/collections/chunks/points", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			assert.Contains(t, r.URL.RawQuery, "wait=true")
			upsertCalls.Add(1)

			var req struct {
				Points []struct {
					ID      string         `json:"id"`
					Vector  map[string]any `json:"vector"`
					Payload qdrantPayload  `json:"payload"`
				} `json:"points"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Len(t, req.Points, 2)
			for _, p := range req.Points {
				assert.NotEmpty(t, p.ID)
				assert.Contains(t, p.Vector, "dense")
				assert.Contains(t, p.Vector, "sparse")
				assert.NotEmpty(t, p.Payload.ChunkID)
			}
			_, _ = w.Write([]byte(`{"status":"ok","result":{"operation_id":1}}`))
		case http.MethodPost:
			_, _ = w.Write([]byte(`{"status":"ok","result":[{"id":"p1","payload":{"chunk_id":"smi-1","text":"t","metadata":{"document_id":"d","page":1}}}]}`))
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})
	mux.HandleFunc("/collections/chunks/points/query", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		queryCalls.Add(1)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		lastQuery = body
		mu.Unlock()
		_, _ = w.Write([]byte(qdrantPointsBody))
	})
	mux.HandleFunc("/collections/chunks/points/count", func(w http.ResponseWriter, r *http.Request) {
		countCalls.Add(1)
		_, _ = w.Write([]byte(`{"status":"ok","result":{"count":2}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store := NewQdrantChunkStore(QdrantConfig{
		BaseURL:              srv.URL,
		Collection:           "chunks",
		AutoCreateCollection: true,
	}, zap.NewNop())
	ctx := context.Background()
	enc := NewTermEncoder()

	err := store.Upsert(ctx, []Chunk{
		{ID: "smi-1", Text: "SMI family of 4", Dense: []float64{1, 0}, Sparse: enc.Encode("SMI family of 4")},
		{ID: "ccs-1", Text: "CCS overview", Dense: []float64{0, 1}, Sparse: enc.Encode("CCS overview")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), createCalls.Load())
	assert.Equal(t, int64(1), upsertCalls.Load())

	dense, err := store.SearchDense(ctx, []float64{1, 0}, 5, &MetadataFilter{FiscalYear: "FY2024"})
	require.NoError(t, err)
	require.Len(t, dense, 2)
	assert.Equal(t, "smi-1", dense[0].Chunk.ID)
	assert.Equal(t, 3, dense[0].Chunk.Metadata.Page)
	assert.Equal(t, "p2", dense[1].Chunk.ID, "point id is used when payload lacks chunk_id")
	assert.Equal(t, "dense", captured()["using"])
	filter := captured()["filter"].(map[string]any)
	must := filter["must"].([]any)
	require.Len(t, must, 1)
	assert.Equal(t, "metadata.fiscal_year", must[0].(map[string]any)["key"])

	_, err = store.SearchSparse(ctx, enc.Encode("family income"), 5, nil)
	require.NoError(t, err)
	assert.Equal(t, "sparse", captured()["using"])
	assert.Nil(t, captured()["filter"])

	_, err = store.HybridQuery(ctx, []float64{1, 0}, enc.Encode("family"), 100, 8, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"fusion": "rrf"}, captured()["query"])
	assert.Len(t, captured()["prefetch"], 2)
	assert.Equal(t, int64(3), queryCalls.Load())

	got, err := store.Get(ctx, []string{"smi-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "smi-1", got[0].ID)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestQdrantChunkStore_ErrorMapping(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":{"error":"overloaded"}}`))
	}))
	t.Cleanup(srv.Close)

	store := NewQdrantChunkStore(QdrantConfig{BaseURL: srv.URL, Collection: "chunks"}, nil)
	_, err := store.SearchDense(context.Background(), []float64{1}, 3, nil)
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
	assert.True(t, strings.Contains(err.Error(), "qdrant"))
}

func TestQdrantChunkStore_RequiresCollection(t *testing.T) {
	t.Parallel()

	store := NewQdrantChunkStore(QdrantConfig{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := store.Count(context.Background())
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestEncodeSparse_MergesCollisionsAndSorts(t *testing.T) {
	t.Parallel()

	out := encodeSparse(SparseVector{"family": 1, "income": 2, "cutoff": 0.5})
	require.Len(t, out.Indices, 3)
	require.Len(t, out.Values, 3)
	for i := 1; i < len(out.Indices); i++ {
		assert.Less(t, out.Indices[i-1], out.Indices[i])
	}
	var sum float64
	for _, v := range out.Values {
		sum += v
	}
	assert.InDelta(t, 3.5, sum, 1e-9)
}
