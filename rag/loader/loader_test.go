package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BaSui01/askflow/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	calls int
	err   error
}

func (e *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float64, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float64{float64(len(text)), 1}, nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSnapshotLoader_LoadJSONArray(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "corpus.json", `[
		{"id": "a", "text": "Income limits for FY2024", "dense_vector": [0.1, 0.2],
		 "metadata": {"document_id": "SMI Table", "page": 3, "fiscal_year": "2024", "chunk_kind": "table"}},
		{"id": "b", "text": "Eligibility requires residency", "metadata": {"document_id": "Policy Manual", "page": 12}}
	]`)

	emb := &stubEmbedder{}
	chunks, err := NewSnapshotLoader(emb, nil).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, []float64{0.1, 0.2}, chunks[0].Dense)
	assert.Equal(t, rag.ChunkKindTable, chunks[0].Metadata.ChunkKind)
	assert.Equal(t, "2024", chunks[0].Metadata.FiscalYear)

	assert.Equal(t, rag.ChunkKindNarrative, chunks[1].Metadata.ChunkKind)
	assert.NotEmpty(t, chunks[1].Dense, "missing vectors are embedded")
	assert.Equal(t, 1, emb.calls)
}

func TestSnapshotLoader_LoadSingleObject(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "one.json", `{"id": "only", "text": "Office hours are 8-5", "metadata": {"document_id": "Offices"}}`)
	chunks, err := NewSnapshotLoader(nil, nil).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "only", chunks[0].ID)
	assert.Empty(t, chunks[0].Dense)
}

func TestSnapshotLoader_LoadJSONL(t *testing.T) {
	t.Parallel()

	lines := []string{
		`{"id": "1", "text": "first", "metadata": {"document_id": "d", "page": 1}}`,
		``,
		`{"id": "2", "text": "second", "metadata": {"document_id": "d", "page": 2}}`,
	}
	path := writeFile(t, "corpus.jsonl", strings.Join(lines, "\n"))

	chunks, err := NewSnapshotLoader(nil, nil).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 2, chunks[1].Metadata.Page)
}

func TestSnapshotLoader_EmptyFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "empty.json", "  \n")
	chunks, err := NewSnapshotLoader(nil, nil).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSnapshotLoader_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{name: "no extension", file: "corpus", content: "[]", want: "no extension"},
		{name: "unsupported", file: "corpus.csv", content: "a,b", want: "unsupported"},
		{name: "missing id", file: "c.json", content: `[{"text": "x"}]`, want: "has no id"},
		{name: "duplicate id", file: "c.json", content: `[{"id": "a", "text": "x"}, {"id": "a", "text": "y"}]`, want: "duplicate"},
		{name: "empty text", file: "c.json", content: `[{"id": "a", "text": "  "}]`, want: "empty text"},
		{name: "bad json", file: "c.json", content: `[{"id": }]`, want: "parsing array"},
		{name: "bad jsonl line", file: "c.jsonl", content: "{\"id\": \"a\", \"text\": \"x\"}\nnot json", want: "line 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, tt.file, tt.content)
			_, err := NewSnapshotLoader(nil, nil).Load(context.Background(), path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSnapshotLoader_EmbedFailure(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "c.json", `[{"id": "a", "text": "x"}]`)
	_, err := NewSnapshotLoader(&stubEmbedder{err: errors.New("embedding down")}, nil).Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding down")
}

func TestSnapshotLoader_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewSnapshotLoader(nil, nil).Load(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestSnapshotLoader_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSnapshotLoader(nil, nil).Load(ctx, "corpus.json")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotLoader_LoadInto(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "c.jsonl", `{"id": "a", "text": "Income limits by family size", "metadata": {"document_id": "SMI"}}`)
	store := rag.NewInMemoryChunkStore(nil)

	n, err := NewSnapshotLoader(&stubEmbedder{}, nil).LoadInto(context.Background(), path, store)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := store.Get(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].Sparse, "store encodes sparse terms on add")
}
