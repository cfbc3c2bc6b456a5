package rag

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"
)

// TestHybridRetriever_ConcurrentAddAndRetrieve verifies that concurrent
// ingestion into the store and Retrieve calls do not race.
// Run with: go test -race -run TestHybridRetriever_ConcurrentAddAndRetrieve
func TestHybridRetriever_ConcurrentAddAndRetrieve(t *testing.T) {
	t.Parallel()

	emb := &bagEmbedder{vocab: testVocab}
	store := newTestStore(emb)
	retriever, err := NewHybridRetriever(store, emb, DefaultHybridRetrievalConfig(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	const goroutines = 20
	const ops = 30

	var wg sync.WaitGroup
	wg.Add(goroutines * 2)

	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < ops; i++ {
				text := "family income budget"
				_ = store.Add(Chunk{ID: fmt.Sprintf("doc-%d-%d", id, i), Text: text, Dense: emb.embed(text)})
			}
		}(g)
	}

	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < ops; i++ {
				if _, err := retriever.Retrieve(context.Background(), "family income", QueryHints{}); err != nil {
					t.Errorf("Retrieve: %v", err)
					return
				}
			}
		}()
	}

	wg.Wait()
}
