package rag

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

var idPool = func() []string {
	ids := make([]string, 40)
	for i := range ids {
		ids[i] = fmt.Sprintf("c%02d", i)
	}
	return ids
}()

func drawRanked(rt *rapid.T, label string) []ScoredChunk {
	perm := rapid.Permutation(idPool).Draw(rt, label)
	n := rapid.IntRange(0, len(perm)).Draw(rt, label+"_len")
	out := make([]ScoredChunk, 0, n)
	for i, id := range perm[:n] {
		// 分数只参与同分比较, 含重复值以覆盖同分情况
		score := float64((n-i)/2) + rapid.Float64Range(0, 0.5).Draw(rt, fmt.Sprintf("%s_score_%d", label, i))/10
		out = append(out, ScoredChunk{Chunk: Chunk{ID: id}, Score: score})
	}
	return out
}

func resultIDs(results []RetrievalResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Chunk.ID
	}
	return ids
}

func TestFuseRRF_Deterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dense := drawRanked(rt, "dense")
		sparse := drawRanked(rt, "sparse")
		topN := rapid.IntRange(1, 50).Draw(rt, "topN")

		first := resultIDs(FuseRRF(dense, sparse, 60, topN))
		second := resultIDs(FuseRRF(dense, sparse, 60, topN))
		if strings.Join(first, ",") != strings.Join(second, ",") {
			rt.Fatalf("fusion not deterministic: %v vs %v", first, second)
		}
		if len(first) > topN {
			rt.Fatalf("returned %d results, top_n is %d", len(first), topN)
		}
	})
}

func TestFuseRRF_TopInBothListsRanksFirst(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dense := drawRanked(rt, "dense")
		sparse := drawRanked(rt, "sparse")
		top := rapid.SampledFrom(idPool).Draw(rt, "top")

		dense = moveToFront(dense, top)
		sparse = moveToFront(sparse, top)

		got := FuseRRF(dense, sparse, 60, 30)
		if len(got) == 0 {
			rt.Fatalf("expected results")
		}
		if got[0].FusionScore < got[len(got)-1].FusionScore {
			rt.Fatalf("results not sorted")
		}
		for _, r := range got {
			if r.Chunk.ID == top {
				if r.FusionScore < got[0].FusionScore {
					rt.Fatalf("chunk ranked first in both lists is not first after fusion: %v", resultIDs(got))
				}
				return
			}
		}
		rt.Fatalf("top chunk %s missing from fused results", top)
	})
}

func moveToFront(list []ScoredChunk, id string) []ScoredChunk {
	out := []ScoredChunk{{Chunk: Chunk{ID: id}, Score: 100}}
	for _, sc := range list {
		if sc.Chunk.ID != id {
			out = append(out, sc)
		}
	}
	return out
}

func TestHybridRetriever_RepeatedRetrievalIsStable(t *testing.T) {
	emb := &bagEmbedder{vocab: testVocab}
	r, err := NewHybridRetriever(newTestStore(emb), emb, DefaultHybridRetrievalConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	words := append([]string{"state", "median", "staff", "grants", "year"}, testVocab...)

	rapid.Check(t, func(rt *rapid.T) {
		terms := rapid.SliceOfN(rapid.SampledFrom(words), 1, 5).Draw(rt, "terms")
		query := strings.Join(terms, " ")

		first, err := r.Retrieve(context.Background(), query, QueryHints{})
		if err != nil {
			rt.Fatal(err)
		}
		for i := 0; i < 3; i++ {
			again, err := r.Retrieve(context.Background(), query, QueryHints{})
			if err != nil {
				rt.Fatal(err)
			}
			if strings.Join(first.ChunkIDs(), ",") != strings.Join(again.ChunkIDs(), ",") {
				rt.Fatalf("query %q: %v then %v", query, first.ChunkIDs(), again.ChunkIDs())
			}
		}
	})
}
