package rag

import (
	"context"
	"strings"
	"sync"
)

// fakeClient 是按系统提示首句分派的 LLMClient 替身.
type fakeClient struct {
	mu       sync.Mutex
	generate func(system, user string) (string, error)
	classify func(system, user string) (string, error)
	prompts  []string
}

func (f *fakeClient) record(user string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, user)
}

func (f *fakeClient) Generate(_ context.Context, system, user string) (string, error) {
	f.record(user)
	if f.generate == nil {
		return "", nil
	}
	return f.generate(system, user)
}

func (f *fakeClient) Classify(_ context.Context, system, user string, out any) error {
	f.record(user)
	text, err := f.classify(system, user)
	if err != nil {
		return err
	}
	return DecodeJSONObject(text, out)
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeClient) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func jsonReply(s string) func(string, string) (string, error) {
	return func(string, string) (string, error) { return s, nil }
}

func errReply(err error) func(string, string) (string, error) {
	return func(string, string) (string, error) { return "", err }
}

// bagEmbedder 把文本映射到固定词表上的词袋向量, 用于确定性的稠密检索.
type bagEmbedder struct {
	vocab []string
	err   error
}

func (e *bagEmbedder) EmbedQuery(_ context.Context, q string) ([]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.embed(q), nil
}

func (e *bagEmbedder) embed(text string) []float64 {
	lower := strings.ToLower(text)
	vec := make([]float64, len(e.vocab))
	for i, w := range e.vocab {
		vec[i] = float64(strings.Count(lower, w))
	}
	return vec
}

var testVocab = []string{"smi", "family", "income", "ccs", "child", "care", "budget", "waitlist", "wage", "outcome"}

func corpusChunks(e *bagEmbedder) []Chunk {
	raw := []struct {
		id, text, doc, fy, dt string
		page                  int
		tags                  []string
	}{
		{"smi-2024", "State median income (SMI) for a family of 4 is $92,041 per year.", "smi-table-fy2024.pdf", "FY2024", "rate_table", 2, []string{"eligibility", "income"}},
		{"smi-2023", "State median income (SMI) for a family of 4 was $87,000 in the prior year.", "smi-table-fy2023.pdf", "FY2023", "rate_table", 2, []string{"eligibility", "income"}},
		{"elig-rule", "Families qualify when income is at or below 85% of SMI for their family size.", "policy-manual.pdf", "FY2024", "policy_manual", 14, []string{"eligibility"}},
		{"ccs-overview", "CCS (Child Care Services) helps families pay for child care.", "ccs-fact-sheet.pdf", "", "fact_sheet", 1, []string{"subsidy"}},
		{"budget-2024", "The child care budget for FY2024 was $1.2 billion.", "annual-report-fy2024.pdf", "FY2024", "budget", 7, nil},
		{"waitlist", "The waitlist grew to 12,000 children in the spring.", "annual-report-fy2024.pdf", "FY2024", "annual_report", 9, []string{"waitlist"}},
		{"wages", "Median wage for child care staff rose 6% after the stabilization grants.", "outcomes-report.pdf", "FY2023", "annual_report", 4, []string{"outcomes", "workforce"}},
	}
	out := make([]Chunk, 0, len(raw))
	for _, r := range raw {
		out = append(out, Chunk{
			ID:    r.id,
			Text:  r.text,
			Dense: e.embed(r.text),
			Metadata: ChunkMetadata{
				DocumentID:   r.doc,
				Page:         r.page,
				URL:          "https://docs.example.org/" + r.doc,
				FiscalYear:   r.fy,
				DocumentType: r.dt,
				TopicTags:    r.tags,
				ChunkKind:    ChunkKindNarrative,
			},
		})
	}
	return out
}

func newTestStore(e *bagEmbedder) *InMemoryChunkStore {
	store := NewInMemoryChunkStore(nil)
	if err := store.Add(corpusChunks(e)...); err != nil {
		panic(err)
	}
	return store
}

func scored(ids ...string) []ScoredChunk {
	out := make([]ScoredChunk, 0, len(ids))
	for i, id := range ids {
		out = append(out, ScoredChunk{Chunk: Chunk{ID: id}, Score: float64(len(ids) - i)})
	}
	return out
}
