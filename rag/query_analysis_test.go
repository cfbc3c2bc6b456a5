package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryAnalyzer_Analyze(t *testing.T) {
	t.Parallel()

	a := NewQueryAnalyzer(nil, nil)
	tests := []struct {
		query string
		want  QueryHints
	}{
		{"What is the SMI for a family of 4 in FY2024?", QueryHints{FiscalYear: "FY2024", TopicTags: []string{"eligibility"}}},
		{"fiscal year 2023-24 budget", QueryHints{FiscalYear: "FY2024", DocumentType: "budget", TopicTags: []string{}}},
		{"FY 23 annual report", QueryHints{FiscalYear: "FY2023", DocumentType: "annual_report", TopicTags: []string{}}},
		{"smi table in the policy", QueryHints{DocumentType: "rate_table", TopicTags: []string{"eligibility"}}},
		{"What were CCS outcomes for staff wages?", QueryHints{TopicTags: []string{"outcomes", "workforce"}}},
		{"tell me about child care", QueryHints{TopicTags: []string{}}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, a.Analyze(tt.query), tt.query)
	}
}

func TestQueryHints_Filter(t *testing.T) {
	t.Parallel()

	assert.Nil(t, QueryHints{TopicTags: []string{"income"}}.Filter())
	assert.False(t, QueryHints{TopicTags: []string{"income"}}.IsEmpty())
	assert.True(t, QueryHints{}.IsEmpty())

	f := QueryHints{FiscalYear: "FY2024"}.Filter()
	if assert.NotNil(t, f) {
		assert.True(t, f.Matches(ChunkMetadata{FiscalYear: "fy2024", DocumentType: "budget"}))
		assert.False(t, f.Matches(ChunkMetadata{FiscalYear: "FY2023"}))
	}

	var nilFilter *MetadataFilter
	assert.True(t, nilFilter.Matches(ChunkMetadata{}))
}

func TestTermEncoder(t *testing.T) {
	t.Parallel()

	e := NewTermEncoder()
	assert.Equal(t, []string{"smi", "family", "4"}, e.Tokenize("What is the SMI for a family of 4?"))

	v := e.Encode("income income SMI")
	assert.InDelta(t, 1.0, v["smi"], 1e-12)
	assert.Greater(t, v["income"], v["smi"])
	assert.Greater(t, v.Dot(e.Encode("income limits")), 0.0)
	assert.Zero(t, v.Dot(e.Encode("waitlist")))
	assert.Equal(t, termIndex("smi"), termIndex("smi"))
}
