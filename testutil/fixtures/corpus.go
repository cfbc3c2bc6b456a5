// Package fixtures 提供测试数据工厂：预置语料、脚本化 LLM 响应与地点目录。
package fixtures

import (
	"github.com/BaSui01/askflow/rag"
)

// 语料中的关键数值
const (
	SMIFamilyOf4    = "$92,041"
	IncomeCutoffOf4 = "$78,235" // 85% of SMI
)

// ProgramCorpus 返回一组小型的公共项目文档块 (不含向量)。
func ProgramCorpus() []rag.Chunk {
	raw := []struct {
		id, text, doc, fy, dt string
		page                  int
		kind                  rag.ChunkKind
		tags                  []string
	}{
		{
			id:   "ccs-overview",
			text: "CCS (Child Care Subsidy) is a state program that helps eligible families pay for child care while parents work or attend school.",
			doc:  "ccs-fact-sheet.pdf", dt: "fact_sheet", page: 1, kind: rag.ChunkKindNarrative,
			tags: []string{"subsidy"},
		},
		{
			id:   "smi-table-2024",
			text: "State median income (SMI) FY2024: family of 2 $65,990; family of 3 $81,519; family of 4 $92,041; family of 5 $106,768.",
			doc:  "smi-table-fy2024.pdf", fy: "FY2024", dt: "rate_table", page: 2, kind: rag.ChunkKindTable,
			tags: []string{"eligibility", "income"},
		},
		{
			id:   "eligibility-rule",
			text: "Initial eligibility: a family qualifies when gross monthly income is at or below 85% of the state median income (SMI) for the family size.",
			doc:  "policy-manual.pdf", fy: "FY2024", dt: "policy_manual", page: 14, kind: rag.ChunkKindNarrative,
			tags: []string{"eligibility", "income"},
		},
		{
			id:   "budget-2024",
			text: "The child care subsidy budget for FY2024 was $1.2 billion, an increase of 8% over the prior year.",
			doc:  "annual-report-fy2024.pdf", fy: "FY2024", dt: "budget", page: 7, kind: rag.ChunkKindNarrative,
		},
		{
			id:   "waitlist-2024",
			text: "The CCS waitlist grew to 12,000 children by spring of FY2024.",
			doc:  "annual-report-fy2024.pdf", fy: "FY2024", dt: "annual_report", page: 9, kind: rag.ChunkKindNarrative,
			tags: []string{"waitlist"},
		},
		{
			id:   "workforce-wages",
			text: "Median hourly wage for child care staff rose 6% after the stabilization grants.",
			doc:  "outcomes-report-fy2023.pdf", fy: "FY2023", dt: "annual_report", page: 4, kind: rag.ChunkKindNarrative,
			tags: []string{"outcomes", "workforce"},
		},
	}

	out := make([]rag.Chunk, 0, len(raw))
	for _, r := range raw {
		out = append(out, rag.Chunk{
			ID:   r.id,
			Text: r.text,
			Metadata: rag.ChunkMetadata{
				DocumentID:   r.doc,
				Page:         r.page,
				URL:          "https://docs.example.org/" + r.doc,
				FiscalYear:   r.fy,
				DocumentType: r.dt,
				TopicTags:    r.tags,
				ChunkKind:    r.kind,
			},
		})
	}
	return out
}

// NewProgramStore 创建装载了 ProgramCorpus 的内存块存储; embed 为空时不生成稠密向量。
func NewProgramStore(embed func(string) []float64) *rag.InMemoryChunkStore {
	store := rag.NewInMemoryChunkStore(nil)
	chunks := ProgramCorpus()
	if embed != nil {
		for i := range chunks {
			chunks[i].Dense = embed(chunks[i].Text)
		}
	}
	if err := store.Add(chunks...); err != nil {
		panic(err)
	}
	return store
}

// Locations 返回测试用的地点目录配置
func Locations() []rag.Location {
	return []rag.Location{
		{
			Name:     "Downtown Family Services Office",
			Keywords: []string{"downtown", "main office"},
			Address:  "100 Main St, Suite 200",
			Hours:    "Mon-Fri 8:00-17:00",
			Phone:    "(555) 010-2000",
			URL:      "https://example.org/offices/downtown",
		},
		{
			Name:     "Eastside Resource Center",
			Keywords: []string{"eastside", "east side"},
			Address:  "42 Harbor Ave",
			Hours:    "Tue-Sat 9:00-16:00",
			URL:      "https://example.org/offices/eastside",
		},
	}
}
