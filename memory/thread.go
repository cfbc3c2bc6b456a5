package memory

import (
	"time"

	"github.com/BaSui01/askflow/rag"
)

// RetryCounts 单轮内各循环的计数, 每轮从 0 开始.
type RetryCounts struct {
	Rewrite    int `json:"rewrite"`
	Validation int `json:"validation"`
}

// Turn 一次已完成的请求/响应交换.
type Turn struct {
	TurnID            string       `json:"turn_id"`
	TurnIndex         int          `json:"turn_index"`
	RawQuery          string       `json:"raw_query"`
	ReformulatedQuery *string      `json:"reformulated_query,omitempty"`
	Route             rag.Route    `json:"route"`
	RetrievedChunkIDs []string     `json:"retrieved_chunk_ids"`
	FinalAnswer       string       `json:"final_answer"`
	CitedSources      []rag.Source `json:"cited_sources"`
	ValidationPassed  bool         `json:"validation_passed"`
	RetryCounts       RetryCounts  `json:"retry_counts"`
	CreatedAt         time.Time    `json:"created_at"`
}

// Thread 线程快照
type Thread struct {
	ID        string    `json:"thread_id"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationTurns 将轮次转换为生成与改写使用的问答对.
// 问题优先使用改写后的自包含查询, 回答保留全文.
func ConversationTurns(turns []Turn) []rag.ConversationTurn {
	out := make([]rag.ConversationTurn, 0, len(turns))
	for _, t := range turns {
		q := t.RawQuery
		if t.ReformulatedQuery != nil && *t.ReformulatedQuery != "" {
			q = *t.ReformulatedQuery
		}
		out = append(out, rag.ConversationTurn{Question: q, Answer: t.FinalAnswer})
	}
	return out
}

func cloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
