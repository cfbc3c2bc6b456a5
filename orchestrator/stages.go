package orchestrator

import (
	"context"

	"github.com/BaSui01/askflow/hitl"
	"github.com/BaSui01/askflow/rag"
)

// Router 查询路由; 实现不得返回错误, 失败时自行落到默认路由.
type Router interface {
	Route(ctx context.Context, query string) rag.RoutingDecision
}

// Reformulator 查询改写
type Reformulator interface {
	Reformulate(ctx context.Context, query string, history []rag.ConversationTurn) rag.Reformulation
	Broaden(ctx context.Context, query string, attempt int) (string, error)
}

// Retriever 混合检索
type Retriever interface {
	Retrieve(ctx context.Context, query string, hints rag.QueryHints) (*rag.RetrievalOutcome, error)
}

// Reranker 候选重排
type Reranker interface {
	Rerank(ctx context.Context, query string, hints rag.QueryHints, results []rag.RetrievalResult, preRanked bool) *rag.RerankOutcome
}

// Generator 带引用的回答生成
type Generator interface {
	Generate(ctx context.Context, req rag.GenerateRequest) (*rag.Draft, error)
}

// Validator 草稿校验
type Validator interface {
	Validate(ctx context.Context, query string, draft *rag.Draft) rag.Verdict
	WithCaveat(answer string) string
}

// Clarifier 澄清问题生成与挂起记录管理
type Clarifier interface {
	Propose(ctx context.Context, query string, history []rag.ConversationTurn) hitl.Proposal
	Suspend(ctx context.Context, req hitl.SuspendRequest) (*hitl.PendingClarification, error)
	Resume(ctx context.Context, threadID string) (*hitl.PendingClarification, error)
	Restore(ctx context.Context, pending *hitl.PendingClarification) error
	Discard(ctx context.Context, threadID string) error
}

var (
	_ Router       = (*rag.QueryRouter)(nil)
	_ Reformulator = (*rag.Reformulator)(nil)
	_ Retriever    = (*rag.HybridRetriever)(nil)
	_ Reranker     = (*rag.LLMReranker)(nil)
	_ Generator    = (*rag.Generator)(nil)
	_ Validator    = (*rag.Validator)(nil)
	_ Clarifier    = (*hitl.ClarificationManager)(nil)
)
