package orchestrator

import (
	"github.com/BaSui01/askflow/hitl"
	"github.com/BaSui01/askflow/memory"
	"github.com/BaSui01/askflow/rag"
	"github.com/BaSui01/askflow/workflow"
)

// 节点名称
const (
	NodeRoute          = "ROUTE"
	NodeReformulate    = "REFORMULATE"
	NodeRetrieve       = "RETRIEVE"
	NodeRerank         = "RERANK"
	NodeRewrite        = "REWRITE"
	NodeGenerate       = "GENERATE"
	NodeValidate       = "VALIDATE"
	NodeRegenerate     = "REGENERATE"
	NodeFallback       = "FALLBACK"
	NodeFinalize       = "FINALIZE"
	NodeLocation       = "LOCATION"
	NodeGenerateDirect = "GENERATE_DIRECT"
	NodeOutOfScope     = "OUT_OF_SCOPE"
	NodeClarify        = "CLARIFY"
)

// Outcome 一轮的终止方式
type Outcome string

const (
	OutcomeAnswer        Outcome = "answer"        // 正常回答
	OutcomeFallback      Outcome = "fallback"      // 校验未通过或生成失败, 附带说明
	OutcomeClarification Outcome = "clarification" // 挂起等待用户澄清
)

// ScoredDraft 草稿及其校验置信度
type ScoredDraft struct {
	Draft      *rag.Draft
	Confidence float64
}

// TurnState 单轮执行状态. 节点只读取, 通过 StateUpdate 修改.
type TurnState struct {
	TurnID    string
	ThreadID  string
	Stateless bool
	Resumed   bool // 澄清后恢复的轮次

	RawQuery     string
	Query        string  // 当前用于检索与生成的查询
	Reformulated *string // 改写后的自包含查询; 未改写为 nil
	History      []rag.ConversationTurn

	Decision  rag.RoutingDecision
	Hints     rag.QueryHints
	Retrieval *rag.RetrievalOutcome
	Rerank    *rag.RerankOutcome

	Draft            *rag.Draft
	BestDraft        *ScoredDraft
	Verdict          *rag.Verdict
	GenerationFailed bool

	Counters memory.RetryCounts

	Outcome       Outcome
	Answer        string
	Sources       []rag.Source
	Clarification *hitl.Proposal
	Trigger       hitl.Trigger

	Degraded []string // 降级过的节点, 按发生顺序
}

// finalAnswer 终止节点写入的结果
type finalAnswer struct {
	Outcome Outcome
	Answer  string
	Sources []rag.Source
}

// StateUpdate 节点返回的部分更新; nil 与零值字段保持原状态.
type StateUpdate struct {
	Query        *string
	Reformulated *string
	Decision     *rag.RoutingDecision
	Hints        *rag.QueryHints
	Retrieval    *rag.RetrievalOutcome
	Rerank       *rag.RerankOutcome
	Draft        *rag.Draft
	BestDraft    *ScoredDraft
	Verdict      *rag.Verdict

	GenerationFailed bool

	// 计数器只增不减: RewriteInc 只在 REWRITE 设置, ValidationInc 只在 REGENERATE 设置
	RewriteInc    int
	ValidationInc int

	Final         *finalAnswer
	Clarification *hitl.Proposal
	Trigger       hitl.Trigger

	Degraded []string
}

var (
	replaceString    = workflow.OptionalReducer[string]()
	replaceRetrieval = workflow.OptionalReducer[rag.RetrievalOutcome]()
	replaceRerank    = workflow.OptionalReducer[rag.RerankOutcome]()
	replaceDraft     = workflow.OptionalReducer[rag.Draft]()
	replaceBest      = workflow.OptionalReducer[ScoredDraft]()
	replaceVerdict   = workflow.OptionalReducer[rag.Verdict]()
	replaceProposal  = workflow.OptionalReducer[hitl.Proposal]()
	addCount         = workflow.SumReducer[int]()
	appendNodes      = workflow.AppendReducer[string]()
)

// mergeState 合并节点更新. 新的检索结果使上一次重排结果失效.
func mergeState(s TurnState, u StateUpdate) TurnState {
	if u.Query != nil {
		s.Query = *u.Query
	}
	s.Reformulated = replaceString(s.Reformulated, u.Reformulated)
	if u.Decision != nil {
		s.Decision = *u.Decision
	}
	if u.Hints != nil {
		s.Hints = *u.Hints
	}
	if u.Retrieval != nil {
		s.Retrieval = replaceRetrieval(s.Retrieval, u.Retrieval)
		s.Rerank = nil
	}
	s.Rerank = replaceRerank(s.Rerank, u.Rerank)
	s.Draft = replaceDraft(s.Draft, u.Draft)
	s.BestDraft = replaceBest(s.BestDraft, u.BestDraft)
	s.Verdict = replaceVerdict(s.Verdict, u.Verdict)
	s.GenerationFailed = s.GenerationFailed || u.GenerationFailed

	s.Counters.Rewrite = addCount(s.Counters.Rewrite, u.RewriteInc)
	s.Counters.Validation = addCount(s.Counters.Validation, u.ValidationInc)

	if u.Final != nil {
		s.Outcome = u.Final.Outcome
		s.Answer = u.Final.Answer
		s.Sources = u.Final.Sources
	}
	s.Clarification = replaceProposal(s.Clarification, u.Clarification)
	if u.Trigger != "" {
		s.Trigger = u.Trigger
		s.Outcome = OutcomeClarification
	}
	s.Degraded = appendNodes(s.Degraded, u.Degraded)
	return s
}

// contextChunks 返回生成使用的块: 重排后的候选; 检索为空时为空.
func (s TurnState) contextChunks() []rag.Chunk {
	if s.Retrieval == nil || len(s.Retrieval.Results) == 0 || s.Rerank == nil {
		return nil
	}
	return s.Rerank.Chunks()
}

// ValidationPassed 最终回答是否通过校验 (或无需校验).
func (s TurnState) ValidationPassed() bool {
	return s.Outcome == OutcomeAnswer && (s.Verdict == nil || s.Verdict.Passed)
}

// RerankSkipped 本轮是否跳过了重排
func (s TurnState) RerankSkipped() bool {
	return s.Rerank != nil && s.Rerank.Skipped
}

// FilterFallback 本轮检索是否发生了过滤回退
func (s TurnState) FilterFallback() bool {
	return s.Retrieval != nil && s.Retrieval.FilterFallback
}

// retrievedChunkIDs 最近一次检索返回的块 ID
func (s TurnState) retrievedChunkIDs() []string {
	if s.Retrieval == nil {
		return []string{}
	}
	return s.Retrieval.ChunkIDs()
}

// suspendedTurn 挂起时保存的部分状态
type suspendedTurn struct {
	RawQuery     string             `json:"raw_query"`
	Query        string             `json:"query"`
	Reformulated *string            `json:"reformulated,omitempty"`
	Route        rag.Route          `json:"route"`
	Counters     memory.RetryCounts `json:"counters"`
	Degraded     []string           `json:"degraded,omitempty"`
}
