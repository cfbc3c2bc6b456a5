package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/askflow/hitl"
	"github.com/BaSui01/askflow/rag"
	"go.uber.org/zap"
)

// =============================================================================
// 节点
// =============================================================================

func (o *Orchestrator) route(ctx context.Context, s TurnState) (StateUpdate, error) {
	d := o.router.Route(ctx, s.Query)
	o.metrics.RecordRouteDecision(string(d.Route), d.Defaulted())
	return StateUpdate{Decision: &d}, nil
}

// degradeRoute 路由器意外失败时按分类器错误处理: 默认走 rag.
func (o *Orchestrator) degradeRoute(s TurnState, err error) StateUpdate {
	d := rag.RoutingDecision{Route: rag.RouteRAG, DefaultReason: "classifier_error"}
	o.metrics.RecordRouteDecision(string(d.Route), true)
	return StateUpdate{Decision: &d, Degraded: []string{NodeRoute}}
}

func (o *Orchestrator) reformulate(ctx context.Context, s TurnState) (StateUpdate, error) {
	r := o.reformulator.Reformulate(ctx, s.Query, s.History)
	u := StateUpdate{Query: &r.Query, Reformulated: r.Rewritten}
	if r.Degraded {
		u.Degraded = []string{NodeReformulate}
	}
	return u, nil
}

// degradeReformulate 改写意外失败时保留原查询.
func (o *Orchestrator) degradeReformulate(s TurnState, err error) StateUpdate {
	return StateUpdate{Degraded: []string{NodeReformulate}}
}

func (o *Orchestrator) retrieve(ctx context.Context, s TurnState) (StateUpdate, error) {
	hints := o.analyzer.Analyze(s.Query)
	outcome, err := o.retriever.Retrieve(ctx, s.Query, hints)
	if err != nil {
		return StateUpdate{}, err
	}
	if outcome.FilterFallback {
		o.metrics.RecordFilterFallback()
	}
	return StateUpdate{Hints: &hints, Retrieval: outcome}, nil
}

// degradeRetrieve 检索失败时按空结果继续, 最终得到无信息回答.
func (o *Orchestrator) degradeRetrieve(s TurnState, err error) StateUpdate {
	return StateUpdate{
		Retrieval: &rag.RetrievalOutcome{Query: s.Query, Results: []rag.RetrievalResult{}},
		Degraded:  []string{NodeRetrieve},
	}
}

func (o *Orchestrator) rerank(ctx context.Context, s TurnState) (StateUpdate, error) {
	outcome := o.reranker.Rerank(ctx, s.Query, s.Hints, s.Retrieval.Results, s.Retrieval.PreRanked)
	if outcome.Skipped {
		o.metrics.RecordRerankSkipped()
	}
	u := StateUpdate{Rerank: outcome}
	if outcome.JudgeFailed {
		u.Degraded = []string{NodeRerank}
	}
	return u, nil
}

// degradeRerank 重排意外失败时与裁判失败相同: 候选未评分透传.
func (o *Orchestrator) degradeRerank(s TurnState, err error) StateUpdate {
	outcome := &rag.RerankOutcome{Input: len(s.Retrieval.Results), JudgeFailed: true}
	for _, r := range s.Retrieval.Results {
		outcome.Candidates = append(outcome.Candidates, rag.RerankedCandidate{Chunk: r.Chunk})
	}
	return StateUpdate{Rerank: outcome, Degraded: []string{NodeRerank}}
}

func (o *Orchestrator) rewrite(ctx context.Context, s TurnState) (StateUpdate, error) {
	attempt := s.Counters.Rewrite + 1
	query, err := o.reformulator.Broaden(ctx, s.Query, attempt)
	u := StateUpdate{RewriteInc: 1}
	if err != nil {
		o.logger.Warn("query rewrite failed, retrying with the current query",
			zap.Int("attempt", attempt),
			zap.Error(err))
		u.Degraded = []string{NodeRewrite}
		return u, nil
	}
	u.Query = &query
	o.logger.Debug("query rewritten after irrelevant retrieval",
		zap.Int("attempt", attempt),
		zap.String("query", query))
	return u, nil
}

func (o *Orchestrator) generate(ctx context.Context, s TurnState) (StateUpdate, error) {
	draft, err := o.generator.Generate(ctx, rag.GenerateRequest{
		Query:   s.Query,
		Chunks:  s.contextChunks(),
		History: s.History,
	})
	if err != nil {
		return StateUpdate{}, err
	}
	return StateUpdate{Draft: draft}, nil
}

func (o *Orchestrator) regenerate(ctx context.Context, s TurnState) (StateUpdate, error) {
	req := rag.GenerateRequest{
		Query:   s.Query,
		Chunks:  s.contextChunks(),
		History: s.History,
	}
	if s.Draft != nil {
		req.PreviousDraft = s.Draft.Answer
	}
	if s.Verdict != nil {
		req.Issues = s.Verdict.Issues
	}
	draft, err := o.generator.Generate(ctx, req)
	if err != nil {
		return StateUpdate{}, err
	}
	return StateUpdate{Draft: draft, ValidationInc: 1}, nil
}

// degradeGenerate 生成失败时转入回退.
func degradeGenerate(node string, validationInc int) func(TurnState, error) StateUpdate {
	return func(s TurnState, err error) StateUpdate {
		return StateUpdate{GenerationFailed: true, ValidationInc: validationInc, Degraded: []string{node}}
	}
}

func (o *Orchestrator) validate(ctx context.Context, s TurnState) (StateUpdate, error) {
	verdict := o.validator.Validate(ctx, s.Query, s.Draft)
	u := StateUpdate{Verdict: &verdict}
	if verdict.Skipped {
		u.Degraded = []string{NodeValidate}
	}
	if s.BestDraft == nil || verdict.Confidence > s.BestDraft.Confidence {
		u.BestDraft = &ScoredDraft{Draft: s.Draft, Confidence: verdict.Confidence}
	}
	return u, nil
}

// degradeValidate 校验意外失败时与校验器不可用相同: 跳过校验.
func (o *Orchestrator) degradeValidate(s TurnState, err error) StateUpdate {
	return StateUpdate{
		Verdict:  &rag.Verdict{Passed: true, Skipped: true},
		Degraded: []string{NodeValidate},
	}
}

func (o *Orchestrator) finalize(_ context.Context, s TurnState) (StateUpdate, error) {
	return StateUpdate{Final: &finalAnswer{
		Outcome: OutcomeAnswer,
		Answer:  s.Draft.Answer,
		Sources: s.Draft.Sources,
	}}, nil
}

// fallback 返回置信度最高的草稿并附加不确定性说明; 没有可用草稿时返回固定回答.
func (o *Orchestrator) fallback(_ context.Context, s TurnState) (StateUpdate, error) {
	draft := s.Draft
	if s.BestDraft != nil {
		draft = s.BestDraft.Draft
	}
	if draft == nil || draft.NoInfo || strings.TrimSpace(draft.Answer) == "" {
		return StateUpdate{Final: &finalAnswer{Outcome: OutcomeFallback, Answer: UnavailableAnswer, Sources: []rag.Source{}}}, nil
	}
	o.logger.Info("returning best draft with caveat",
		zap.Int("validation_retries", s.Counters.Validation),
		zap.Bool("generation_failed", s.GenerationFailed))
	return StateUpdate{Final: &finalAnswer{
		Outcome: OutcomeFallback,
		Answer:  o.validator.WithCaveat(draft.Answer),
		Sources: draft.Sources,
	}}, nil
}

func (o *Orchestrator) location(_ context.Context, s TurnState) (StateUpdate, error) {
	answer, sources, err := o.locations.Answer(s.Query)
	if err != nil {
		return StateUpdate{}, err
	}
	return StateUpdate{Final: &finalAnswer{Outcome: OutcomeAnswer, Answer: answer, Sources: sources}}, nil
}

func (o *Orchestrator) degradeLocation(s TurnState, err error) StateUpdate {
	return StateUpdate{
		Final:    &finalAnswer{Outcome: OutcomeAnswer, Answer: rag.NoLocationsAnswer, Sources: []rag.Source{}},
		Degraded: []string{NodeLocation},
	}
}

func (o *Orchestrator) generateDirect(ctx context.Context, s TurnState) (StateUpdate, error) {
	var b strings.Builder
	if len(s.History) > 0 {
		history := s.History
		if len(history) > 3 {
			history = history[len(history)-3:]
		}
		fmt.Fprintf(&b, "Conversation so far:\n%s\n\n", rag.FormatHistory(history, 500))
	}
	fmt.Fprintf(&b, "Message: %s", s.Query)

	text, err := o.chat.Generate(ctx, rag.ConversationalSystemPrompt, b.String())
	if err != nil {
		return StateUpdate{}, err
	}
	if strings.TrimSpace(text) == "" {
		return StateUpdate{}, fmt.Errorf("empty conversational reply")
	}
	return StateUpdate{Final: &finalAnswer{Outcome: OutcomeAnswer, Answer: strings.TrimSpace(text), Sources: []rag.Source{}}}, nil
}

func (o *Orchestrator) degradeGenerateDirect(s TurnState, err error) StateUpdate {
	return StateUpdate{
		Final:    &finalAnswer{Outcome: OutcomeAnswer, Answer: o.config.GreetingAnswer, Sources: []rag.Source{}},
		Degraded: []string{NodeGenerateDirect},
	}
}

func (o *Orchestrator) outOfScope(_ context.Context, s TurnState) (StateUpdate, error) {
	return StateUpdate{Final: &finalAnswer{Outcome: OutcomeAnswer, Answer: o.config.OutOfScopeAnswer, Sources: []rag.Source{}}}, nil
}

func (o *Orchestrator) clarify(ctx context.Context, s TurnState) (StateUpdate, error) {
	trigger := hitl.TriggerClarifyRoute
	if s.Verdict != nil && !s.Verdict.Passed {
		trigger = hitl.TriggerValidationExhausted
	}
	proposal := o.clarifier.Propose(ctx, s.Query, s.History)
	return StateUpdate{Clarification: &proposal, Trigger: trigger}, nil
}
