package orchestrator

import (
	"github.com/BaSui01/askflow/hitl"
	"github.com/BaSui01/askflow/rag"
	"github.com/BaSui01/askflow/workflow"
)

const graphName = "askflow"

// buildGraph 组装单轮执行图. 每条边在有限步内到达终止节点:
// REWRITE 受 MaxRewrite 约束, REGENERATE 受 MaxValidation 约束.
func (o *Orchestrator) buildGraph() (*workflow.Graph[TurnState, StateUpdate], error) {
	b := workflow.NewGraphBuilder[TurnState, StateUpdate](graphName, mergeState).
		WithLogger(o.logger).
		WithMaxSteps(o.config.MaxSteps)
	for _, obs := range o.observers {
		b.WithObserver(obs)
	}

	b.AddNode(NodeRoute, o.route).
		AddNode(NodeReformulate, o.reformulate).
		AddNode(NodeRetrieve, o.retrieve).
		AddNode(NodeRerank, o.rerank).
		AddNode(NodeRewrite, o.rewrite).
		AddNode(NodeGenerate, o.generate).
		AddNode(NodeValidate, o.validate).
		AddNode(NodeRegenerate, o.regenerate).
		AddNode(NodeFallback, o.fallback).
		AddNode(NodeFinalize, o.finalize).
		AddNode(NodeLocation, o.location).
		AddNode(NodeGenerateDirect, o.generateDirect).
		AddNode(NodeOutOfScope, o.outOfScope).
		AddNode(NodeClarify, o.clarify)

	b.WithDegrade(NodeRoute, o.degradeRoute).
		WithDegrade(NodeReformulate, o.degradeReformulate).
		WithDegrade(NodeRetrieve, o.degradeRetrieve).
		WithDegrade(NodeRerank, o.degradeRerank).
		WithDegrade(NodeGenerate, degradeGenerate(NodeGenerate, 0)).
		WithDegrade(NodeRegenerate, degradeGenerate(NodeRegenerate, 1)).
		WithDegrade(NodeValidate, o.degradeValidate).
		WithDegrade(NodeLocation, o.degradeLocation).
		WithDegrade(NodeGenerateDirect, o.degradeGenerateDirect)

	b.AddConditionalEdge(NodeRoute, routeEdge,
		NodeReformulate, NodeRetrieve, NodeLocation, NodeGenerateDirect, NodeOutOfScope, NodeClarify)
	b.AddEdge(NodeReformulate, NodeRetrieve)
	b.AddConditionalEdge(NodeRetrieve, retrieveEdge, NodeGenerate, NodeRerank)
	b.AddConditionalEdge(NodeRerank, o.rerankEdge, NodeRewrite, NodeGenerate)
	b.AddEdge(NodeRewrite, NodeRetrieve)
	b.AddConditionalEdge(NodeGenerate, generatedEdge, NodeFallback, NodeFinalize, NodeValidate)
	b.AddConditionalEdge(NodeRegenerate, generatedEdge, NodeFallback, NodeFinalize, NodeValidate)
	b.AddConditionalEdge(NodeValidate, o.validateEdge, NodeFinalize, NodeRegenerate, NodeClarify, NodeFallback)

	for _, terminal := range []string{NodeFallback, NodeFinalize, NodeLocation, NodeGenerateDirect, NodeOutOfScope, NodeClarify} {
		b.AddEdge(terminal, workflow.END)
	}

	return b.SetEntry(NodeRoute).Build()
}

func routeEdge(s TurnState) string {
	switch s.Decision.Route {
	case rag.RouteRAG:
		if len(s.History) > 0 && !s.Resumed {
			return NodeReformulate
		}
		return NodeRetrieve
	case rag.RouteLocation:
		return NodeLocation
	case rag.RouteConversational:
		return NodeGenerateDirect
	case rag.RouteOutOfScope:
		return NodeOutOfScope
	case rag.RouteClarify:
		return NodeClarify
	default:
		return NodeRetrieve
	}
}

func retrieveEdge(s TurnState) string {
	if s.Retrieval == nil || len(s.Retrieval.Results) == 0 {
		return NodeGenerate
	}
	return NodeRerank
}

// rerankEdge 重排后没有任何候选时改写查询重试; 裁判失败或跳过重排时不视为不相关.
func (o *Orchestrator) rerankEdge(s TurnState) string {
	r := s.Rerank
	if r != nil && len(r.Candidates) == 0 && !r.Skipped && !r.JudgeFailed && r.Input > 0 &&
		s.Counters.Rewrite < o.config.MaxRewrite {
		return NodeRewrite
	}
	return NodeGenerate
}

func generatedEdge(s TurnState) string {
	switch {
	case s.GenerationFailed || s.Draft == nil:
		return NodeFallback
	case s.Draft.NoInfo:
		return NodeFinalize
	default:
		return NodeValidate
	}
}

func (o *Orchestrator) validateEdge(s TurnState) string {
	if s.Verdict == nil || s.Verdict.Passed {
		return NodeFinalize
	}
	if s.Counters.Validation < o.config.MaxValidation {
		return NodeRegenerate
	}
	if o.config.ClarifyOnValidationExhausted {
		return NodeClarify
	}
	return NodeFallback
}

// resumeTrigger 澄清轮次的触发原因
func resumeTrigger(p *hitl.PendingClarification) hitl.Trigger {
	if p == nil || p.Trigger == "" {
		return hitl.TriggerClarifyRoute
	}
	return p.Trigger
}
