package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Route 是路由器的封闭输出集合.
type Route string

const (
	RouteRAG            Route = "rag"            // 需要检索支撑的回答
	RouteLocation       Route = "location"       // 地点查询, 模板回答
	RouteConversational Route = "conversational" // 寒暄/元问题, 直接回答
	RouteOutOfScope     Route = "out_of_scope"   // 领域外, 固定拒答
	RouteClarify        Route = "clarify"        // 过于模糊, 需要澄清
)

// Routes 返回全部路由, 顺序固定.
func Routes() []Route {
	return []Route{RouteRAG, RouteLocation, RouteConversational, RouteOutOfScope, RouteClarify}
}

// ParseRoute 解析路由名称 (大小写与空白不敏感).
func ParseRoute(s string) (Route, bool) {
	normalized := Route(strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))))
	switch normalized {
	case RouteRAG, RouteLocation, RouteConversational, RouteOutOfScope, RouteClarify:
		return normalized, true
	default:
		return "", false
	}
}

// RoutingDecision 路由决定
type RoutingDecision struct {
	Route      Route   `json:"route"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`

	// Proposed 是分类器给出的原始路由; 被默认规则覆盖时与 Route 不同.
	Proposed Route `json:"proposed,omitempty"`
	// DefaultReason 非空表示使用了默认路由: low_confidence, classifier_error, unknown_route.
	DefaultReason string `json:"default_reason,omitempty"`
}

// Defaulted 判断是否因默认规则落到 rag.
func (d RoutingDecision) Defaulted() bool { return d.DefaultReason != "" }

// QueryRouterConfig 配置路由器
type QueryRouterConfig struct {
	// ConfidenceThreshold 低于该置信度时默认走 rag.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// EnableRules 对问候语等明显情况跳过 LLM 调用.
	EnableRules bool `json:"enable_rules" yaml:"enable_rules"`
}

// DefaultQueryRouterConfig 返回默认配置
func DefaultQueryRouterConfig() QueryRouterConfig {
	return QueryRouterConfig{
		ConfidenceThreshold: 0.5,
		EnableRules:         true,
	}
}

var greetingPattern = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|good (morning|afternoon|evening)|thanks|thank you|thx|bye|goodbye)[\s!.,]*$`)

// QueryRouter 将查询分类到封闭的路由集合; 从不返回错误.
type QueryRouter struct {
	client LLMClient
	config QueryRouterConfig
	logger *zap.Logger
}

// NewQueryRouter 创建路由器
func NewQueryRouter(client LLMClient, config QueryRouterConfig, logger *zap.Logger) *QueryRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryRouter{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "query_router")),
	}
}

// Route 决定查询的路由; 分类失败或低置信度时默认 rag.
func (r *QueryRouter) Route(ctx context.Context, query string) RoutingDecision {
	if r.config.EnableRules && greetingPattern.MatchString(query) {
		return RoutingDecision{Route: RouteConversational, Proposed: RouteConversational, Confidence: 1, Reasoning: "greeting"}
	}

	var out struct {
		Route      string  `json:"route"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	user := fmt.Sprintf("Message: %s", query)
	if err := r.client.Classify(ctx, RouterSystemPrompt, user, &out); err != nil {
		r.logger.Warn("router failed, defaulting to rag", zap.Error(err))
		return RoutingDecision{Route: RouteRAG, DefaultReason: "classifier_error"}
	}

	route, ok := ParseRoute(out.Route)
	if !ok {
		r.logger.Warn("router returned unknown route, defaulting to rag", zap.String("route", out.Route))
		return RoutingDecision{Route: RouteRAG, Confidence: out.Confidence, Reasoning: out.Reasoning, DefaultReason: "unknown_route"}
	}

	decision := RoutingDecision{
		Route:      route,
		Proposed:   route,
		Confidence: clamp01(out.Confidence),
		Reasoning:  out.Reasoning,
	}
	if decision.Confidence < r.config.ConfidenceThreshold && route != RouteRAG {
		decision.Route = RouteRAG
		decision.DefaultReason = "low_confidence"
	}

	r.logger.Debug("routing decision",
		zap.String("query", truncateRunes(query, 50)),
		zap.String("route", string(decision.Route)),
		zap.String("proposed", string(decision.Proposed)),
		zap.Float64("confidence", decision.Confidence))
	return decision
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
