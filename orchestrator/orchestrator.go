package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BaSui01/askflow/api"
	"github.com/BaSui01/askflow/hitl"
	"github.com/BaSui01/askflow/internal/metrics"
	"github.com/BaSui01/askflow/internal/turnlog"
	"github.com/BaSui01/askflow/memory"
	"github.com/BaSui01/askflow/rag"
	"github.com/BaSui01/askflow/types"
	"github.com/BaSui01/askflow/workflow"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Components 流水线各阶段的实现
type Components struct {
	Router       Router
	Reformulator Reformulator
	Analyzer     *rag.QueryAnalyzer // 为空时使用默认词表
	Retriever    Retriever
	Reranker     Reranker
	Generator    Generator
	Validator    Validator
	Clarifier    Clarifier
	Locations    *rag.LocationDirectory // 为空时地点查询返回固定回答
	Chat         rag.LLMClient          // 对话路由的直接回复
	Memory       memory.Store
}

// TurnRecorder 持久化已完成的轮次
type TurnRecorder interface {
	Record(ctx context.Context, entry *turnlog.Entry) error
}

// Option 配置 Orchestrator
type Option func(*Orchestrator)

// WithMetrics 设置 Prometheus 指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithRecorder 设置轮次记录器
func WithRecorder(r TurnRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithTracerProvider 设置 TracerProvider, 默认使用全局 provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) { o.tracerProvider = tp }
}

// WithClock 设置时钟, 用于测试.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithObserver 追加节点观察者
func WithObserver(obs workflow.Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// TurnResult 一轮的完整结果
type TurnResult struct {
	Response *api.ChatResponse
	State    TurnState
	Trace    *workflow.Trace
	Turn     *memory.Turn // 写入记忆的轮次; 无状态请求与澄清为 nil
}

// Orchestrator 驱动单轮问答的状态机.
type Orchestrator struct {
	router       Router
	reformulator Reformulator
	analyzer     *rag.QueryAnalyzer
	retriever    Retriever
	reranker     Reranker
	generator    Generator
	validator    Validator
	clarifier    Clarifier
	locations    *rag.LocationDirectory
	chat         rag.LLMClient
	memory       memory.Store

	config         Config
	logger         *zap.Logger
	metrics        *metrics.Collector
	recorder       TurnRecorder
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	observers      []workflow.Observer
	now            func() time.Time

	graph *workflow.Graph[TurnState, StateUpdate]
}

// New 创建编排器
func New(c Components, config Config, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator config: %w", err)
	}

	o := &Orchestrator{
		router:       c.Router,
		reformulator: c.Reformulator,
		analyzer:     c.Analyzer,
		retriever:    c.Retriever,
		reranker:     c.Reranker,
		generator:    c.Generator,
		validator:    c.Validator,
		clarifier:    c.Clarifier,
		locations:    c.Locations,
		chat:         c.Chat,
		memory:       c.Memory,
		config:       config,
		logger:       logger.With(zap.String("component", "orchestrator")),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.analyzer == nil {
		o.analyzer = rag.NewQueryAnalyzer(nil, nil)
	}
	if o.locations == nil {
		o.locations = rag.NewLocationDirectory(nil)
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	o.tracer = o.tracerProvider.Tracer(instrumentationName)

	obs, err := newNodeObserver(o.tracerProvider, o.metrics)
	if err != nil {
		return nil, fmt.Errorf("create node observer: %w", err)
	}
	o.observers = append([]workflow.Observer{obs}, o.observers...)

	o.graph, err = o.buildGraph()
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	return o, nil
}

func (c Components) validate() error {
	missing := []string{}
	check := func(name string, ok bool) {
		if !ok {
			missing = append(missing, name)
		}
	}
	check("router", c.Router != nil)
	check("reformulator", c.Reformulator != nil)
	check("retriever", c.Retriever != nil)
	check("reranker", c.Reranker != nil)
	check("generator", c.Generator != nil)
	check("validator", c.Validator != nil)
	check("clarifier", c.Clarifier != nil)
	check("chat", c.Chat != nil)
	check("memory", c.Memory != nil)
	if len(missing) > 0 {
		return fmt.Errorf("orchestrator: missing components: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Config 返回生效的配置
func (o *Orchestrator) Config() Config { return o.config }

// Chat 处理一次聊天请求, 返回回答或澄清问题.
func (o *Orchestrator) Chat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
	result, err := o.Process(ctx, req)
	if err != nil {
		return nil, err
	}
	return result.Response, nil
}

// Process 处理一次聊天请求并返回完整结果.
// 带 thread_id 的请求在整轮期间独占该线程; 出错时不写入记忆.
func (o *Orchestrator) Process(ctx context.Context, req api.ChatRequest) (*TurnResult, error) {
	start := o.now()
	req.Question = strings.TrimSpace(req.Question)
	req.ThreadID = strings.TrimSpace(req.ThreadID)
	req.ClarificationReply = strings.TrimSpace(req.ClarificationReply)
	if err := o.validateRequest(req); err != nil {
		return nil, err
	}

	resuming := req.ClarificationReply != ""
	ctx, span := o.tracer.Start(ctx, "askflow.turn",
		trace.WithAttributes(
			attribute.Bool("askflow.stateless", req.ThreadID == ""),
			attribute.Bool("askflow.resume", resuming),
		))
	defer span.End()

	var (
		result *TurnResult
		err    error
	)
	if resuming {
		result, err = o.resume(ctx, req, start)
		// 没有可恢复的记录时, 同时提交的问题按新一轮处理
		if hitl.IsNotFound(err) && req.Question != "" {
			o.logger.Debug("no pending clarification, asking as a new turn",
				zap.String("thread_id", req.ThreadID))
			result, err = o.ask(ctx, req, start)
		}
	} else {
		result, err = o.ask(ctx, req, start)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn("turn failed",
			zap.String("thread_id", req.ThreadID),
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("askflow.route", string(result.State.Decision.Route)),
		attribute.String("askflow.outcome", string(result.State.Outcome)),
		attribute.Int("askflow.steps", result.Trace.Steps),
	)
	return result, nil
}

func (o *Orchestrator) validateRequest(req api.ChatRequest) error {
	if req.ClarificationReply != "" {
		if req.ThreadID == "" {
			return types.NewInvalidRequestError("thread_id is required with clarification_reply")
		}
		if utf8.RuneCountInString(req.ClarificationReply) > o.config.MaxQuestionLength {
			return types.NewInvalidRequestError(
				fmt.Sprintf("clarification_reply exceeds %d characters", o.config.MaxQuestionLength))
		}
	} else if req.Question == "" {
		return types.NewInvalidRequestError("question is required")
	}
	if utf8.RuneCountInString(req.Question) > o.config.MaxQuestionLength {
		return types.NewInvalidRequestError(
			fmt.Sprintf("question exceeds %d characters", o.config.MaxQuestionLength))
	}
	return nil
}

// ask 处理新问题. 线程上未回复的澄清被放弃.
func (o *Orchestrator) ask(ctx context.Context, req api.ChatRequest, start time.Time) (*TurnResult, error) {
	state := TurnState{
		TurnID:   uuid.NewString(),
		RawQuery: req.Question,
		Query:    req.Question,
	}
	if req.ThreadID == "" {
		state.Stateless = true
		return o.run(ctx, state, nil, start)
	}

	session, err := o.memory.Acquire(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}
	defer session.Release()

	if err := o.clarifier.Discard(ctx, req.ThreadID); err != nil {
		o.logger.Warn("failed to discard pending clarification",
			zap.String("thread_id", req.ThreadID),
			zap.Error(err))
	}
	state.ThreadID = session.ThreadID()
	state.History = memory.ConversationTurns(session.Turns())
	return o.run(ctx, state, session, start)
}

// resume 取出挂起记录, 以 "Q, specifically R" 从 RETRIEVE 重新进入.
func (o *Orchestrator) resume(ctx context.Context, req api.ChatRequest, start time.Time) (*TurnResult, error) {
	pending, err := o.clarifier.Resume(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}

	var partial suspendedTurn
	if err := pending.DecodeState(&partial); err != nil {
		return nil, types.NewInternalError("failed to decode suspended turn").WithCause(err)
	}
	rawQuery := partial.RawQuery
	if rawQuery == "" {
		rawQuery = pending.OriginalQuery
	}
	query := pending.ResumeQuery(req.ClarificationReply)

	state := TurnState{
		TurnID:       uuid.NewString(),
		Resumed:      true,
		RawQuery:     rawQuery,
		Query:        query,
		Reformulated: &query,
		Decision: rag.RoutingDecision{
			Route:     rag.RouteRAG,
			Reasoning: "resumed after clarification",
		},
	}
	o.metrics.RecordClarification(string(resumeTrigger(pending)), "resumed")

	if pending.Ephemeral {
		state.Stateless = true
		result, err := o.run(ctx, state, nil, start, workflow.StartAt(NodeRetrieve))
		if err != nil {
			o.restore(ctx, pending)
		}
		return result, err
	}

	session, err := o.memory.Acquire(ctx, pending.ThreadID)
	if err != nil {
		o.restore(ctx, pending)
		return nil, err
	}
	defer session.Release()

	state.ThreadID = session.ThreadID()
	state.History = memory.ConversationTurns(session.Turns())
	result, err := o.run(ctx, state, session, start, workflow.StartAt(NodeRetrieve))
	if err != nil {
		o.restore(ctx, pending)
	}
	return result, err
}

// restore 处理失败时放回挂起记录, 用户可以重试同一回复.
func (o *Orchestrator) restore(ctx context.Context, pending *hitl.PendingClarification) {
	if err := o.clarifier.Restore(context.WithoutCancel(ctx), pending); err != nil {
		o.logger.Warn("failed to restore pending clarification",
			zap.String("thread_id", pending.ThreadID),
			zap.Error(err))
	}
}

func (o *Orchestrator) run(ctx context.Context, state TurnState, session *memory.Session, start time.Time, opts ...workflow.RunOption) (*TurnResult, error) {
	final, tr, err := o.graph.Run(ctx, state, opts...)
	if err != nil {
		return nil, turnError(err)
	}
	elapsed := o.now().Sub(start)
	route := string(final.Decision.Route)

	switch final.Outcome {
	case OutcomeClarification:
		return o.suspend(ctx, final, tr, elapsed)
	case OutcomeAnswer, OutcomeFallback:
	default:
		return nil, types.NewInternalError(fmt.Sprintf("turn ended at %v without an outcome", tr.Path))
	}

	sources := make([]api.Source, 0, len(final.Sources))
	for _, s := range final.Sources {
		sources = append(sources, api.Source{Document: s.Document, Page: s.Page, URL: s.URL})
	}
	resp := api.NewAnswer(final.Answer, sources, route, elapsed)
	resp.Fallback = final.Outcome == OutcomeFallback
	resp.ThreadID = final.ThreadID

	result := &TurnResult{Response: resp, State: final, Trace: tr}
	turnIndex := 0
	if session != nil {
		turn := memory.Turn{
			TurnID:            final.TurnID,
			TurnIndex:         len(session.Turns()),
			RawQuery:          final.RawQuery,
			ReformulatedQuery: final.Reformulated,
			Route:             final.Decision.Route,
			RetrievedChunkIDs: final.retrievedChunkIDs(),
			FinalAnswer:       final.Answer,
			CitedSources:      final.Sources,
			ValidationPassed:  final.ValidationPassed(),
			RetryCounts:       final.Counters,
			CreatedAt:         o.now(),
		}
		if err := session.Append(turn); err != nil {
			return nil, err
		}
		result.Turn = &turn
		turnIndex = turn.TurnIndex
	}

	o.record(ctx, final, turnIndex, elapsed)
	o.metrics.RecordTurn(route, string(final.Outcome), elapsed)
	o.metrics.RecordRetries("rewrite", final.Counters.Rewrite)
	o.metrics.RecordRetries("validation", final.Counters.Validation)
	o.updateThreadGauge()

	o.logger.Info("turn completed",
		zap.String("turn_id", final.TurnID),
		zap.String("thread_id", final.ThreadID),
		zap.String("route", route),
		zap.String("outcome", string(final.Outcome)),
		zap.Strings("path", tr.Path),
		zap.Int("rewrites", final.Counters.Rewrite),
		zap.Int("regenerations", final.Counters.Validation),
		zap.Strings("degraded", final.Degraded),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

// suspend 保存挂起记录并返回澄清问题; 澄清轮次不写入记忆.
func (o *Orchestrator) suspend(ctx context.Context, final TurnState, tr *workflow.Trace, elapsed time.Duration) (*TurnResult, error) {
	threadID := final.ThreadID
	ephemeral := false
	if final.Stateless {
		threadID = uuid.NewString()
		ephemeral = true
	}
	proposal := hitl.Proposal{}
	if final.Clarification != nil {
		proposal = *final.Clarification
	}

	pending, err := o.clarifier.Suspend(ctx, hitl.SuspendRequest{
		ThreadID:  threadID,
		Ephemeral: ephemeral,
		TurnID:    final.TurnID,
		Query:     final.Query,
		Trigger:   final.Trigger,
		Proposal:  proposal,
		PartialState: suspendedTurn{
			RawQuery:     final.RawQuery,
			Query:        final.Query,
			Reformulated: final.Reformulated,
			Route:        final.Decision.Route,
			Counters:     final.Counters,
			Degraded:     final.Degraded,
		},
	})
	if err != nil {
		return nil, err
	}

	o.metrics.RecordClarification(string(final.Trigger), "suspended")
	o.metrics.RecordTurn(string(final.Decision.Route), string(OutcomeClarification), elapsed)
	o.logger.Info("turn suspended",
		zap.String("turn_id", final.TurnID),
		zap.String("thread_id", threadID),
		zap.Bool("ephemeral", ephemeral),
		zap.String("trigger", string(final.Trigger)),
		zap.Strings("path", tr.Path))

	return &TurnResult{
		Response: api.NewClarification(pending.Question, pending.Options, threadID),
		State:    final,
		Trace:    tr,
	}, nil
}

func (o *Orchestrator) record(ctx context.Context, final TurnState, turnIndex int, elapsed time.Duration) {
	if o.recorder == nil {
		return
	}
	sources := make([]turnlog.Source, 0, len(final.Sources))
	for _, s := range final.Sources {
		sources = append(sources, turnlog.Source{Document: s.Document, Page: s.Page, URL: s.URL})
	}
	retrieved := 0
	if final.Retrieval != nil {
		retrieved = len(final.Retrieval.Results)
	}
	entry := &turnlog.Entry{
		TurnID:            final.TurnID,
		ThreadID:          final.ThreadID,
		TurnIndex:         turnIndex,
		Route:             string(final.Decision.Route),
		Outcome:           string(final.Outcome),
		RawQuery:          final.RawQuery,
		ReformulatedQuery: final.Reformulated,
		RewriteCount:      final.Counters.Rewrite,
		ValidationCount:   final.Counters.Validation,
		ValidationPassed:  final.ValidationPassed(),
		RerankSkipped:     final.RerankSkipped(),
		FilterFallback:    final.FilterFallback(),
		Resumed:           final.Resumed,
		RetrievedChunks:   retrieved,
		Sources:           sources,
		Degraded:          final.Degraded,
		LatencyMs:         elapsed.Milliseconds(),
	}
	if err := o.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		o.logger.Warn("failed to record turn", zap.String("turn_id", final.TurnID), zap.Error(err))
	}
}

func (o *Orchestrator) updateThreadGauge() {
	if counter, ok := o.memory.(interface{ Len() int }); ok {
		o.metrics.SetThreadsActive(counter.Len())
	}
}

// turnError 将执行错误映射为带错误码的错误.
func turnError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewTimeoutError("turn deadline exceeded").WithCause(err)
	case errors.Is(err, context.Canceled):
		return types.WrapError(err, types.ErrServiceUnavailable, "turn cancelled")
	}
	if _, ok := types.AsError(err); ok {
		return err
	}
	return types.WrapError(err, types.ErrInternalError, "turn failed")
}

// =============================================================================
// 线程管理
// =============================================================================

// NewThread 创建新线程
func (o *Orchestrator) NewThread(ctx context.Context) (string, error) {
	id, err := o.memory.Create(ctx)
	if err != nil {
		return "", err
	}
	o.updateThreadGauge()
	return id, nil
}

// Thread 返回线程快照
func (o *Orchestrator) Thread(ctx context.Context, threadID string) (*memory.Thread, error) {
	return o.memory.Get(ctx, threadID)
}

// ClearThread 删除线程及其挂起的澄清.
func (o *Orchestrator) ClearThread(ctx context.Context, threadID string) error {
	if err := o.clarifier.Discard(ctx, threadID); err != nil {
		o.logger.Warn("failed to discard pending clarification",
			zap.String("thread_id", threadID),
			zap.Error(err))
	}
	if err := o.memory.Clear(ctx, threadID); err != nil {
		return err
	}
	o.updateThreadGauge()
	return nil
}
