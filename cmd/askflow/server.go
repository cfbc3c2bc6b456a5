package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/BaSui01/askflow/api/handlers"
	"github.com/BaSui01/askflow/config"
	"github.com/BaSui01/askflow/hitl"
	"github.com/BaSui01/askflow/internal/cache"
	"github.com/BaSui01/askflow/internal/database"
	"github.com/BaSui01/askflow/internal/metrics"
	"github.com/BaSui01/askflow/internal/server"
	"github.com/BaSui01/askflow/internal/telemetry"
	"github.com/BaSui01/askflow/internal/turnlog"
	"github.com/BaSui01/askflow/llm/embedding"
	"github.com/BaSui01/askflow/llm/providers/openaicompat"
	"github.com/BaSui01/askflow/llm/tokenizer"
	"github.com/BaSui01/askflow/memory"
	"github.com/BaSui01/askflow/orchestrator"
	"github.com/BaSui01/askflow/rag"
	"github.com/BaSui01/askflow/rag/loader"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 组装问答流水线并对外提供 HTTP 接口.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	collector *metrics.Collector

	httpManager   *server.Manager
	healthHandler *handlers.HealthHandler
	chatHandler   *handlers.ChatHandler
	threadHandler *handlers.ThreadHandler

	orchestrator *orchestrator.Orchestrator

	// 在 HTTP 服务停止后按逆序释放
	closers []server.Closer

	rateLimiterCancel context.CancelFunc
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otel *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: otel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化依赖, 组装编排器并启动 HTTP 服务 (非阻塞).
func (s *Server) Start(ctx context.Context) error {
	s.collector = metrics.NewCollector("askflow", s.logger)
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	orch, err := s.buildOrchestrator(ctx)
	if err != nil {
		return fmt.Errorf("failed to build orchestrator: %w", err)
	}
	s.orchestrator = orch

	s.chatHandler = handlers.NewChatHandler(orch, s.logger,
		handlers.WithRequestTimeout(s.cfg.Server.RequestTimeout),
		handlers.WithMaxBodyBytes(s.cfg.Server.MaxBodyBytes),
	)
	s.threadHandler = handlers.NewThreadHandler(orch, s.logger)

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.logger.Info("askflow started",
		zap.String("addr", s.httpManager.Addr()),
		zap.String("retrieval_store", s.cfg.Retrieval.Store),
		zap.String("retrieval_mode", s.cfg.Retrieval.Mode),
		zap.String("clarification_store", s.cfg.Clarification.Store),
		zap.Bool("turn_log", s.cfg.Database.Enabled),
	)
	return nil
}

// buildOrchestrator 按配置创建各流水线组件.
func (s *Server) buildOrchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	cfg := s.cfg
	logger := s.logger

	// LLM: OpenAI 兼容客户端 → 指标包装 → 超时/限流/重试适配器
	chatProvider := openaicompat.New(cfg.ChatProvider(), logger)
	client := rag.NewProviderClient(metrics.InstrumentProvider(chatProvider, s.collector), cfg.ProviderClient(), logger)
	s.healthHandler.RegisterCheck(handlers.NewFuncCheck("llm", func(ctx context.Context) error {
		_, err := chatProvider.HealthCheck(ctx)
		return err
	}))

	embedder := embedding.NewOpenAIProvider(cfg.EmbeddingProvider())

	store, err := s.buildChunkStore(ctx, embedder)
	if err != nil {
		return nil, err
	}

	retriever, err := rag.NewHybridRetriever(store, embedder, cfg.HybridRetrieval(), logger)
	if err != nil {
		return nil, err
	}

	pending, err := s.buildPendingStore()
	if err != nil {
		return nil, err
	}

	threads := memory.NewInMemoryStore(cfg.ThreadMemory(), logger)
	s.onShutdown("thread_memory", func(context.Context) error { return threads.Close() })

	components := orchestrator.Components{
		Router:       rag.NewQueryRouter(client, cfg.QueryRouter(), logger),
		Reformulator: rag.NewReformulator(client, cfg.Reformulator(), logger),
		Analyzer:     rag.NewQueryAnalyzer(nil, nil),
		Retriever:    retriever,
		Reranker:     rag.NewLLMReranker(client, cfg.Reranker(), logger),
		Generator:    rag.NewGenerator(client, tokenizer.ForModel(cfg.TokenizerModel(), logger), cfg.Generator(), logger),
		Validator:    rag.NewValidator(client, cfg.Validator(), logger),
		Clarifier:    hitl.NewClarificationManager(client, pending, cfg.Clarifier(), logger),
		Locations:    rag.NewLocationDirectory(cfg.Locations),
		Chat:         client,
		Memory:       threads,
	}

	opts := []orchestrator.Option{orchestrator.WithMetrics(s.collector)}
	if s.telemetry != nil {
		opts = append(opts, orchestrator.WithTracerProvider(s.telemetry.TracerProvider()))
	}
	if cfg.Database.Enabled {
		recorder, err := s.buildTurnLog()
		if err != nil {
			// 审计日志不可用不影响问答
			logger.Warn("turn log disabled", zap.Error(err))
		} else {
			opts = append(opts, orchestrator.WithRecorder(recorder))
		}
	}

	return orchestrator.New(components, cfg.OrchestratorSettings(), logger, opts...)
}

// buildChunkStore 创建块存储. memory 存储从语料快照加载; qdrant 存储只读,
// 语料通过 `askflow corpus load` 写入.
func (s *Server) buildChunkStore(ctx context.Context, embedder rag.QueryEmbedder) (rag.ChunkStore, error) {
	switch s.cfg.Retrieval.Store {
	case "qdrant":
		store := rag.NewQdrantChunkStore(s.cfg.VectorStore(), s.logger)
		s.healthHandler.RegisterCheck(handlers.NewFuncCheck("qdrant", func(ctx context.Context) error {
			_, err := store.Count(ctx)
			return err
		}))
		return store, nil

	default:
		store := rag.NewInMemoryChunkStore(s.logger)
		if s.cfg.Retrieval.CorpusPath == "" {
			s.logger.Warn("retrieval.corpus_path not set, serving an empty corpus")
			return store, nil
		}
		n, err := loader.NewSnapshotLoader(embedder, s.logger).LoadInto(ctx, s.cfg.Retrieval.CorpusPath, store)
		if err != nil {
			return nil, fmt.Errorf("load corpus: %w", err)
		}
		s.logger.Info("corpus loaded", zap.Int("chunks", n))
		return store, nil
	}
}

// buildPendingStore 创建澄清挂起记录存储
func (s *Server) buildPendingStore() (hitl.PendingStore, error) {
	if s.cfg.Clarification.Store != "redis" {
		return hitl.NewInMemoryPendingStore(nil), nil
	}

	manager, err := cache.NewManager(s.cfg.Cache(), s.logger, cache.WithCollector(s.collector))
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	s.onShutdown("redis", func(context.Context) error { return manager.Close() })
	s.healthHandler.RegisterCheck(handlers.NewFuncCheck("redis", manager.Ping))
	return hitl.NewRedisPendingStore(manager), nil
}

// buildTurnLog 打开数据库并创建轮次审计日志
func (s *Server) buildTurnLog() (*turnlog.Recorder, error) {
	db, err := database.Open(s.cfg.Database.Driver, s.cfg.Database.DSN(), s.logger)
	if err != nil {
		return nil, err
	}
	pool, err := database.NewPoolManager(db, s.cfg.Pool(), s.logger, database.WithCollector(s.collector))
	if err != nil {
		return nil, err
	}
	s.onShutdown("database", func(context.Context) error { return pool.Close() })
	s.healthHandler.RegisterCheck(handlers.NewFuncCheck("database", pool.Ping))

	recorder := turnlog.NewRecorder(pool.DB(), s.collector, s.logger)
	if err := recorder.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate turn log: %w", err)
	}
	return recorder, nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册路由并返回带中间件链的 handler.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(handlers.VersionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/chat", s.chatHandler.HandleChat)
	mux.HandleFunc("POST /v1/threads", s.threadHandler.HandleCreate)
	mux.HandleFunc("GET /v1/threads/{id}", s.threadHandler.HandleGet)
	mux.HandleFunc("DELETE /v1/threads/{id}", s.threadHandler.HandleDelete)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		Authenticate(s.cfg.Auth, skipAuthPaths, s.logger),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)
}

func (s *Server) onShutdown(name string, fn func(ctx context.Context) error) {
	s.closers = append(s.closers, server.Closer{Name: name, Close: fn})
}

func (s *Server) startHTTPServer() error {
	s.httpManager = server.NewManager(s.routes(), s.cfg.HTTPServer(), s.logger)

	// 遥测最先注册, 最后关闭, 以便导出关闭阶段的 span
	if s.telemetry != nil {
		s.httpManager.OnShutdown("telemetry", s.telemetry.Shutdown)
	}
	for _, c := range s.closers {
		s.httpManager.OnShutdown(c.Name, c.Close)
	}
	s.httpManager.OnShutdown("rate_limiter", func(context.Context) error {
		s.rateLimiterCancel()
		return nil
	})

	return s.httpManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Wait 阻塞到 ctx 结束或服务器异常退出, 然后优雅关闭.
func (s *Server) Wait(ctx context.Context) error {
	return s.httpManager.Wait(ctx)
}
