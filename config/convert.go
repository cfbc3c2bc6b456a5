package config

import (
	"fmt"
	"time"

	"github.com/BaSui01/askflow/hitl"
	"github.com/BaSui01/askflow/internal/cache"
	"github.com/BaSui01/askflow/internal/database"
	"github.com/BaSui01/askflow/internal/server"
	"github.com/BaSui01/askflow/llm/embedding"
	"github.com/BaSui01/askflow/llm/providers/openaicompat"
	"github.com/BaSui01/askflow/llm/retry"
	"github.com/BaSui01/askflow/memory"
	"github.com/BaSui01/askflow/orchestrator"
	"github.com/BaSui01/askflow/rag"
)

// 以下方法把配置节转换为各组件自己的配置类型.

// HTTPServer 返回 HTTP 服务器配置
func (c *Config) HTTPServer() server.Config {
	d := server.DefaultConfig()
	d.Addr = fmt.Sprintf(":%d", c.Server.HTTPPort)
	d.ReadTimeout = c.Server.ReadTimeout
	d.WriteTimeout = c.Server.WriteTimeout
	if c.Server.IdleTimeout > 0 {
		d.IdleTimeout = c.Server.IdleTimeout
	}
	d.ShutdownTimeout = c.Server.ShutdownTimeout
	return d
}

// ChatProvider 返回 OpenAI 兼容对话客户端配置
func (c *Config) ChatProvider() openaicompat.Config {
	return openaicompat.Config{
		ProviderName: c.LLM.Provider,
		APIKey:       c.LLM.APIKey,
		BaseURL:      c.LLM.BaseURL,
		DefaultModel: c.LLM.Model,
		Timeout:      c.LLM.Timeout + 5*time.Second,
	}
}

// EmbeddingProvider 返回嵌入客户端配置; 未单独配置的地址与密钥沿用 LLM 配置.
func (c *Config) EmbeddingProvider() embedding.OpenAIConfig {
	cfg := embedding.OpenAIConfig{
		APIKey:     c.Embedding.APIKey,
		BaseURL:    c.Embedding.BaseURL,
		Model:      c.Embedding.Model,
		Dimensions: c.Embedding.Dimensions,
		Timeout:    c.Embedding.Timeout,
	}
	if cfg.APIKey == "" {
		cfg.APIKey = c.LLM.APIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = c.LLM.BaseURL
	}
	return cfg
}

// ProviderClient 返回 LLM 调用适配器配置
func (c *Config) ProviderClient() rag.ProviderClientConfig {
	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = c.LLM.MaxRetries
	return rag.ProviderClientConfig{
		Model:       c.LLM.Model,
		Temperature: float32(c.LLM.Temperature),
		MaxTokens:   c.LLM.MaxTokens,
		Timeout:     c.LLM.Timeout,
		RateLimit:   c.LLM.RateLimit,
		Burst:       c.LLM.Burst,
		Retry:       policy,
	}
}

// HybridRetrieval 返回检索器配置
func (c *Config) HybridRetrieval() rag.HybridRetrievalConfig {
	return rag.HybridRetrievalConfig{
		Mode:           rag.RetrievalMode(c.Retrieval.Mode),
		Prefetch:       c.Retrieval.Prefetch,
		RRFK:           c.Retrieval.RRFK,
		TopN:           c.Retrieval.TopN,
		DenseMinScore:  c.Retrieval.DenseMinScore,
		SparseMinScore: c.Retrieval.SparseMinScore,
	}
}

// Reranker 返回重排配置
func (c *Config) Reranker() rag.RerankConfig {
	r := c.Rerank
	return rag.RerankConfig{
		Percentile:        r.Percentile,
		MinKeep:           r.MinKeep,
		MaxKeep:           r.MaxKeep,
		RelevanceFloor:    r.RelevanceFloor,
		FiscalYearBoost:   r.FiscalYearBoost,
		DocumentTypeBoost: r.DocumentTypeBoost,
		TopicTagBoost:     r.TopicTagBoost,
		MaxCandidates:     r.MaxCandidates,
		MaxChunkChars:     r.MaxChunkChars,
		BypassLimit:       r.BypassLimit,
	}
}

// Generator 返回生成器配置
func (c *Config) Generator() rag.GeneratorConfig {
	return rag.GeneratorConfig{
		HistoryTurns:     c.Generation.HistoryTurns,
		MaxContextTokens: c.Generation.MaxContextTokens,
		MaxAnswerChars:   c.Generation.MaxAnswerChars,
		NoInfoAnswer:     c.Generation.NoInfoAnswer,
	}
}

// TokenizerModel 返回上下文预算使用的分词模型
func (c *Config) TokenizerModel() string {
	if c.Generation.TokenizerModel != "" {
		return c.Generation.TokenizerModel
	}
	return c.LLM.Model
}

// Validator 返回校验器配置
func (c *Config) Validator() rag.ValidatorConfig {
	return rag.ValidatorConfig{
		MinConfidence: c.Validation.MinConfidence,
		MaxChunkChars: c.Validation.MaxChunkChars,
		Caveat:        c.Validation.Caveat,
	}
}

// QueryRouter 返回路由器配置
func (c *Config) QueryRouter() rag.QueryRouterConfig {
	return rag.QueryRouterConfig{
		ConfidenceThreshold: c.Router.ConfidenceThreshold,
		EnableRules:         c.Router.EnableRules,
	}
}

// Reformulator 返回改写器配置
func (c *Config) Reformulator() rag.ReformulatorConfig {
	return rag.ReformulatorConfig{
		MaxHistoryTurns: c.Reformulation.MaxHistoryTurns,
		MaxAnswerChars:  c.Reformulation.MaxAnswerChars,
	}
}

// OrchestratorSettings 返回编排器配置; 空的固定回答使用内置文本.
func (c *Config) OrchestratorSettings() orchestrator.Config {
	o := c.Orchestrator
	return orchestrator.Config{
		MaxRewrite:                   o.MaxRewrite,
		MaxValidation:                o.MaxValidation,
		ClarifyOnValidationExhausted: o.ClarifyOnValidationExhausted,
		MaxQuestionLength:            o.MaxQuestionLength,
		MaxSteps:                     o.MaxSteps,
		OutOfScopeAnswer:             o.OutOfScopeAnswer,
		GreetingAnswer:               o.GreetingAnswer,
	}
}

// ThreadMemory 返回线程存储配置
func (c *Config) ThreadMemory() memory.Config {
	return memory.Config{
		TTL:             c.Memory.TTL,
		MaxThreads:      c.Memory.MaxThreads,
		CleanupInterval: c.Memory.CleanupInterval,
		LockTimeout:     c.Memory.LockTimeout,
	}
}

// Clarifier 返回澄清管理器配置
func (c *Config) Clarifier() hitl.ClarificationConfig {
	d := hitl.DefaultClarificationConfig()
	d.MinOptions = c.Clarification.MinOptions
	d.MaxOptions = c.Clarification.MaxOptions
	d.TTL = c.Clarification.TTL
	d.MaxHistory = c.Clarification.MaxHistory
	return d
}

// Cache 返回 Redis 连接配置
func (c *Config) Cache() cache.Config {
	return cache.Config{
		Addr:                c.Redis.Addr,
		Password:            c.Redis.Password,
		DB:                  c.Redis.DB,
		KeyPrefix:           c.Redis.KeyPrefix,
		DefaultTTL:          c.Clarification.TTL,
		MaxRetries:          c.Redis.MaxRetries,
		PoolSize:            c.Redis.PoolSize,
		MinIdleConns:        c.Redis.MinIdleConns,
		HealthCheckInterval: c.Redis.HealthCheckInterval,
	}
}

// VectorStore 返回 Qdrant 配置; 托管检索依赖服务端的命名向量.
func (c *Config) VectorStore() rag.QdrantConfig {
	return rag.QdrantConfig{
		Host:       c.Qdrant.Host,
		Port:       c.Qdrant.Port,
		BaseURL:    c.Qdrant.BaseURL,
		APIKey:     c.Qdrant.APIKey,
		Collection: c.Qdrant.Collection,
		Timeout:    c.Qdrant.Timeout,
	}
}

// Pool 返回数据库连接池配置
func (c *Config) Pool() database.PoolConfig {
	return database.PoolConfig{
		MaxIdleConns:        c.Database.MaxIdleConns,
		MaxOpenConns:        c.Database.MaxOpenConns,
		ConnMaxLifetime:     c.Database.ConnMaxLifetime,
		ConnMaxIdleTime:     c.Database.ConnMaxIdleTime,
		HealthCheckInterval: c.Database.HealthCheckInterval,
	}
}
