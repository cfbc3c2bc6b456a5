// =============================================================================
// 📦 askflow 默认配置
// =============================================================================
// 检索与重排相关的默认值来自调参结果, 更换语料后需要重新验证
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/askflow/rag"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:        DefaultServerConfig(),
		Log:           DefaultLogConfig(),
		Telemetry:     DefaultTelemetryConfig(),
		LLM:           DefaultLLMConfig(),
		Embedding:     DefaultEmbeddingConfig(),
		Retrieval:     DefaultRetrievalConfig(),
		Rerank:        DefaultRerankConfig(),
		Generation:    DefaultGenerationConfig(),
		Validation:    DefaultValidationConfig(),
		Router:        DefaultRouterConfig(),
		Reformulation: DefaultReformulationConfig(),
		Orchestrator:  DefaultOrchestratorConfig(),
		Memory:        DefaultMemoryConfig(),
		Clarification: DefaultClarificationConfig(),
		Redis:         DefaultRedisConfig(),
		Qdrant:        DefaultQdrantConfig(),
		Database:      DefaultDatabaseConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    150 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RequestTimeout:  120 * time.Second,
		MaxBodyBytes:    1 << 20,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "askflow",
		SampleRate:   0.1,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "openai",
		BaseURL:     "https://api.openai.com",
		Model:       "gpt-4o-mini",
		Temperature: 0,
		MaxTokens:   1024,
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		Burst:       1,
	}
}

// DefaultEmbeddingConfig 返回默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    15 * time.Second,
	}
}

// DefaultRetrievalConfig 返回默认检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	d := rag.DefaultHybridRetrievalConfig()
	return RetrievalConfig{
		Store:    "qdrant",
		Mode:     string(d.Mode),
		Prefetch: d.Prefetch,
		RRFK:     d.RRFK,
		TopN:     d.TopN,
	}
}

// DefaultRerankConfig 返回默认重排配置
func DefaultRerankConfig() RerankConfig {
	d := rag.DefaultRerankConfig()
	return RerankConfig{
		Percentile:        d.Percentile,
		MinKeep:           d.MinKeep,
		MaxKeep:           d.MaxKeep,
		RelevanceFloor:    d.RelevanceFloor,
		FiscalYearBoost:   d.FiscalYearBoost,
		DocumentTypeBoost: d.DocumentTypeBoost,
		TopicTagBoost:     d.TopicTagBoost,
		MaxCandidates:     d.MaxCandidates,
		MaxChunkChars:     d.MaxChunkChars,
		BypassLimit:       d.BypassLimit,
	}
}

// DefaultGenerationConfig 返回默认生成配置
func DefaultGenerationConfig() GenerationConfig {
	d := rag.DefaultGeneratorConfig()
	return GenerationConfig{
		HistoryTurns:     d.HistoryTurns,
		MaxContextTokens: d.MaxContextTokens,
		MaxAnswerChars:   d.MaxAnswerChars,
		NoInfoAnswer:     d.NoInfoAnswer,
	}
}

// DefaultValidationConfig 返回默认校验配置
func DefaultValidationConfig() ValidationConfig {
	d := rag.DefaultValidatorConfig()
	return ValidationConfig{
		MinConfidence: d.MinConfidence,
		MaxChunkChars: d.MaxChunkChars,
		Caveat:        d.Caveat,
	}
}

// DefaultRouterConfig 返回默认路由配置
func DefaultRouterConfig() RouterConfig {
	d := rag.DefaultQueryRouterConfig()
	return RouterConfig{
		ConfidenceThreshold: d.ConfidenceThreshold,
		EnableRules:         d.EnableRules,
	}
}

// DefaultReformulationConfig 返回默认改写配置
func DefaultReformulationConfig() ReformulationConfig {
	d := rag.DefaultReformulatorConfig()
	return ReformulationConfig{
		MaxHistoryTurns: d.MaxHistoryTurns,
		MaxAnswerChars:  d.MaxAnswerChars,
	}
}

// DefaultOrchestratorConfig 返回默认编排配置
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxRewrite:        2,
		MaxValidation:     2,
		MaxQuestionLength: 2000,
	}
}

// DefaultMemoryConfig 返回默认记忆配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		TTL:             24 * time.Hour,
		MaxThreads:      10000,
		CleanupInterval: 5 * time.Minute,
		LockTimeout:     30 * time.Second,
	}
}

// DefaultClarificationConfig 返回默认澄清配置
func DefaultClarificationConfig() ClarificationConfig {
	return ClarificationConfig{
		Store:      "memory",
		MinOptions: 2,
		MaxOptions: 4,
		TTL:        30 * time.Minute,
		MaxHistory: 3,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:                "localhost:6379",
		Password:            "",
		DB:                  0,
		KeyPrefix:           "askflow:",
		PoolSize:            10,
		MinIdleConns:        2,
		MaxRetries:          3,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultQdrantConfig 返回默认 Qdrant 配置
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		Host:       "localhost",
		Port:       6333,
		APIKey:     "",
		Collection: "askflow_chunks",
		Timeout:    10 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:             false,
		Driver:              "postgres",
		Host:                "localhost",
		Port:                5432,
		User:                "askflow",
		Password:            "",
		Name:                "askflow",
		SSLMode:             "disable",
		MaxOpenConns:        25,
		MaxIdleConns:        5,
		ConnMaxLifetime:     5 * time.Minute,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}
