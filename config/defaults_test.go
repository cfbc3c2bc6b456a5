package config

import (
	"testing"
	"time"

	"github.com/BaSui01/askflow/orchestrator"
	"github.com/BaSui01/askflow/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, EmbeddingConfig{}, cfg.Embedding)
	assert.NotEqual(t, RetrievalConfig{}, cfg.Retrieval)
	assert.NotEqual(t, RerankConfig{}, cfg.Rerank)
	assert.NotEqual(t, GenerationConfig{}, cfg.Generation)
	assert.NotEqual(t, ValidationConfig{}, cfg.Validation)
	assert.NotEqual(t, RouterConfig{}, cfg.Router)
	assert.NotEqual(t, ReformulationConfig{}, cfg.Reformulation)
	assert.NotEqual(t, OrchestratorConfig{}, cfg.Orchestrator)
	assert.NotEqual(t, MemoryConfig{}, cfg.Memory)
	assert.NotEqual(t, ClarificationConfig{}, cfg.Clarification)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, QdrantConfig{}, cfg.Qdrant)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.False(t, cfg.Auth.Enabled())
}

// 可调参数的默认值
func TestDefaultConfig_Tunables(t *testing.T) {
	cfg := DefaultConfig()

	assert.InDelta(t, 0.5, cfg.Router.ConfidenceThreshold, 1e-9)
	assert.InDelta(t, 90, cfg.Rerank.Percentile, 1e-9)
	assert.InDelta(t, 1.2, cfg.Rerank.FiscalYearBoost, 1e-9)
	assert.InDelta(t, 1.15, cfg.Rerank.DocumentTypeBoost, 1e-9)
	assert.InDelta(t, 0.1, cfg.Rerank.TopicTagBoost, 1e-9)
	assert.InDelta(t, 2, cfg.Rerank.RelevanceFloor, 1e-9)
	assert.Equal(t, 8, cfg.Rerank.BypassLimit)
	assert.Equal(t, 100, cfg.Retrieval.Prefetch)
	assert.InDelta(t, 60, cfg.Retrieval.RRFK, 1e-9)
	assert.Equal(t, 30, cfg.Retrieval.TopN)
	assert.Equal(t, 2, cfg.Orchestrator.MaxRewrite)
	assert.Equal(t, 2, cfg.Orchestrator.MaxValidation)
	assert.False(t, cfg.Orchestrator.ClarifyOnValidationExhausted)
	assert.InDelta(t, 0.7, cfg.Validation.MinConfidence, 1e-9)
	assert.Equal(t, 3, cfg.Generation.HistoryTurns)
	assert.Equal(t, 30*time.Minute, cfg.Clarification.TTL)
	assert.Equal(t, 24*time.Hour, cfg.Memory.TTL)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Greater(t, cfg.WriteTimeout, cfg.RequestTimeout, "responses must be writable after a full turn")
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	assert.Equal(t, 20, cfg.RateLimitRPS)
	assert.Equal(t, 40, cfg.RateLimitBurst)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "askflow", cfg.ServiceName)
	assert.InDelta(t, 0.1, cfg.SampleRate, 0.001)
}

func TestConfig_ComponentConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-llm"
	cfg.LLM.MaxRetries = 5
	cfg.LLM.Temperature = 0.3
	cfg.Server.HTTPPort = 9090
	cfg.Retrieval.Mode = "managed"

	assert.Equal(t, ":9090", cfg.HTTPServer().Addr)

	pc := cfg.ProviderClient()
	assert.Equal(t, cfg.LLM.Model, pc.Model)
	assert.InDelta(t, 0.3, float64(pc.Temperature), 1e-6)
	require.NotNil(t, pc.Retry)
	assert.Equal(t, 5, pc.Retry.MaxRetries)

	emb := cfg.EmbeddingProvider()
	assert.Equal(t, "sk-llm", emb.APIKey, "embedding falls back to llm credentials")
	assert.Equal(t, cfg.LLM.BaseURL, emb.BaseURL)

	assert.Equal(t, rag.RetrievalModeManaged, cfg.HybridRetrieval().Mode)
	assert.Equal(t, rag.DefaultRerankConfig(), cfg.Reranker())
	assert.Equal(t, rag.DefaultGeneratorConfig(), cfg.Generator())
	assert.Equal(t, rag.DefaultValidatorConfig(), cfg.Validator())
	assert.Equal(t, rag.DefaultQueryRouterConfig(), cfg.QueryRouter())
	assert.Equal(t, rag.DefaultReformulatorConfig(), cfg.Reformulator())
	assert.Equal(t, cfg.LLM.Model, cfg.TokenizerModel())

	oc := cfg.OrchestratorSettings()
	assert.Equal(t, 2, oc.MaxRewrite)
	assert.Empty(t, oc.OutOfScopeAnswer, "orchestrator fills in built-in answers")
	assert.NoError(t, orchestrator.DefaultConfig().Validate())

	assert.Equal(t, 30*time.Second, cfg.ThreadMemory().LockTimeout)
	clar := cfg.Clarifier()
	assert.Equal(t, 2, clar.MinOptions)
	assert.Equal(t, 4, clar.MaxOptions)
	assert.NotEmpty(t, clar.FallbackOptions)

	assert.Equal(t, "askflow:", cfg.Cache().KeyPrefix)
	assert.Equal(t, cfg.Clarification.TTL, cfg.Cache().DefaultTTL)
	assert.Equal(t, "askflow_chunks", cfg.VectorStore().Collection)
	assert.Equal(t, 25, cfg.Pool().MaxOpenConns)
}
