// =============================================================================
// 📦 askflow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("ASKFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量 → 验证
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/askflow/rag"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 askflow 的完整配置结构
type Config struct {
	Server        ServerConfig        `yaml:"server" env:"SERVER"`
	Auth          AuthConfig          `yaml:"auth" env:"AUTH"`
	Log           LogConfig           `yaml:"log" env:"LOG"`
	Telemetry     TelemetryConfig     `yaml:"telemetry" env:"TELEMETRY"`
	LLM           LLMConfig           `yaml:"llm" env:"LLM"`
	Embedding     EmbeddingConfig     `yaml:"embedding" env:"EMBEDDING"`
	Retrieval     RetrievalConfig     `yaml:"retrieval" env:"RETRIEVAL"`
	Rerank        RerankConfig        `yaml:"rerank" env:"RERANK"`
	Generation    GenerationConfig    `yaml:"generation" env:"GENERATION"`
	Validation    ValidationConfig    `yaml:"validation" env:"VALIDATION"`
	Router        RouterConfig        `yaml:"router" env:"ROUTER"`
	Reformulation ReformulationConfig `yaml:"reformulation" env:"REFORMULATION"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator" env:"ORCHESTRATOR"`
	Memory        MemoryConfig        `yaml:"memory" env:"MEMORY"`
	Clarification ClarificationConfig `yaml:"clarification" env:"CLARIFICATION"`
	Redis         RedisConfig         `yaml:"redis" env:"REDIS"`
	Qdrant        QdrantConfig        `yaml:"qdrant" env:"QDRANT"`
	Database      DatabaseConfig      `yaml:"database" env:"DATABASE"`

	// Locations 办公地点目录, 仅支持 YAML
	Locations []rag.Location `yaml:"locations" env:"-"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时, 需大于 RequestTimeout
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 单轮问答的截止时间
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// 请求体上限 (字节)
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	// 每个 IP 的速率限制
	RateLimitRPS   int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许的跨域来源, 为空时不设置 CORS 头
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// AuthConfig 认证配置. API Key 与 JWT 同时配置时任一通过即可.
type AuthConfig struct {
	// 允许的 API Key, 通过 X-API-Key 头传递
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 是否允许通过 ?api_key= 查询参数传递
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	// HMAC 签名密钥, 为空时不启用 JWT
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// 期望的签发者与受众, 为空时不校验
	JWTIssuer   string `yaml:"jwt_issuer" env:"JWT_ISSUER"`
	JWTAudience string `yaml:"jwt_audience" env:"JWT_AUDIENCE"`
}

// Enabled 是否配置了任何认证方式
func (a AuthConfig) Enabled() bool {
	return len(a.APIKeys) > 0 || a.JWTSecret != ""
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// LLMConfig OpenAI 兼容的对话模型配置
type LLMConfig struct {
	// Provider 名称, 仅用于日志与错误
	Provider string `yaml:"provider" env:"PROVIDER"`
	APIKey   string `yaml:"api_key" env:"API_KEY"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
	Model    string `yaml:"model" env:"MODEL"`
	// 采样温度, 路由与校验需要确定性输出
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int     `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 单次调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 瞬时错误的最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 客户端限流 (每秒请求数), 0 表示不限
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	Burst     int     `yaml:"burst" env:"BURST"`
}

// EmbeddingConfig 嵌入服务配置; APIKey 与 BaseURL 为空时沿用 LLM 配置.
type EmbeddingConfig struct {
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Model      string        `yaml:"model" env:"MODEL"`
	Dimensions int           `yaml:"dimensions" env:"DIMENSIONS"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	// 块存储: memory, qdrant
	Store string `yaml:"store" env:"STORE"`
	// memory 存储启动时加载的语料快照 (.json / .jsonl)
	CorpusPath string `yaml:"corpus_path" env:"CORPUS_PATH"`
	// 检索模式: hybrid (本地 RRF), managed (Qdrant 服务端融合)
	Mode string `yaml:"mode" env:"MODE"`
	// 每路检索的候选上限
	Prefetch int `yaml:"prefetch" env:"PREFETCH"`
	// RRF 常数 k
	RRFK float64 `yaml:"rrf_k" env:"RRF_K"`
	// 融合后返回数量
	TopN int `yaml:"top_n" env:"TOP_N"`
	// 单路最低分
	DenseMinScore  float64 `yaml:"dense_min_score" env:"DENSE_MIN_SCORE"`
	SparseMinScore float64 `yaml:"sparse_min_score" env:"SPARSE_MIN_SCORE"`
}

// RerankConfig 重排配置
type RerankConfig struct {
	Percentile        float64 `yaml:"percentile" env:"PERCENTILE"`
	MinKeep           int     `yaml:"min_keep" env:"MIN_KEEP"`
	MaxKeep           int     `yaml:"max_keep" env:"MAX_KEEP"`
	RelevanceFloor    float64 `yaml:"relevance_floor" env:"RELEVANCE_FLOOR"`
	FiscalYearBoost   float64 `yaml:"fiscal_year_boost" env:"FISCAL_YEAR_BOOST"`
	DocumentTypeBoost float64 `yaml:"document_type_boost" env:"DOCUMENT_TYPE_BOOST"`
	TopicTagBoost     float64 `yaml:"topic_tag_boost" env:"TOPIC_TAG_BOOST"`
	MaxCandidates     int     `yaml:"max_candidates" env:"MAX_CANDIDATES"`
	MaxChunkChars     int     `yaml:"max_chunk_chars" env:"MAX_CHUNK_CHARS"`
	BypassLimit       int     `yaml:"bypass_limit" env:"BYPASS_LIMIT"`
}

// GenerationConfig 生成配置
type GenerationConfig struct {
	HistoryTurns     int    `yaml:"history_turns" env:"HISTORY_TURNS"`
	MaxContextTokens int    `yaml:"max_context_tokens" env:"MAX_CONTEXT_TOKENS"`
	MaxAnswerChars   int    `yaml:"max_answer_chars" env:"MAX_ANSWER_CHARS"`
	NoInfoAnswer     string `yaml:"no_info_answer" env:"NO_INFO_ANSWER"`
	// 计算上下文预算使用的分词模型, 为空时使用 LLM 模型
	TokenizerModel string `yaml:"tokenizer_model" env:"TOKENIZER_MODEL"`
}

// ValidationConfig 校验配置
type ValidationConfig struct {
	MinConfidence float64 `yaml:"min_confidence" env:"MIN_CONFIDENCE"`
	MaxChunkChars int     `yaml:"max_chunk_chars" env:"MAX_CHUNK_CHARS"`
	Caveat        string  `yaml:"caveat" env:"CAVEAT"`
}

// RouterConfig 路由配置
type RouterConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"CONFIDENCE_THRESHOLD"`
	EnableRules         bool    `yaml:"enable_rules" env:"ENABLE_RULES"`
}

// ReformulationConfig 指代消解改写配置
type ReformulationConfig struct {
	MaxHistoryTurns int `yaml:"max_history_turns" env:"MAX_HISTORY_TURNS"`
	MaxAnswerChars  int `yaml:"max_answer_chars" env:"MAX_ANSWER_CHARS"`
}

// OrchestratorConfig 状态机配置
type OrchestratorConfig struct {
	MaxRewrite                   int    `yaml:"max_rewrite" env:"MAX_REWRITE"`
	MaxValidation                int    `yaml:"max_validation" env:"MAX_VALIDATION"`
	ClarifyOnValidationExhausted bool   `yaml:"clarify_on_validation_exhausted" env:"CLARIFY_ON_VALIDATION_EXHAUSTED"`
	MaxQuestionLength            int    `yaml:"max_question_length" env:"MAX_QUESTION_LENGTH"`
	MaxSteps                     int    `yaml:"max_steps" env:"MAX_STEPS"`
	OutOfScopeAnswer             string `yaml:"out_of_scope_answer" env:"OUT_OF_SCOPE_ANSWER"`
	GreetingAnswer               string `yaml:"greeting_answer" env:"GREETING_ANSWER"`
}

// MemoryConfig 对话记忆配置
type MemoryConfig struct {
	// 空闲线程的过期时间, 0 表示不过期
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 线程数上限, 0 表示不限
	MaxThreads int `yaml:"max_threads" env:"MAX_THREADS"`
	// 后台清理周期
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
	// 等待线程独占访问的上限
	LockTimeout time.Duration `yaml:"lock_timeout" env:"LOCK_TIMEOUT"`
}

// ClarificationConfig 澄清配置
type ClarificationConfig struct {
	// 挂起记录存储: memory, redis
	Store      string        `yaml:"store" env:"STORE"`
	MinOptions int           `yaml:"min_options" env:"MIN_OPTIONS"`
	MaxOptions int           `yaml:"max_options" env:"MAX_OPTIONS"`
	TTL        time.Duration `yaml:"ttl" env:"TTL"`
	MaxHistory int           `yaml:"max_history" env:"MAX_HISTORY"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 命令重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 后台健康检查间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// QdrantConfig Qdrant 向量存储配置
type QdrantConfig struct {
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// REST 端口
	Port int `yaml:"port" env:"PORT"`
	// 完整地址, 设置后忽略 Host/Port
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key（可选）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 集合名
	Collection string `yaml:"collection" env:"COLLECTION"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DatabaseConfig 数据库配置, 用于轮次审计日志
type DatabaseConfig struct {
	// 是否启用轮次审计日志
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名; sqlite 为文件路径
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 连接最大空闲时间
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
	// 健康检查间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "ASKFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量 → Validate → 自定义验证器
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片, 空项丢弃
		if field.Type().Elem().Kind() == reflect.String {
			var parts []string
			for _, p := range strings.Split(value, ",") {
				if p = strings.TrimSpace(p); p != "" {
					parts = append(parts, p)
				}
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string
	check := func(ok bool, msg string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Sprintf(msg, args...))
		}
	}

	check(c.Server.HTTPPort > 0 && c.Server.HTTPPort <= 65535, "invalid HTTP port %d", c.Server.HTTPPort)
	check(c.Server.RequestTimeout > 0, "server.request_timeout must be positive")
	check(c.Server.RateLimitRPS >= 0, "server.rate_limit_rps must be >= 0")

	check(c.LLM.Model != "", "llm.model is required")
	check(c.LLM.Temperature >= 0 && c.LLM.Temperature <= 2, "llm.temperature must be between 0 and 2")
	check(c.LLM.MaxRetries >= 0, "llm.max_retries must be >= 0")

	switch c.Retrieval.Store {
	case "memory", "qdrant":
	default:
		errs = append(errs, fmt.Sprintf("retrieval.store must be memory or qdrant, got %q", c.Retrieval.Store))
	}
	switch rag.RetrievalMode(c.Retrieval.Mode) {
	case rag.RetrievalModeHybrid:
	case rag.RetrievalModeManaged:
		check(c.Retrieval.Store == "qdrant", "retrieval.mode managed requires retrieval.store qdrant")
	default:
		errs = append(errs, fmt.Sprintf("retrieval.mode must be hybrid or managed, got %q", c.Retrieval.Mode))
	}
	check(c.Retrieval.Prefetch > 0, "retrieval.prefetch must be positive")
	check(c.Retrieval.RRFK > 0, "retrieval.rrf_k must be positive")
	check(c.Retrieval.TopN > 0, "retrieval.top_n must be positive")

	check(c.Rerank.Percentile >= 0 && c.Rerank.Percentile <= 100, "rerank.percentile must be between 0 and 100")
	check(c.Rerank.MinKeep >= 1 && c.Rerank.MinKeep <= c.Rerank.MaxKeep, "rerank.min_keep must be between 1 and max_keep")
	check(c.Rerank.BypassLimit > 0, "rerank.bypass_limit must be positive")

	check(c.Validation.MinConfidence >= 0 && c.Validation.MinConfidence <= 1, "validation.min_confidence must be between 0 and 1")
	check(c.Router.ConfidenceThreshold >= 0 && c.Router.ConfidenceThreshold <= 1, "router.confidence_threshold must be between 0 and 1")
	check(c.Orchestrator.MaxRewrite >= 0, "orchestrator.max_rewrite must be >= 0")
	check(c.Orchestrator.MaxValidation >= 0, "orchestrator.max_validation must be >= 0")

	check(c.Clarification.MinOptions >= 2 && c.Clarification.MinOptions <= c.Clarification.MaxOptions,
		"clarification.min_options must be between 2 and max_options")
	switch c.Clarification.Store {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("clarification.store must be memory or redis, got %q", c.Clarification.Store))
	}

	if c.Database.Enabled {
		switch c.Database.Driver {
		case "postgres", "mysql", "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
		}
	}

	for i, loc := range c.Locations {
		check(loc.Name != "", "locations[%d].name is required", i)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
