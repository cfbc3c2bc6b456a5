package rag

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/BaSui01/askflow/llm"
	"github.com/BaSui01/askflow/llm/retry"
	"github.com/BaSui01/askflow/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LLMClient 是流水线各节点消费的 LLM 能力.
// 调用失败返回 *types.Error; 成功但为空的补全不是错误.
type LLMClient interface {
	// Generate 返回自由文本补全.
	Generate(ctx context.Context, system, user string) (string, error)

	// Classify 请求 JSON 结构化输出并解码到 out.
	Classify(ctx context.Context, system, user string, out any) error
}

// ProviderClientConfig 配置 ProviderClient.
type ProviderClientConfig struct {
	Model       string        `json:"model" yaml:"model"`
	Temperature float32       `json:"temperature" yaml:"temperature"`
	MaxTokens   int           `json:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`       // 单次调用超时
	RateLimit   float64       `json:"rate_limit" yaml:"rate_limit"` // 每秒请求数, 0 表示不限
	Burst       int           `json:"burst" yaml:"burst"`

	// Retry 为空时使用 retry.DefaultRetryPolicy.
	Retry *retry.RetryPolicy `json:"-" yaml:"-"`
}

// DefaultProviderClientConfig 返回默认配置
func DefaultProviderClientConfig() ProviderClientConfig {
	return ProviderClientConfig{
		Model:       "gpt-4o-mini",
		Temperature: 0,
		MaxTokens:   1024,
		Timeout:     30 * time.Second,
		Burst:       1,
	}
}

// ProviderClient 在 llm.Provider 之上提供超时、限流与瞬时错误重试.
type ProviderClient struct {
	provider llm.Provider
	cfg      ProviderClientConfig
	retryer  retry.Retryer
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewProviderClient 创建 LLM 客户端
func NewProviderClient(provider llm.Provider, cfg ProviderClientConfig, logger *zap.Logger) *ProviderClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := &ProviderClient{
		provider: provider,
		cfg:      cfg,
		retryer:  retry.NewBackoffRetryer(cfg.Retry, logger),
		logger:   logger.With(zap.String("component", "llm_client")),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// Generate 返回补全文本
func (c *ProviderClient) Generate(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, system, user, false)
}

// Classify 返回 JSON 并解码到 out
func (c *ProviderClient) Classify(ctx context.Context, system, user string, out any) error {
	text, err := c.complete(ctx, system, user, true)
	if err != nil {
		return err
	}
	return DecodeJSONObject(text, out)
}

func (c *ProviderClient) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", types.NewRateLimitError("llm client rate limit wait failed").WithCause(err)
		}
	}

	messages := make([]llm.Message, 0, 2)
	if system != "" {
		messages = append(messages, llm.NewSystemMessage(system))
	}
	messages = append(messages, llm.NewUserMessage(user))

	return retry.DoTyped(c.retryer, ctx, func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		resp, err := c.provider.Completion(callCtx, &llm.ChatRequest{
			Model:       c.cfg.Model,
			Messages:    messages,
			MaxTokens:   c.cfg.MaxTokens,
			Temperature: c.cfg.Temperature,
			JSONMode:    jsonMode,
			Timeout:     c.cfg.Timeout,
		})
		if err != nil {
			if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !types.IsErrorCode(err, types.ErrTimeout) {
				return "", types.NewTimeoutError("llm call exceeded timeout").WithCause(err).WithProvider(c.provider.Name())
			}
			return "", err
		}
		text, err := llm.ResponseText(resp)
		if err != nil {
			return "", types.NewError(types.ErrEmptyResponse, err.Error()).WithProvider(c.provider.Name())
		}
		return strings.TrimSpace(text), nil
	})
}

// DecodeJSONObject 提取补全中第一个 '{' 到最后一个 '}' 之间的 JSON 并解码.
func DecodeJSONObject(text string, out any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return types.NewError(types.ErrMalformedResponse, "no JSON object in completion")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return types.NewError(types.ErrMalformedResponse, "invalid JSON in completion").WithCause(err)
	}
	return nil
}
