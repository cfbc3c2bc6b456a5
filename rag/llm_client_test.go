package rag

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/askflow/llm"
	"github.com/BaSui01/askflow/llm/retry"
	"github.com/BaSui01/askflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	calls      atomic.Int32
	completion func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

func (p *stubProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.calls.Add(1)
	return p.completion(ctx, req)
}

func (p *stubProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *stubProvider) Name() string { return "stub" }

func textResponse(text string) *llm.ChatResponse {
	return &llm.ChatResponse{Choices: []llm.ChatChoice{{Message: llm.NewAssistantMessage(text)}}}
}

func fastRetry(maxRetries int) *retry.RetryPolicy {
	return &retry.RetryPolicy{MaxRetries: maxRetries, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestProviderClient_Generate(t *testing.T) {
	t.Parallel()

	p := &stubProvider{completion: func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		require.Len(t, req.Messages, 2)
		assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.False(t, req.JSONMode)
		return textResponse("  hello  \n"), nil
	}}
	c := NewProviderClient(p, DefaultProviderClientConfig(), nil)

	text, err := c.Generate(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestProviderClient_ClassifyRequestsJSON(t *testing.T) {
	t.Parallel()

	p := &stubProvider{completion: func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		assert.True(t, req.JSONMode)
		return textResponse(`{"route":"rag","confidence":0.9}`), nil
	}}
	c := NewProviderClient(p, DefaultProviderClientConfig(), nil)

	var out struct {
		Route      string  `json:"route"`
		Confidence float64 `json:"confidence"`
	}
	require.NoError(t, c.Classify(context.Background(), "s", "u", &out))
	assert.Equal(t, "rag", out.Route)
	assert.Equal(t, 0.9, out.Confidence)
}

func TestProviderClient_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	p := &stubProvider{}
	p.completion = func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		if p.calls.Load() < 3 {
			return nil, types.NewError(types.ErrServiceUnavailable, "overloaded").WithRetryable(true)
		}
		return textResponse("ok"), nil
	}
	cfg := DefaultProviderClientConfig()
	cfg.Retry = fastRetry(3)

	text, err := NewProviderClient(p, cfg, nil).Generate(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestProviderClient_RetryIsBounded(t *testing.T) {
	t.Parallel()

	p := &stubProvider{completion: func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, types.NewRateLimitError("slow down")
	}}
	cfg := DefaultProviderClientConfig()
	cfg.Retry = fastRetry(2)

	_, err := NewProviderClient(p, cfg, nil).Generate(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestProviderClient_PermanentErrorNotRetried(t *testing.T) {
	t.Parallel()

	p := &stubProvider{completion: func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, types.NewInvalidRequestError("bad model")
	}}
	cfg := DefaultProviderClientConfig()
	cfg.Retry = fastRetry(3)

	_, err := NewProviderClient(p, cfg, nil).Generate(context.Background(), "s", "u")
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestProviderClient_PerCallTimeout(t *testing.T) {
	t.Parallel()

	p := &stubProvider{completion: func(ctx context.Context, _ *llm.ChatRequest) (*llm.ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cfg := DefaultProviderClientConfig()
	cfg.Timeout = 10 * time.Millisecond
	cfg.Retry = fastRetry(1)

	_, err := NewProviderClient(p, cfg, nil).Generate(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Equal(t, types.ErrTimeout, types.GetErrorCode(err))
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestProviderClient_EmptyChoices(t *testing.T) {
	t.Parallel()

	p := &stubProvider{completion: func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{}, nil
	}}
	cfg := DefaultProviderClientConfig()
	cfg.Retry = fastRetry(0)

	_, err := NewProviderClient(p, cfg, nil).Generate(context.Background(), "s", "u")
	assert.Equal(t, types.ErrEmptyResponse, types.GetErrorCode(err))
}

func TestProviderClient_RateLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	p := &stubProvider{completion: func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return textResponse("ok"), nil
	}}
	cfg := DefaultProviderClientConfig()
	cfg.RateLimit = 0.001
	cfg.Burst = 1
	c := NewProviderClient(p, cfg, nil)

	_, err := c.Generate(context.Background(), "s", "u")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Generate(ctx, "s", "u")
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestDecodeJSONObject(t *testing.T) {
	t.Parallel()

	var out map[string]any
	require.NoError(t, DecodeJSONObject("prefix {\"a\": {\"b\": 1}} suffix", &out))
	assert.Contains(t, out, "a")

	err := DecodeJSONObject("no json", &out)
	assert.Equal(t, types.ErrMalformedResponse, types.GetErrorCode(err))

	err = DecodeJSONObject("{not json}", &out)
	assert.Equal(t, types.ErrMalformedResponse, types.GetErrorCode(err))
}
