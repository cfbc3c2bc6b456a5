package metrics

import (
	"context"
	"time"

	"github.com/BaSui01/askflow/llm"
	"github.com/BaSui01/askflow/types"
)

// instrumentedProvider 为 llm.Provider 记录请求数、延迟与 token 用量.
type instrumentedProvider struct {
	next      llm.Provider
	collector *Collector
}

// InstrumentProvider 包装 Provider; collector 为 nil 时原样返回.
func InstrumentProvider(p llm.Provider, collector *Collector) llm.Provider {
	if collector == nil {
		return p
	}
	return &instrumentedProvider{next: p, collector: collector}
}

func (p *instrumentedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := p.next.Completion(ctx, req)

	model := req.Model
	status := "success"
	var usage llm.ChatUsage
	if err != nil {
		status = string(types.GetErrorCode(err))
		if status == "" {
			status = "error"
		}
	} else if resp != nil {
		usage = resp.Usage
		if resp.Model != "" {
			model = resp.Model
		}
	}
	p.collector.RecordLLMRequest(p.next.Name(), model, status, time.Since(start), usage.PromptTokens, usage.CompletionTokens)
	return resp, err
}

func (p *instrumentedProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return p.next.HealthCheck(ctx)
}

func (p *instrumentedProvider) Name() string { return p.next.Name() }
