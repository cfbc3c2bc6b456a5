// ScriptedProvider 的 LLM 提供商测试模拟实现。
//
// 按系统提示的任务类型分派响应，支持固定响应、响应序列与错误注入。
package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/askflow/llm"
	"github.com/BaSui01/askflow/types"
)

// --- 任务类型 ---

// PromptKind 由系统提示首句 "You are the <kind> for ..." 得出
type PromptKind string

const (
	KindRouter         PromptKind = "query router"
	KindReformulator   PromptKind = "query reformulator"
	KindRewriter       PromptKind = "search query rewriter"
	KindJudge          PromptKind = "relevance judge"
	KindGenerator      PromptKind = "answer generator"
	KindValidator      PromptKind = "answer validator"
	KindClarifier      PromptKind = "clarification assistant"
	KindConversational PromptKind = "conversational assistant"
)

// KindOf 从系统提示中解析任务类型，无法识别时返回空
func KindOf(system string) PromptKind {
	const prefix = "You are the "
	if !strings.HasPrefix(system, prefix) {
		return ""
	}
	rest := system[len(prefix):]
	if i := strings.Index(rest, " for "); i > 0 {
		return PromptKind(rest[:i])
	}
	return ""
}

// --- ScriptedProvider 结构 ---

// Call 记录单次调用
type Call struct {
	Kind    PromptKind
	System  string
	User    string
	Request *llm.ChatRequest
	Reply   string
	Error   error
}

// Responder 为一次调用生成响应
type Responder func(call Call) (string, error)

// ScriptedProvider 是 llm.Provider 的模拟实现，按任务类型返回脚本化响应
type ScriptedProvider struct {
	mu sync.Mutex

	responders map[PromptKind]Responder
	sequences  map[PromptKind][]string
	seqIndex   map[PromptKind]int

	// 行为控制
	err       error
	delay     time.Duration
	failAfter int // 在第 N 次调用后失败
	callCount int

	calls []Call
}

// NewScriptedProvider 创建新的 ScriptedProvider
func NewScriptedProvider() *ScriptedProvider {
	return &ScriptedProvider{
		responders: make(map[PromptKind]Responder),
		sequences:  make(map[PromptKind][]string),
		seqIndex:   make(map[PromptKind]int),
	}
}

// --- Builder 方法 ---

// On 设置任务类型的自定义响应函数
func (p *ScriptedProvider) On(kind PromptKind, fn Responder) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responders[kind] = fn
	delete(p.sequences, kind)
	return p
}

// OnText 设置任务类型的固定文本响应
func (p *ScriptedProvider) OnText(kind PromptKind, text string) *ScriptedProvider {
	return p.On(kind, func(Call) (string, error) { return text, nil })
}

// OnJSON 设置任务类型的固定 JSON 响应
func (p *ScriptedProvider) OnJSON(kind PromptKind, v any) *ScriptedProvider {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("mocks: marshal scripted reply: %v", err))
	}
	return p.OnText(kind, string(data))
}

// OnError 设置任务类型总是返回错误
func (p *ScriptedProvider) OnError(kind PromptKind, err error) *ScriptedProvider {
	return p.On(kind, func(Call) (string, error) { return "", err })
}

// OnSequence 设置任务类型依次返回的响应，用完后重复最后一个
func (p *ScriptedProvider) OnSequence(kind PromptKind, replies ...string) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.responders, kind)
	p.sequences[kind] = append([]string(nil), replies...)
	p.seqIndex[kind] = 0
	return p
}

// WithError 设置所有调用返回错误
func (p *ScriptedProvider) WithError(err error) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	return p
}

// WithDelay 设置响应延迟，延迟期间响应 ctx 取消
func (p *ScriptedProvider) WithDelay(d time.Duration) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
	return p
}

// WithFailAfter 设置在第 N 次调用后失败
func (p *ScriptedProvider) WithFailAfter(n int) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failAfter = n
	return p
}

// --- Provider 接口实现 ---

// Name 返回 Provider 名称
func (p *ScriptedProvider) Name() string { return "scripted" }

// HealthCheck 执行健康检查
func (p *ScriptedProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true, Latency: time.Millisecond}, nil
}

// Completion 按任务类型生成响应；未配置的任务类型返回不可重试错误
func (p *ScriptedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	call := Call{Request: req}
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			call.System = m.Content
		case llm.RoleUser:
			call.User = m.Content
		}
	}
	call.Kind = KindOf(call.System)

	p.mu.Lock()
	delay := p.delay
	p.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, p.record(call, "", ctx.Err())
		case <-time.After(delay):
		}
	}

	reply, err := p.respond(call)
	if err != nil {
		return nil, p.record(call, "", err)
	}
	p.record(call, reply, nil)

	return &llm.ChatResponse{
		ID:       "scripted-response",
		Provider: "scripted",
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      llm.NewAssistantMessage(reply),
		}},
		CreatedAt: time.Now(),
	}, nil
}

func (p *ScriptedProvider) respond(call Call) (string, error) {
	p.mu.Lock()
	p.callCount++
	if p.failAfter > 0 && p.callCount > p.failAfter {
		p.mu.Unlock()
		return "", errors.New("scripted provider: configured to fail after N calls")
	}
	if p.err != nil {
		err := p.err
		p.mu.Unlock()
		return "", err
	}
	if seq, ok := p.sequences[call.Kind]; ok && len(seq) > 0 {
		i := min(p.seqIndex[call.Kind], len(seq)-1)
		p.seqIndex[call.Kind]++
		p.mu.Unlock()
		return seq[i], nil
	}
	fn, ok := p.responders[call.Kind]
	p.mu.Unlock()

	if !ok {
		return "", types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("scripted provider: no reply for %q", call.Kind)).WithRetryable(false)
	}
	return fn(call)
}

func (p *ScriptedProvider) record(call Call, reply string, err error) error {
	call.Reply = reply
	call.Error = err
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
	return err
}

// --- 查询方法 ---

// Calls 获取所有调用记录
func (p *ScriptedProvider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallsFor 获取某任务类型的调用记录
func (p *ScriptedProvider) CallsFor(kind PromptKind) []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Call
	for _, c := range p.calls {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// CallCount 获取某任务类型的调用次数
func (p *ScriptedProvider) CallCount(kind PromptKind) int {
	return len(p.CallsFor(kind))
}

// LastCall 获取某任务类型的最后一次调用
func (p *ScriptedProvider) LastCall(kind PromptKind) *Call {
	calls := p.CallsFor(kind)
	if len(calls) == 0 {
		return nil
	}
	return &calls[len(calls)-1]
}

// Reset 重置调用记录与序列进度
func (p *ScriptedProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
	p.callCount = 0
	p.err = nil
	for k := range p.seqIndex {
		p.seqIndex[k] = 0
	}
}

var _ llm.Provider = (*ScriptedProvider)(nil)
