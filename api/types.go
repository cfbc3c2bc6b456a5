package api

import (
	"encoding/json"
	"time"
)

// =============================================================================
// 问答类型
// =============================================================================

// ResponseKind 问答响应的类别
type ResponseKind string

const (
	// KindAnswer 完整回答 (可能附带不确定性说明)
	KindAnswer ResponseKind = "answer"
	// KindClarificationNeeded 需要用户澄清后才能继续
	KindClarificationNeeded ResponseKind = "clarification_needed"
)

// ChatRequest 表示一次问答请求。
// @Description 问答请求结构
type ChatRequest struct {
	// 用户问题; 仅提交澄清回复时可为空
	Question string `json:"question" example:"What is the SMI for a family of 4?"`
	// 对话线程 ID; 省略时为无状态单轮请求
	ThreadID string `json:"thread_id,omitempty" example:"3f0c3f8e-8a55-4b3e-9a8e-2c9d6b0b8f10"`
	// 对上一次澄清问题的回复
	ClarificationReply string `json:"clarification_reply,omitempty" example:"Child care subsidy income limits"`
}

// Source 回答引用的来源。
// @Description 引用来源
type Source struct {
	// 文档名称
	Document string `json:"document" example:"SMI Table FY2024"`
	// 页码, 0 表示未知
	Page int `json:"page,omitempty" example:"3"`
	// 文档链接
	URL string `json:"url,omitempty" example:"https://example.org/smi-2024.pdf"`
}

// ChatResponse 表示问答响应, 按 Kind 区分两种形态。
// @Description 问答响应结构
type ChatResponse struct {
	// 响应类别: answer 或 clarification_needed
	Kind ResponseKind `json:"kind" example:"answer"`

	// 回答文本 (kind=answer)
	Answer string `json:"answer,omitempty"`
	// 被引用的来源 (kind=answer)
	Sources []Source `json:"sources,omitempty"`
	// 最终路由 (kind=answer)
	Route string `json:"route,omitempty" example:"rag"`
	// 处理耗时, 秒 (kind=answer)
	ProcessingTime float64 `json:"processing_time,omitempty" example:"1.42"`
	// 校验未通过, 回答附带不确定性说明 (kind=answer)
	Fallback bool `json:"fallback,omitempty"`

	// 澄清问题 (kind=clarification_needed)
	Question string `json:"question,omitempty"`
	// 可选项 (kind=clarification_needed)
	Options []string `json:"options,omitempty"`
	// 恢复时需要回传的线程 ID (kind=clarification_needed)
	ThreadID string `json:"thread_id,omitempty"`
}

// MarshalJSON 按 Kind 输出对应形态; 回答的 sources 始终是数组.
func (r ChatResponse) MarshalJSON() ([]byte, error) {
	if r.Kind == KindClarificationNeeded {
		return json.Marshal(struct {
			Kind     ResponseKind `json:"kind"`
			Question string       `json:"question"`
			Options  []string     `json:"options"`
			ThreadID string       `json:"thread_id"`
		}{r.Kind, r.Question, r.Options, r.ThreadID})
	}
	sources := r.Sources
	if sources == nil {
		sources = []Source{}
	}
	return json.Marshal(struct {
		Kind           ResponseKind `json:"kind"`
		Answer         string       `json:"answer"`
		Sources        []Source     `json:"sources"`
		Route          string       `json:"route"`
		ProcessingTime float64      `json:"processing_time"`
		Fallback       bool         `json:"fallback,omitempty"`
		ThreadID       string       `json:"thread_id,omitempty"`
	}{r.Kind, r.Answer, sources, r.Route, r.ProcessingTime, r.Fallback, r.ThreadID})
}

// NewAnswer 构造回答响应
func NewAnswer(answer string, sources []Source, route string, elapsed time.Duration) *ChatResponse {
	return &ChatResponse{
		Kind:           KindAnswer,
		Answer:         answer,
		Sources:        sources,
		Route:          route,
		ProcessingTime: elapsed.Seconds(),
	}
}

// NewClarification 构造澄清响应
func NewClarification(question string, options []string, threadID string) *ChatResponse {
	return &ChatResponse{
		Kind:     KindClarificationNeeded,
		Question: question,
		Options:  options,
		ThreadID: threadID,
	}
}

// =============================================================================
// 线程类型
// =============================================================================

// ThreadCreatedResponse 新建线程的响应。
// @Description 新建对话线程
type ThreadCreatedResponse struct {
	// 线程 ID
	ThreadID string `json:"thread_id"`
}

// RetryCounts 单轮语义重试次数
type RetryCounts struct {
	Rewrite    int `json:"rewrite"`
	Validation int `json:"validation"`
}

// TurnView 线程中一轮问答的只读视图。
// @Description 历史轮次
type TurnView struct {
	TurnIndex         int         `json:"turn_index"`
	RawQuery          string      `json:"raw_query"`
	ReformulatedQuery *string     `json:"reformulated_query"`
	Route             string      `json:"route"`
	RetrievedChunkIDs []string    `json:"retrieved_chunk_ids"`
	FinalAnswer       string      `json:"final_answer"`
	CitedSources      []Source    `json:"cited_sources"`
	ValidationPassed  bool        `json:"validation_passed"`
	RetryCounts       RetryCounts `json:"retry_counts"`
	CreatedAt         time.Time   `json:"created_at"`
}

// ThreadResponse 线程历史。
// @Description 对话线程及其轮次
type ThreadResponse struct {
	ThreadID  string     `json:"thread_id"`
	Turns     []TurnView `json:"turns"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// =============================================================================
// 错误类型
// =============================================================================

// ErrorResponse表示错误响应。
// @Description 错误响应结构
type ErrorResponse struct {
	// 错误详情
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 表示错误详细信息。
// @Description 错误详细结构
type ErrorDetail struct {
	// 错误代码
	Code string `json:"code" example:"INVALID_REQUEST"`
	// 人类可读的错误消息
	Message string `json:"message" example:"question is required"`
	// HTTP 状态码
	HTTPStatus int `json:"http_status,omitempty" example:"400"`
	// 请求是否可以重试
	Retryable bool `json:"retryable,omitempty" example:"false"`
	// 返回错误的提供者
	Provider string `json:"provider,omitempty" example:"openai"`
}
