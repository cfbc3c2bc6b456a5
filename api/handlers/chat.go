package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/BaSui01/askflow/api"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 问答接口 Handler
// =============================================================================

// ChatService 处理一次问答请求
type ChatService interface {
	Chat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
}

// ChatHandler 问答接口处理器
type ChatHandler struct {
	service      ChatService
	timeout      time.Duration
	maxBodyBytes int64
	logger       *zap.Logger
}

// ChatHandlerOption 配置 ChatHandler
type ChatHandlerOption func(*ChatHandler)

// WithRequestTimeout 设置单次问答的超时, 0 表示不限制
func WithRequestTimeout(d time.Duration) ChatHandlerOption {
	return func(h *ChatHandler) { h.timeout = d }
}

// WithMaxBodyBytes 设置请求体上限
func WithMaxBodyBytes(n int64) ChatHandlerOption {
	return func(h *ChatHandler) { h.maxBodyBytes = n }
}

// NewChatHandler 创建问答处理器
func NewChatHandler(service ChatService, logger *zap.Logger, opts ...ChatHandlerOption) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ChatHandler{
		service:      service,
		maxBodyBytes: 1 << 20,
		logger:       logger.With(zap.String("handler", "chat")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleChat 处理问答请求
// @Summary 提问
// @Description 提交问题或对澄清问题的回复, 返回回答或新的澄清问题
// @Tags 问答
// @Accept json
// @Produce json
// @Param request body api.ChatRequest true "问答请求"
// @Success 200 {object} api.ChatResponse "回答或澄清问题"
// @Failure 400 {object} Response "无效请求"
// @Failure 404 {object} Response "线程或澄清记录不存在"
// @Failure 409 {object} Response "线程正在处理其他请求"
// @Failure 502 {object} Response "上游模型错误"
// @Failure 504 {object} Response "超时"
// @Security ApiKeyAuth
// @Router /v1/chat [post]
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.maxBodyBytes, h.logger); err != nil {
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := h.service.Chat(ctx, req)
	if err != nil {
		WriteServiceError(w, r, err, h.logger)
		return
	}

	h.logger.Info("chat handled",
		zap.String("request_id", requestID(r)),
		zap.String("thread_id", req.ThreadID),
		zap.String("kind", string(resp.Kind)),
		zap.String("route", resp.Route),
		zap.Bool("fallback", resp.Fallback),
		zap.Duration("duration", time.Since(start)),
	)

	WriteSuccess(w, r, resp)
}
