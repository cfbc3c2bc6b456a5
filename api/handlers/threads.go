package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BaSui01/askflow/api"
	"github.com/BaSui01/askflow/memory"
	"github.com/BaSui01/askflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🧵 线程接口 Handler
// =============================================================================

// ThreadService 管理对话线程
type ThreadService interface {
	NewThread(ctx context.Context) (string, error)
	Thread(ctx context.Context, threadID string) (*memory.Thread, error)
	ClearThread(ctx context.Context, threadID string) error
}

// ThreadHandler 线程接口处理器
type ThreadHandler struct {
	service ThreadService
	logger  *zap.Logger
}

// NewThreadHandler 创建线程处理器
func NewThreadHandler(service ThreadService, logger *zap.Logger) *ThreadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThreadHandler{
		service: service,
		logger:  logger.With(zap.String("handler", "threads")),
	}
}

// HandleCreate 创建线程
// @Summary 创建线程
// @Description 创建新的对话线程
// @Tags 线程
// @Produce json
// @Success 201 {object} api.ThreadCreatedResponse "新线程"
// @Security ApiKeyAuth
// @Router /v1/threads [post]
func (h *ThreadHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.NewThread(r.Context())
	if err != nil {
		WriteServiceError(w, r, err, h.logger)
		return
	}
	h.logger.Debug("thread created", zap.String("thread_id", id))
	WriteCreated(w, r, api.ThreadCreatedResponse{ThreadID: id})
}

// HandleGet 查询线程历史
// @Summary 查询线程
// @Description 返回线程中已完成的轮次
// @Tags 线程
// @Produce json
// @Param id path string true "线程 ID"
// @Success 200 {object} api.ThreadResponse "线程历史"
// @Failure 404 {object} Response "线程不存在"
// @Security ApiKeyAuth
// @Router /v1/threads/{id} [get]
func (h *ThreadHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.threadID(w, r)
	if !ok {
		return
	}
	thread, err := h.service.Thread(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, ThreadView(thread))
}

// HandleDelete 删除线程
// @Summary 删除线程
// @Description 删除线程及其挂起的澄清
// @Tags 线程
// @Param id path string true "线程 ID"
// @Success 204 "已删除"
// @Failure 404 {object} Response "线程不存在"
// @Security ApiKeyAuth
// @Router /v1/threads/{id} [delete]
func (h *ThreadHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.threadID(w, r)
	if !ok {
		return
	}
	if err := h.service.ClearThread(r.Context(), id); err != nil {
		WriteServiceError(w, r, err, h.logger)
		return
	}
	h.logger.Debug("thread deleted", zap.String("thread_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *ThreadHandler) threadID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteError(w, r, types.NewInvalidRequestError("thread id is required"), h.logger)
		return "", false
	}
	return id, true
}

// ThreadView 将线程快照转换为 API 视图
func ThreadView(t *memory.Thread) api.ThreadResponse {
	out := api.ThreadResponse{
		ThreadID:  t.ID,
		Turns:     make([]api.TurnView, 0, len(t.Turns)),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	for _, turn := range t.Turns {
		sources := make([]api.Source, 0, len(turn.CitedSources))
		for _, s := range turn.CitedSources {
			sources = append(sources, api.Source{Document: s.Document, Page: s.Page, URL: s.URL})
		}
		chunkIDs := turn.RetrievedChunkIDs
		if chunkIDs == nil {
			chunkIDs = []string{}
		}
		out.Turns = append(out.Turns, api.TurnView{
			TurnIndex:         turn.TurnIndex,
			RawQuery:          turn.RawQuery,
			ReformulatedQuery: turn.ReformulatedQuery,
			Route:             string(turn.Route),
			RetrievedChunkIDs: chunkIDs,
			FinalAnswer:       turn.FinalAnswer,
			CitedSources:      sources,
			ValidationPassed:  turn.ValidationPassed,
			RetryCounts: api.RetryCounts{
				Rewrite:    turn.RetryCounts.Rewrite,
				Validation: turn.RetryCounts.Validation,
			},
			CreatedAt: turn.CreatedAt,
		})
	}
	return out
}
