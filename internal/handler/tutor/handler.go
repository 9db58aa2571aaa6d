package tutor

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	tutormodel "github.com/zhouzirui/z-notes/internal/model/tutor"
	projectsvc "github.com/zhouzirui/z-notes/internal/service/project"
	tutorsvc "github.com/zhouzirui/z-notes/internal/service/tutor"
	"github.com/zhouzirui/z-notes/pkg/utils"
)

// Handler streams tutor chat turns as Server-Sent Events.
type Handler struct {
	workflow *tutorsvc.Workflow
	logger   *zap.Logger
}

// New creates the tutor handler. A nil workflow means no model is configured
// and every chat request is answered with 503.
func New(workflow *tutorsvc.Workflow, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{workflow: workflow, logger: logger}
}

// RegisterRoutes 注册AI导师路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/ai-tutor/chat", h.handleChat)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.workflow == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "ai tutor unavailable")
		return
	}

	var req tutormodel.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := h.workflow.Prepare(r.Context(), req)
	if err != nil {
		h.respondPrepareError(w, err)
		return
	}

	sse, err := utils.NewSSEWriter(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger := h.logger.With(zap.String("thread_id", turn.ThreadID()))
	runErr := turn.Run(r.Context(), func(event tutormodel.Event) error {
		if err := sse.Send(event); err != nil {
			return err
		}
		logger.Debug("tutor event sent", zap.String("type", string(event.Type)))
		return nil
	})
	if runErr == nil {
		return
	}

	logger.Error("tutor turn failed", zap.Error(runErr))
	if !sse.Started() {
		utils.RespondError(w, http.StatusInternalServerError, "tutor turn failed")
	}
}

func (h *Handler) respondPrepareError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tutorsvc.ErrEmptyMessage),
		errors.Is(err, tutorsvc.ErrProjectRequired),
		errors.Is(err, tutorsvc.ErrThreadRequired),
		errors.Is(err, tutorsvc.ErrInvalidDecision):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, projectsvc.ErrProjectNotFound), errors.Is(err, tutorsvc.ErrThreadNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("failed to prepare tutor turn", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
