package project

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	projectsvc "github.com/zhouzirui/z-notes/internal/service/project"
	"github.com/zhouzirui/z-notes/pkg/utils"
)

// Handler 项目与笔记文件的HTTP处理器
type Handler struct {
	store  *projectsvc.Store
	logger *zap.Logger
}

// New 创建项目处理器
func New(store *projectsvc.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes 注册项目、文件与工作区配置路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", h.handleListProjects)
		r.Post("/", h.handleCreateProject)

		r.Route("/{projectID}", func(r chi.Router) {
			r.Get("/", h.handleGetProject)
			r.Delete("/", h.handleDeleteProject)
			r.Put("/rename", h.handleRenameProject)

			r.Post("/files", h.handleCreateFile)
			r.Get("/files/{fileID}", h.handleOpenFile)
			r.Post("/files/{fileID}", h.handleSaveFile)
			r.Delete("/files/{fileID}", h.handleDeleteFile)
			r.Put("/files/{fileID}/rename", h.handleRenameFile)
		})
	})

	r.Route("/config", func(r chi.Router) {
		r.Get("/", h.handleGetConfig)
		r.Get("/active-project", h.handleGetActiveProject)
		r.Post("/active-project", h.handleSetActiveProject)
		r.Get("/active-file", h.handleGetActiveFile)
		r.Post("/active-file", h.handleSetActiveFile)
	})
}

func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects(r.Context())
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, projects)
}

func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.store.CreateProject(r.Context(), payload.Name)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProject(r.Context(), pathParam(r, "projectID"))
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}

func (h *Handler) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteProject(r.Context(), pathParam(r, "projectID")); err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleRenameProject(w http.ResponseWriter, r *http.Request) {
	newName, ok := decodeNewName(w, r)
	if !ok {
		return
	}
	p, err := h.store.RenameProject(r.Context(), pathParam(r, "projectID"), newName)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}

func (h *Handler) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f, err := h.store.CreateFile(r.Context(), pathParam(r, "projectID"), payload.Filename)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, f)
}

func (h *Handler) handleOpenFile(w http.ResponseWriter, r *http.Request) {
	f, err := h.store.OpenFile(r.Context(), pathParam(r, "projectID"), pathParam(r, "fileID"))
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, f)
}

func (h *Handler) handleSaveFile(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content *string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Content == nil {
		utils.RespondError(w, http.StatusBadRequest, "content is required")
		return
	}

	f, err := h.store.SaveFile(r.Context(), pathParam(r, "projectID"), pathParam(r, "fileID"), *payload.Content)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, f)
}

func (h *Handler) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteFile(r.Context(), pathParam(r, "projectID"), pathParam(r, "fileID")); err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	newName, ok := decodeNewName(w, r)
	if !ok {
		return
	}
	f, err := h.store.RenameFile(r.Context(), pathParam(r, "projectID"), pathParam(r, "fileID"), newName)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, f)
}

// respondStoreError maps store errors to status codes.
func (h *Handler) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, projectsvc.ErrProjectNotFound), errors.Is(err, projectsvc.ErrFileNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, projectsvc.ErrInvalidName),
		errors.Is(err, projectsvc.ErrExists),
		errors.Is(err, projectsvc.ErrOutsideRoot),
		errors.Is(err, projectsvc.ErrNotAFile):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("project store failure", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeNewName(w http.ResponseWriter, r *http.Request) (string, bool) {
	var payload struct {
		NewName string `json:"new_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	return payload.NewName, true
}

// pathParam returns a decoded URL parameter; project and file names may
// contain spaces.
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}
