package project

import (
	"encoding/json"
	"net/http"

	"github.com/zhouzirui/z-notes/pkg/utils"
)

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.Config(r.Context())
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, cfg)
}

func (h *Handler) handleGetActiveProject(w http.ResponseWriter, r *http.Request) {
	id, err := h.store.ActiveProject(r.Context())
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]*string{"active_project_id": id})
}

func (h *Handler) handleSetActiveProject(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProjectID *string `json:"project_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.store.SetActiveProject(r.Context(), payload.ProjectID); err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]*string{"active_project_id": payload.ProjectID})
}

func (h *Handler) handleGetActiveFile(w http.ResponseWriter, r *http.Request) {
	path, err := h.store.ActiveFile(r.Context())
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]*string{"active_file_path": path})
}

func (h *Handler) handleSetActiveFile(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FilePath *string `json:"file_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.store.SetActiveFile(r.Context(), payload.FilePath); err != nil {
		h.respondStoreError(w, err)
		return
	}
	path, err := h.store.ActiveFile(r.Context())
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]*string{"active_file_path": path})
}
