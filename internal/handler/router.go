package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-notes/internal/handler/events"
	"github.com/zhouzirui/z-notes/internal/handler/project"
	"github.com/zhouzirui/z-notes/internal/handler/tutor"
	middlewarePkg "github.com/zhouzirui/z-notes/internal/middleware"
	projectService "github.com/zhouzirui/z-notes/internal/service/project"
	tutorService "github.com/zhouzirui/z-notes/internal/service/tutor"
	"github.com/zhouzirui/z-notes/pkg/utils"
)

// NewRouter wires HTTP routes to core services. workflow may be nil when no
// model is configured; hub may be nil to disable the events channel.
func NewRouter(store *projectService.Store, workflow *tutorService.Workflow, hub *events.Hub, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":       "ok",
			"ai_available": workflow != nil,
		})
	})

	r.Route("/api/v1", func(api chi.Router) {
		project.New(store, logger.Named("project")).RegisterRoutes(api)
		tutor.New(workflow, logger.Named("tutor")).RegisterRoutes(api)

		if hub != nil {
			hub.RegisterRoutes(api)
		}
	})

	return r
}
