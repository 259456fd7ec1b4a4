// Package admin serves the operator HTTP API: health, metrics, store
// inspection, report archive listing and maintenance triggers.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/edgard/chatkeeper/internal/bot/tasks"
	"github.com/edgard/chatkeeper/internal/conversation"
	"github.com/edgard/chatkeeper/internal/database"
	"github.com/edgard/chatkeeper/internal/snapshot"
)

// Snapshot is the persistence surface the API exposes.
type Snapshot interface {
	Info() snapshot.Info
	ForceCleanup(ctx context.Context) (snapshot.SweepResult, error)
}

// TaskRunner lists and triggers scheduled tasks.
type TaskRunner interface {
	Tasks() []string
	NextRun(name string) (time.Time, error)
	RunNow(name string) error
}

// Deps holds what the handlers need. Archive, Tasks and Metrics are optional.
type Deps struct {
	Logger        *slog.Logger
	Conversations conversation.Store
	Snapshot      Snapshot
	Archive       database.Store
	Groups        *tasks.Groups
	Tasks         TaskRunner
	Metrics       http.Handler
	Location      *time.Location
}

// NewRouter wires the API routes.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	h := &handler{deps: deps, logger: deps.Logger.With("component", "admin")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/info", h.handleInfo)
		api.Post("/cleanup", h.handleCleanup)

		api.Route("/groups", func(g chi.Router) {
			g.Get("/", h.handleListGroups)
			g.Get("/{groupID}/stats", h.handleGroupStats)
			g.Get("/{groupID}/messages", h.handleGroupMessages)
			g.Get("/{groupID}/reports", h.handleGroupReports)
		})

		api.Route("/report-groups", func(g chi.Router) {
			g.Get("/", h.handleListReportGroups)
			g.Put("/{groupID}", h.handleAddReportGroup)
			g.Delete("/{groupID}", h.handleRemoveReportGroup)
		})

		api.Get("/tasks", h.handleListTasks)
		api.Post("/tasks/{name}/run", h.handleRunTask)
	})

	return r
}

// NewServer wraps handler in an http.Server with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       time.Minute,
	}
}

type handler struct {
	deps   Deps
	logger *slog.Logger
}

func (h *handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.DebugContext(r.Context(), "Admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode admin response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
