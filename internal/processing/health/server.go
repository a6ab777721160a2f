package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/core/task"
)

// ItemService manages the work items of one pipeline.
type ItemService interface {
	Items() []domain.WorkItem
	Submit(ctx context.Context, input string) (domain.WorkItem, bool, error)
	Retry(ctx context.Context, id int) (domain.WorkItem, bool, error)
	Remove(ctx context.Context, id int) (bool, error)
	Clear(ctx context.Context) error
}

// Options configures the HTTP server.
type Options struct {
	Port        int
	CORSOrigins []string
}

// Server provides the health, metrics and item endpoints.
type Server struct {
	monitor   *Monitor
	pipelines map[domain.ItemKind]ItemService
	router    chi.Router
	server    *http.Server
}

// NewServer creates a new server. pipelines is keyed by item kind, which is
// also the path segment under /items.
func NewServer(monitor *Monitor, pipelines map[domain.ItemKind]ItemService, opts Options) *Server {
	s := &Server{monitor: monitor, pipelines: pipelines}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/health/detailed", s.handleDetailed)
	r.Get("/cooldowns", s.handleCooldowns)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/items/{kind}", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleSubmit)
		r.Delete("/", s.handleClear)
		r.Post("/{id}/retry", s.handleRetry)
		r.Delete("/{id}", s.handleRemove)
	})

	s.router = r
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routing handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the HTTP server.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth()
	code := http.StatusOK
	if report.SystemStatus == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth())
}

func (s *Server) handleCooldowns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth().Cooldowns)
}

type submitRequest struct {
	Input string `json:"input"`
}

// checkView is a CheckState as served over HTTP. Unlike the persisted form
// it carries the live progress text.
type checkView struct {
	Status   domain.CheckStatus `json:"status"`
	Value    string             `json:"value,omitempty"`
	Detail   string             `json:"detail,omitempty"`
	Source   string             `json:"source,omitempty"`
	Progress string             `json:"progress,omitempty"`
}

type itemView struct {
	ID        int                  `json:"id"`
	Input     string               `json:"input"`
	Checks    map[string]checkView `json:"checks"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func newItemView(it domain.WorkItem) itemView {
	v := itemView{
		ID:        it.ID,
		Input:     it.Input,
		Checks:    make(map[string]checkView, len(it.Checks)),
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}
	for name, st := range it.Checks {
		v.Checks[name] = checkView{
			Status:   st.Status,
			Value:    st.Value,
			Detail:   st.Detail,
			Source:   st.Source,
			Progress: st.Progress,
		}
	}
	return v
}

type itemResponse struct {
	Item    itemView `json:"item"`
	Existed bool     `json:"existed,omitempty"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.pipeline(w, r)
	if !ok {
		return
	}
	items := svc.Items()
	views := make([]itemView, 0, len(items))
	for _, it := range items {
		views = append(views, newItemView(it))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.pipeline(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, existed, err := svc.Submit(r.Context(), req.Input)
	switch {
	case errors.Is(err, task.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("Failed to submit item", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	code := http.StatusCreated
	if existed {
		code = http.StatusOK
	}
	writeJSON(w, code, itemResponse{Item: newItemView(item), Existed: existed})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	svc, id, ok := s.pipelineAndID(w, r)
	if !ok {
		return
	}
	item, found, err := svc.Retry(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	writeJSON(w, http.StatusAccepted, itemResponse{Item: newItemView(item)})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	svc, id, ok := s.pipelineAndID(w, r)
	if !ok {
		return
	}
	removed, err := svc.Remove(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.pipeline(w, r)
	if !ok {
		return
	}
	if err := svc.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pipeline(w http.ResponseWriter, r *http.Request) (ItemService, bool) {
	kind := domain.ItemKind(chi.URLParam(r, "kind"))
	svc, ok := s.pipelines[kind]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown item kind %q", kind))
	}
	return svc, ok
}

func (s *Server) pipelineAndID(w http.ResponseWriter, r *http.Request) (ItemService, int, bool) {
	svc, ok := s.pipeline(w, r)
	if !ok {
		return nil, 0, false
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return nil, 0, false
	}
	return svc, id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
