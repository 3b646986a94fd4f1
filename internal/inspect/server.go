package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	errs "github.com/vercel/turborepo-sub010/pkg/errors"
	"github.com/vercel/turborepo-sub010/pkg/observability"
	"github.com/vercel/turborepo-sub010/pkg/render/nodelink"
	"github.com/vercel/turborepo-sub010/pkg/taskgraph"
)

const shutdownTimeout = 5 * time.Second

// Server serves a task graph over HTTP.
type Server struct {
	graph  *taskgraph.Graph
	logger *log.Logger
	hooks  observability.HTTPHooks
}

// New returns a server for g. A nil logger discards output.
func New(g *taskgraph.Graph, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Server{graph: g, logger: logger, hooks: observability.HTTP()}
}

// WithHooks replaces the globally registered HTTP hooks.
func (s *Server) WithHooks(h observability.HTTPHooks) *Server {
	s.hooks = h
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(routeOnEscapedPath)
	r.Use(withRequestID)
	r.Use(observe(s.logger, s.hooks))
	r.Use(middleware.Recoverer)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.listTasks)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getTask)
			r.Get("/summary", s.getSummary)
			r.Get("/active", s.getActive)
			r.Post("/state", s.setState)
		})
	})
	r.Get("/scheduled", s.takeScheduled)
	r.Get("/workspace", s.getWorkspace)
	r.Get("/graph.dot", s.getDOT)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("inspector listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.graph.Snapshot().Tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.graph.Inspect(taskID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, t)
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.graph.Summary(taskID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, sum)
}

type activeResponse struct {
	ID     taskgraph.TaskID `json:"id"`
	Active bool             `json:"active"`
}

func (s *Server) getActive(w http.ResponseWriter, r *http.Request) {
	id := taskID(r)
	active, err := s.graph.IsActive(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, activeResponse{ID: id, Active: active})
}

type stateRequest struct {
	State string `json:"state"`
}

func (s *Server) setState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeError(w, r, errs.Wrap(errs.ErrCodeInvalidInput, err, "decode request body"))
		return
	}
	state, err := taskgraph.ParseState(req.State)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id := taskID(r)
	if err := s.graph.SetState(id, state); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.graph.Inspect(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, t)
}

func (s *Server) takeScheduled(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.graph.TakeScheduled())
}

func (s *Server) getWorkspace(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.graph.Workspace())
}

func (s *Server) getDOT(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dot := nodelink.ToDOT(s.graph.Snapshot(), nodelink.Options{
		Detailed:  q.Has("detailed"),
		Followers: q.Has("followers"),
	})
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	_, _ = io.WriteString(w, dot)
}

// =============================================================================
// Helpers
// =============================================================================

// taskID decodes the {id} segment. Routing runs on the escaped path, so
// the parameter is still escaped here and is decoded exactly once.
func taskID(r *http.Request) taskgraph.TaskID {
	raw := chi.URLParam(r, "id")
	if id, err := url.PathUnescape(raw); err == nil {
		return taskgraph.TaskID(id)
	}
	return taskgraph.TaskID(raw)
}

type errorResponse struct {
	Error     string    `json:"error"`
	Code      errs.Code `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", "id", RequestID(r.Context()), "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "id", RequestID(r.Context()), "err", err)
	}
	s.writeJSON(w, r, status, errorResponse{
		Error:     errs.UserMessage(err),
		Code:      errs.GetCode(err),
		RequestID: RequestID(r.Context()),
	})
}

// statusFor maps error codes to HTTP status codes.
func statusFor(err error) int {
	switch errs.GetCode(err) {
	case errs.ErrCodeNotFound, errs.ErrCodeTaskNotFound, errs.ErrCodeFileNotFound:
		return http.StatusNotFound
	case errs.ErrCodeInvalidInput, errs.ErrCodeInvalidTaskID, errs.ErrCodeInvalidGraph:
		return http.StatusBadRequest
	case errs.ErrCodeCycle, errs.ErrCodeDuplicateTask, errs.ErrCodeInvalidState:
		return http.StatusConflict
	case errs.ErrCodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
