package engineapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/taskcouncil/engine/internal/errors"
	"github.com/taskcouncil/engine/internal/ids"
	"github.com/taskcouncil/engine/internal/pipeline"
	"github.com/taskcouncil/engine/internal/storage"
)

const maxRequestBody = 1 << 20 // 1MB, same ceiling the teacher's web handlers use

// Server exposes a Pipeline over HTTP: POST /tasks, GET /tasks/{id}, GET
// /tasks/{id}/events (SSE), POST /tasks/{id}/intervene — the four
// operations spec §6 names, wire-shaped through this package's DTOs.
type Server struct {
	pipeline *pipeline.Pipeline
	log      *zap.Logger
	mux      *http.ServeMux
}

func NewServer(p *pipeline.Pipeline, log *zap.Logger) *Server {
	s := &Server{pipeline: p, log: log.Named("engineapi"), mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/tasks", s.handleSubmit)
	s.mux.HandleFunc("/tasks/", s.handleTaskPath)
}

// handleTaskPath dispatches GET/POST under /tasks/{id}[/events|/intervene]
// — net/http's ServeMux (pre-1.22 pattern matching, which the rest of
// this module's go.mod targets) has no path-parameter support, so this
// mirrors the teacher's own flat-mux-plus-manual-split style in
// internal/web/server.go rather than reaching for a router library
// nothing in the example pack imports.
func (s *Server) handleTaskPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/tasks/")
	if rest == "" {
		http.NotFound(w, r)
		return
	}

	if idStr, ok := strings.CutSuffix(rest, "/events"); ok {
		s.handleObserve(w, r, idStr)
		return
	}
	if idStr, ok := strings.CutSuffix(rest, "/intervene"); ok {
		s.handleIntervene(w, r, idStr)
		return
	}
	s.handleQuery(w, r, rest)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SubmitTaskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.KindBadRequest, "decode submit request", err))
		return
	}

	description, reqs, mode, risk, priority, deadline := req.toDomain()
	taskID, err := s.pipeline.Submit(r.Context(), pipeline.SubmitRequest{
		Description:   description,
		Requirements:  reqs,
		ExecutionMode: mode,
		RiskTier:      risk,
		Priority:      priority,
		Deadline:      deadline,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitTaskResponse{TaskID: taskID.String()})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, idStr string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	taskID, err := ids.ParseTaskID(idStr)
	if err != nil {
		writeError(w, errors.Wrap(errors.KindBadRequest, "parse task id", err))
		return
	}

	snap, err := s.pipeline.Query(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TaskViewOf(snap))
}

func (s *Server) handleIntervene(w http.ResponseWriter, r *http.Request, idStr string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	taskID, err := ids.ParseTaskID(idStr)
	if err != nil {
		writeError(w, errors.Wrap(errors.KindBadRequest, "parse task id", err))
		return
	}

	var req InterventionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.KindBadRequest, "decode intervention request", err))
		return
	}
	cmd := interventionCommandOf(req)
	if err := s.pipeline.Intervene(taskID, cmd); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleObserve streams a task's event history plus live updates as
// server-sent events, grounded on the teacher's internal/web/sse.go
// writer (per-request flusher, client-disconnect detection via
// request context) generalized from chat tokens to TaskEvents.
func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request, idStr string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	taskID, err := ids.ParseTaskID(idStr)
	if err != nil {
		writeError(w, errors.Wrap(errors.KindBadRequest, "parse task id", err))
		return
	}

	sub, err := s.pipeline.Observe(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events:
			if !ok {
				if sub.Dropped() {
					writeSSE(w, "dropped", map[string]string{"reason": "event lag exceeded threshold"})
					flusher.Flush()
				}
				return
			}
			writeSSE(w, "event", EventViewOf(event))
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		return
	}
	w.Write([]byte("event: " + event + "\ndata: "))
	w.Write(body)
	w.Write([]byte("\n\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := errors.KindOf(err)
	writeJSON(w, statusFor(kind), errorResponse{Kind: string(kind), Message: err.Error()})
}

func statusFor(kind errors.Kind) int {
	switch kind {
	case errors.KindBadRequest, errors.KindValidationFailed:
		return http.StatusBadRequest
	case errors.KindNotFound, errors.KindModelNotFound:
		return http.StatusNotFound
	case errors.KindInvalidState, errors.KindInterventionDenied:
		return http.StatusConflict
	case errors.KindOverloaded, errors.KindInboxFull:
		return http.StatusTooManyRequests
	case errors.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Recover re-admits every resumable task persisted in store before this
// process last exited (spec §4.3 "Restart survival"); a thin re-export so
// cmd/engine only needs to import this package, not internal/pipeline
// directly.
func Recover(ctx context.Context, p *pipeline.Pipeline, store storage.Store) error {
	return pipeline.Recover(ctx, p, store)
}
