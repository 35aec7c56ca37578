package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/state"
)

// StateReader is the read side of the state store.
type StateReader interface {
	Load(ctx context.Context) (state.Document, error)
	History(ctx context.Context, limit int) ([]domain.PublishRecord, error)
}

// Server exposes health, metrics and read-only state for the daemon.
type Server struct {
	state   StateReader
	metrics http.Handler

	mu   sync.RWMutex
	last *cycleView
}

type cycleView struct {
	CycleID    string    `json:"cycle_id"`
	Status     string    `json:"status"`
	Bucket     string    `json:"bucket"`
	UploadType string    `json:"upload_type"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	URL        string    `json:"url,omitempty"`
	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// New builds the server. metrics may be nil.
func New(st StateReader, metrics http.Handler) *Server {
	return &Server{state: st, metrics: metrics}
}

// Observe remembers the latest cycle result for /cycles/last.
func (s *Server) Observe(result domain.CycleResult) {
	view := &cycleView{
		CycleID:    result.CycleID,
		Status:     string(result.Status),
		Bucket:     result.Rotation.Bucket.Name,
		UploadType: string(result.Rotation.UploadType),
		Reason:     result.Reason,
		URL:        result.PublishedURL(),
		Attempts:   len(result.Attempts),
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
	if result.Err != nil {
		view.Error = result.Err.Error()
	}
	s.mu.Lock()
	s.last = view
	s.mu.Unlock()
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Get("/state", s.handleState)
	r.Get("/history", s.handleHistory)
	r.Get("/cycles/last", s.handleLastCycle)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if _, err := s.state.Load(r.Context()); err != nil {
		status["ok"] = false
		status["state"] = "unreadable"
		status["error"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status["state"] = "ok"
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	doc, err := s.state.Load(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STATE_UNREADABLE", err.Error())
		return
	}
	resp := map[string]interface{}{
		"schema_version": doc.SchemaVersion,
		"cursors":        doc.Cursors,
		"consumed":       len(doc.ConsumedIDs),
		"published":      len(doc.History),
		"updated_at":     doc.UpdatedAt,
	}
	if n := len(doc.History); n > 0 {
		resp["last_record"] = doc.History[n-1]
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			respondError(w, http.StatusBadRequest, "BAD_LIMIT", "limit must be a non-negative integer")
			return
		}
		limit = v
	}
	records, err := s.state.History(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STATE_UNREADABLE", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (s *Server) handleLastCycle(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	if last == nil {
		respondError(w, http.StatusNotFound, "NO_CYCLE", "no cycle has finished yet")
		return
	}
	respondJSON(w, http.StatusOK, last)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
		"code":  code,
	})
}
