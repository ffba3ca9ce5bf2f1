// Package httpapi exposes the screening engine over HTTP: session
// lifecycle, response submission, and report retrieval. Mutating
// handlers run under the per-session manager lock so concurrent
// submissions serialize instead of racing the optimistic store check.
package httpapi

// #region imports
import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/psycheos/screening-engine/internal/orchestrator"
	"github.com/psycheos/screening-engine/internal/schema"
	"github.com/psycheos/screening-engine/internal/session"
)

// #endregion

// #region server

// Server carries the shared state behind the HTTP surface.
type Server struct {
	manager *session.Manager
	orch    *orchestrator.Orchestrator
	sqlite  *session.SQLiteStore
	ttl     time.Duration
}

// Option adjusts optional server wiring.
type Option func(*Server)

// WithAudit turns on audit logging and probe statistics, written through
// the given store's database handle.
func WithAudit(st *session.SQLiteStore) Option {
	return func(s *Server) { s.sqlite = st }
}

// WithSessionTTL sets the expiry horizon stamped on new sessions. Zero
// means sessions never expire.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Server) { s.ttl = ttl }
}

// NewServer wires the API over a session manager and an orchestrator.
func NewServer(mgr *session.Manager, orch *orchestrator.Orchestrator, opts ...Option) *Server {
	s := &Server{manager: mgr, orch: orch}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP surface with CORS enabled.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleDelete)
			r.Post("/responses", s.handleSubmit)
			r.Post("/complete", s.handleComplete)
			r.Get("/report", s.handleReport)
		})
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// #endregion

// #region envelopes

type errorBody struct {
	Error   string   `json:"error"`
	Reasons []string `json:"reasons,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// errSessionExists guards create against an ID already in the store.
var errSessionExists = errors.New("session already exists")

// writeStepError maps domain failures onto the API's status contract:
// unknown session 404, write race or duplicate 409, rejected input 422.
func writeStepError(w http.ResponseWriter, err error) {
	var verr *schema.ValidationError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrVersionConflict):
		writeError(w, http.StatusConflict, "session was updated concurrently")
	case errors.Is(err, errSessionExists):
		writeError(w, http.StatusConflict, errSessionExists.Error())
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation failed", Reasons: verr.Reasons})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// #endregion
