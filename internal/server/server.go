package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kunflip-labs/kunarena/internal/arena"
	"github.com/kunflip-labs/kunarena/internal/ratelimit"
	"github.com/kunflip-labs/kunarena/internal/storage"
)

// Default per-agent rate limits for the write-heavy endpoints. Every agent
// polls decide on its own cadence, so the limits are per token, not per IP.
const (
	decideRate = 30
	turnRate   = 20
	rateWindow = time.Minute
)

// Server is the main HTTP server for the arena API.
type Server struct {
	db           *storage.DB
	engine       *arena.Engine
	secret       string
	decideLimits *ratelimit.Registry
	turnLimits   *ratelimit.Registry
	mux          *http.ServeMux
}

// New creates a new Server with all routes registered.
func New(db *storage.DB, engine *arena.Engine, secret string) *Server {
	s := &Server{
		db:           db,
		engine:       engine,
		secret:       secret,
		decideLimits: ratelimit.NewRegistry(decideRate, rateWindow),
		turnLimits:   ratelimit.NewRegistry(turnRate, rateWindow),
		mux:          http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// routes registers all HTTP routes on the server mux.
func (s *Server) routes() {
	// Health
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Admin (X-Admin-Secret auth)
	s.mux.HandleFunc("POST /api/admin/agents", s.handleAdminEnrollAgent)

	// Agent (Bearer auth)
	s.mux.HandleFunc("GET /api/agent", s.handleGetAgent)
	s.mux.HandleFunc("POST /api/agent", s.handleUpdateAgent)
	s.mux.HandleFunc("POST /api/agent/decide", s.handleDecide)
	s.mux.HandleFunc("POST /api/agent/match", s.handleMatch)

	// Lobby
	s.mux.HandleFunc("GET /api/lobby", s.handleLobby)

	// Battles
	s.mux.HandleFunc("GET /api/battles", s.handleListBattles)
	s.mux.HandleFunc("POST /api/battles", s.handleHostBattle)
	s.mux.HandleFunc("GET /api/battles/{id}", s.handleGetBattle)
	s.mux.HandleFunc("POST /api/battles/{id}/join", s.handleJoinBattle)
	s.mux.HandleFunc("POST /api/battles/{id}/turn", s.handleTurn)
	s.mux.HandleFunc("POST /api/battles/{id}/vote", s.handleVote)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "kunarena",
	})
}

// envelope is the wire shape of every response: code 0 with data on success,
// a non-zero code with a message on failure.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// writeJSON writes a success envelope with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

// writeError writes a failure envelope. The envelope code mirrors the HTTP
// status so clients can switch on either.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Code: status, Message: msg})
}

// writeArenaError maps engine precondition failures to 4xx envelopes.
// Anything unrecognized is a 500.
func writeArenaError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, arena.ErrBattleNotFound):
		writeError(w, http.StatusNotFound, "battle not found")
	case errors.Is(err, arena.ErrRoundNotFound):
		writeError(w, http.StatusNotFound, "round not found")
	case errors.Is(err, arena.ErrBattleNotInProgress):
		writeError(w, http.StatusBadRequest, "battle is not in progress")
	case errors.Is(err, arena.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "not a participant in this battle")
	case errors.Is(err, arena.ErrWrongTurn):
		writeError(w, http.StatusBadRequest, "not your turn")
	case errors.Is(err, arena.ErrFactionNotSet):
		writeError(w, http.StatusBadRequest, "choose RED or BLACK before fighting")
	case errors.Is(err, arena.ErrSlotTaken):
		writeError(w, http.StatusConflict, "battle slot already taken")
	case errors.Is(err, storage.ErrRoundMismatch):
		writeError(w, http.StatusConflict, "round already played")
	case errors.Is(err, arena.ErrAlreadyVoted):
		writeError(w, http.StatusConflict, "already voted on this round")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
