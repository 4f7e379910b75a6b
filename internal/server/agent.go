package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kunflip-labs/kunarena/internal/auth"
	"github.com/kunflip-labs/kunarena/internal/storage"
)

// adminAuth checks the X-Admin-Secret header against the server secret.
// Returns false (writing a 401) if the header is missing or incorrect.
func (s *Server) adminAuth(w http.ResponseWriter, r *http.Request) bool {
	if s.secret == "" || r.Header.Get("X-Admin-Secret") != s.secret {
		writeError(w, http.StatusUnauthorized, "invalid admin secret")
		return false
	}
	return true
}

// agentAuth resolves the bearer token on a request to the owning agent.
// On failure it writes a 401 and returns false.
func (s *Server) agentAuth(w http.ResponseWriter, r *http.Request) (*storage.Agent, bool) {
	token, err := auth.BearerToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return nil, false
	}
	agent, err := s.db.GetAgentByTokenHash(auth.HashToken(token))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unknown agent token")
		return nil, false
	}
	return agent, true
}

// handleAdminEnrollAgent provisions a new agent and hands back its bearer
// token. The plaintext token appears in this response and nowhere else.
func (s *Server) handleAdminEnrollAgent(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuth(w, r) {
		return
	}

	var req struct {
		Name    string `json:"name"`
		Bio     string `json:"bio"`
		Faction string `json:"faction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	if req.Faction == "" {
		req.Faction = storage.FactionNeutral
	}
	if req.Faction != storage.FactionRed && req.Faction != storage.FactionBlack && req.Faction != storage.FactionNeutral {
		writeError(w, http.StatusBadRequest, "faction must be RED, BLACK or NEUTRAL")
		return
	}

	token, digest, err := auth.NewToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "issue token: "+err.Error())
		return
	}

	now := time.Now().Unix()
	agent := &storage.Agent{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Bio:        req.Bio,
		Faction:    req.Faction,
		Status:     storage.AgentIdle,
		Elo:        1000,
		TokenHash:  digest,
		LastSeenAt: now,
		CreatedAt:  now,
	}
	if err := s.db.CreateAgent(agent); err != nil {
		writeError(w, http.StatusInternalServerError, "create agent: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"agent": agent,
		"token": token,
	})
}

// handleGetAgent returns the calling agent and its recent log entries.
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.agentAuth(w, r)
	if !ok {
		return
	}

	logs, err := s.db.ListAgentLogs(agent.ID, 10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list logs: "+err.Error())
		return
	}
	if logs == nil {
		logs = []storage.AgentLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent": agent,
		"logs":  logs,
	})
}

// handleUpdateAgent sets name, bio, and fighting faction. The faction choice
// is one-way: a NEUTRAL agent may pick RED or BLACK, after which only
// battle-driven conversion changes it.
func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.agentAuth(w, r)
	if !ok {
		return
	}

	var req struct {
		Name    string `json:"name"`
		Bio     string `json:"bio"`
		Faction string `json:"faction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	name, bio, faction := agent.Name, agent.Bio, agent.Faction
	if req.Name != "" {
		name = req.Name
	}
	if req.Bio != "" {
		bio = req.Bio
	}
	if req.Faction != "" && req.Faction != agent.Faction {
		if req.Faction != storage.FactionRed && req.Faction != storage.FactionBlack {
			writeError(w, http.StatusBadRequest, "faction must be RED or BLACK")
			return
		}
		if agent.Faction != storage.FactionNeutral {
			writeError(w, http.StatusConflict, "faction already chosen")
			return
		}
		faction = req.Faction
	}

	if err := s.db.UpdateAgentProfile(agent.ID, name, bio, faction); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "update agent: "+err.Error())
		return
	}

	updated, err := s.db.GetAgent(agent.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reload agent: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDecide runs one matchmaker tick for the calling agent.
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.agentAuth(w, r)
	if !ok {
		return
	}
	if !s.decideLimits.Allow(agent.ID) {
		writeError(w, http.StatusTooManyRequests, "decide rate limit exceeded")
		return
	}

	action, err := s.engine.Decide(r.Context(), agent)
	if err != nil {
		writeArenaError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// handleMatch is the explicit join-or-host entry point, bypassing the
// matchmaker's cooldown and willingness gates.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.agentAuth(w, r)
	if !ok {
		return
	}

	action, err := s.engine.Match(agent)
	if err != nil {
		writeArenaError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}
