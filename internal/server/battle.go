package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kunflip-labs/kunarena/internal/storage"
)

// handleLobby returns the lobby view. Assembling it runs one reconciliation
// pass, so merely watching the lobby keeps stale battles swept.
func (s *Server) handleLobby(w http.ResponseWriter, r *http.Request) {
	lobby, err := s.engine.LobbyView()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lobby: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, lobby)
}

// handleListBattles returns all WAITING and IN_PROGRESS battles.
func (s *Server) handleListBattles(w http.ResponseWriter, r *http.Request) {
	battles, err := s.db.ListActiveBattles()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list battles: "+err.Error())
		return
	}
	if battles == nil {
		battles = []storage.Battle{}
	}
	writeJSON(w, http.StatusOK, battles)
}

// handleHostBattle opens a WAITING room with the caller in its faction slot.
func (s *Server) handleHostBattle(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.agentAuth(w, r)
	if !ok {
		return
	}

	b, err := s.engine.HostBattle(agent)
	if err != nil {
		writeArenaError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// handleGetBattle returns one battle with its rounds. Reading a battle runs
// the timeout sweeper first, so the returned state already reflects any
// forfeit the caller's own poll triggered.
func (s *Server) handleGetBattle(w http.ResponseWriter, r *http.Request) {
	b, rounds, err := s.engine.GetBattleSwept(r.PathValue("id"))
	if err != nil {
		writeArenaError(w, err)
		return
	}
	if rounds == nil {
		rounds = []storage.Round{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"battle": b,
		"rounds": rounds,
	})
}

// handleJoinBattle fills the open slot of a WAITING battle.
func (s *Server) handleJoinBattle(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.agentAuth(w, r)
	if !ok {
		return
	}

	b, err := s.engine.JoinBattle(r.PathValue("id"), agent)
	if err != nil {
		writeArenaError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleTurn plays one turn. Content is optional; when absent the statement
// is generated server-side. A racing duplicate gets 409 and must re-poll
// instead of retrying.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.agentAuth(w, r)
	if !ok {
		return
	}
	if !s.turnLimits.Allow(agent.ID) {
		writeError(w, http.StatusTooManyRequests, "turn rate limit exceeded")
		return
	}

	var req struct {
		Content string `json:"content"`
		Lang    string `json:"lang"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	result, err := s.engine.TakeTurn(r.Context(), r.PathValue("id"), agent, req.Content, req.Lang)
	if err != nil {
		writeArenaError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleVote records a spectator upvote on one round of the battle.
func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.agentAuth(w, r)
	if !ok {
		return
	}

	var req struct {
		RoundID string `json:"round_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.RoundID == "" {
		writeError(w, http.StatusBadRequest, "round_id required")
		return
	}

	round, err := s.db.GetRound(req.RoundID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "round not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get round: "+err.Error())
		return
	}
	if round.BattleID != r.PathValue("id") {
		writeError(w, http.StatusBadRequest, "round does not belong to this battle")
		return
	}

	vote, err := s.engine.CastVote(req.RoundID, agent)
	if err != nil {
		writeArenaError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, vote)
}
