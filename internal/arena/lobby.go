package arena

import (
	"fmt"
	"log"

	"github.com/kunflip-labs/kunarena/internal/storage"
)

// Lobby is the read-side view of the arena: active battles, loitering agents,
// and global faction dominance.
type Lobby struct {
	Battles  []storage.Battle `json:"battles"`
	Agents   []storage.Agent  `json:"agents"`
	RedElo   int64            `json:"red_elo"`
	BlackElo int64            `json:"black_elo"`
}

// LobbyView runs one reconciliation pass and then assembles the lobby.
// Reconciliation is repair, not prevention: races are prevented at the
// conditional-update boundaries, this just cleans up what slipped through.
func (e *Engine) LobbyView() (*Lobby, error) {
	if err := e.Reconcile(); err != nil {
		return nil, err
	}

	now := e.now()
	battles, err := e.db.ListActiveBattles()
	if err != nil {
		return nil, fmt.Errorf("lobby battles: %w", err)
	}

	slotted := make([]string, 0, len(battles)*2)
	for _, b := range battles {
		if b.RedAgentID != "" {
			slotted = append(slotted, b.RedAgentID)
		}
		if b.BlackAgentID != "" {
			slotted = append(slotted, b.BlackAgentID)
		}
	}

	agents, err := e.db.ListActiveAgents(
		[]string{storage.AgentIdle, storage.AgentSearching, storage.AgentReflecting, storage.AgentSpectating},
		now.Add(-ActiveAgentWindow).Unix(), slotted, 50,
	)
	if err != nil {
		return nil, fmt.Errorf("lobby agents: %w", err)
	}

	redElo, err := e.db.SumEloByFaction(storage.FactionRed)
	if err != nil {
		return nil, fmt.Errorf("lobby red elo: %w", err)
	}
	blackElo, err := e.db.SumEloByFaction(storage.FactionBlack)
	if err != nil {
		return nil, fmt.Errorf("lobby black elo: %w", err)
	}

	return &Lobby{Battles: battles, Agents: agents, RedElo: redElo, BlackElo: blackElo}, nil
}

// Reconcile is the consolidated self-healing pass: cancel battles with no
// recent activity, and break the "agent in two active battles" anomaly by
// keeping only the most recently updated one.
func (e *Engine) Reconcile() error {
	now := e.now()

	stale, err := e.db.ListStaleBattles(
		now.Add(-LobbyWaitingStale).Unix(),
		now.Add(-LobbyProgressStale).Unix(),
	)
	if err != nil {
		return fmt.Errorf("reconcile stale: %w", err)
	}
	if len(stale) > 0 {
		ids := make([]string, 0, len(stale))
		var agents []string
		for _, b := range stale {
			ids = append(ids, b.ID)
			if b.RedAgentID != "" {
				agents = append(agents, b.RedAgentID)
			}
			if b.BlackAgentID != "" {
				agents = append(agents, b.BlackAgentID)
			}
		}
		if err := e.db.CancelBattles(ids, now.Unix()); err != nil {
			return fmt.Errorf("reconcile cancel: %w", err)
		}
		if err := e.db.ReleaseAgents(agents); err != nil {
			return fmt.Errorf("reconcile release: %w", err)
		}
		log.Printf("[lobby] reconcile cancelled %d stale battles", len(ids))
	}

	// Dedupe: an agent must occupy at most one active battle. Keep the
	// most recently updated battle per offender, cancel the rest.
	active, err := e.db.ListActiveBattles()
	if err != nil {
		return fmt.Errorf("reconcile active: %w", err)
	}
	latest := make(map[string]*storage.Battle) // agent id -> newest battle
	doomed := make(map[string]bool)
	for i := range active {
		b := &active[i]
		for _, id := range []string{b.RedAgentID, b.BlackAgentID} {
			if id == "" {
				continue
			}
			prev, seen := latest[id]
			if !seen {
				latest[id] = b
				continue
			}
			if b.UpdatedAt > prev.UpdatedAt {
				doomed[prev.ID] = true
				latest[id] = b
			} else {
				doomed[b.ID] = true
			}
		}
	}
	if len(doomed) > 0 {
		ids := make([]string, 0, len(doomed))
		for id := range doomed {
			ids = append(ids, id)
		}
		if err := e.db.CancelBattles(ids, now.Unix()); err != nil {
			return fmt.Errorf("reconcile dedupe: %w", err)
		}
		log.Printf("[lobby] reconcile cancelled %d duplicate battles", len(ids))
	}
	return nil
}
