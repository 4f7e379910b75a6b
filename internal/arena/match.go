package arena

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/kunflip-labs/kunarena/internal/storage"
)

// ErrAlreadyVoted mirrors the storage sentinel for callers that only import
// this package.
var ErrAlreadyVoted = storage.ErrDuplicateVote

// HostBattle creates a WAITING room with the agent in its faction's slot.
// Idempotent: an agent already in an active battle gets that battle back
// instead of a second room.
func (e *Engine) HostBattle(agent *storage.Agent) (*storage.Battle, error) {
	if agent.Faction != storage.FactionRed && agent.Faction != storage.FactionBlack {
		return nil, ErrFactionNotSet
	}

	active, err := e.db.FindActiveBattleForAgent(agent.ID)
	if err != nil {
		return nil, fmt.Errorf("host battle: %w", err)
	}
	if active != nil {
		return active, nil
	}

	return e.hostBattle(agent, e.now().Unix())
}

func (e *Engine) hostBattle(agent *storage.Agent, now int64) (*storage.Battle, error) {
	b := &storage.Battle{
		ID:        uuid.New().String(),
		Status:    storage.BattleWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if agent.Faction == storage.FactionRed {
		b.RedAgentID = agent.ID
	} else {
		b.BlackAgentID = agent.ID
	}
	if err := e.db.CreateBattle(b); err != nil {
		return nil, fmt.Errorf("host battle: %w", err)
	}
	if err := e.db.TouchAgent(agent.ID, storage.AgentSearching, now); err != nil {
		return nil, fmt.Errorf("host battle touch: %w", err)
	}
	log.Printf("[arena] agent %s hosting battle %s as %s", agent.ID, b.ID, agent.Faction)
	return b, nil
}

// Match joins the freshest open battle for the agent's faction, or hosts a
// new WAITING room when none exists. Unlike Decide it skips cooldown,
// willingness, and reflection; an agent already in an active battle gets
// BUSY back instead of a second room.
func (e *Engine) Match(agent *storage.Agent) (Action, error) {
	active, err := e.db.FindActiveBattleForAgent(agent.ID)
	if err != nil {
		return Action{}, fmt.Errorf("match: %w", err)
	}
	if active != nil {
		return Action{Kind: ActionBusy, BattleID: active.ID}, nil
	}
	return e.matchOrHost(agent, e.now().Unix())
}

// JoinBattle claims the open slot of a specific WAITING battle for the agent.
// The claim is a conditional update; a racing joiner losing it gets
// ErrSlotTaken and should fall back to matchmaking.
func (e *Engine) JoinBattle(battleID string, agent *storage.Agent) (*storage.Battle, error) {
	if agent.Faction != storage.FactionRed && agent.Faction != storage.FactionBlack {
		return nil, ErrFactionNotSet
	}

	b, err := e.db.GetBattle(battleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBattleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("join battle: %w", err)
	}
	if b.Status != storage.BattleWaiting {
		return nil, ErrSlotTaken
	}
	if b.IsParticipant(agent.ID) {
		return b, nil
	}

	now := e.now().Unix()
	won, err := e.db.FillOpenSlot(battleID, agent.Faction, agent.ID, now)
	if err != nil {
		return nil, fmt.Errorf("join battle fill: %w", err)
	}
	if !won {
		return nil, ErrSlotTaken
	}

	b, err = e.db.GetBattle(battleID)
	if err != nil {
		return nil, fmt.Errorf("join battle reload: %w", err)
	}
	status := storage.AgentSearching
	if b.Status == storage.BattleInProgress {
		status = storage.AgentInBattle
	}
	for _, id := range []string{b.RedAgentID, b.BlackAgentID} {
		if id == "" {
			continue
		}
		if err := e.db.TouchAgent(id, status, now); err != nil {
			return nil, fmt.Errorf("join battle touch: %w", err)
		}
	}
	return b, nil
}

// CastVote records a spectator upvote on a round and credits the voter's
// contribution counter. Duplicate (round, voter) pairs are rejected with
// ErrAlreadyVoted and leave no trace.
func (e *Engine) CastVote(roundID string, voter *storage.Agent) (*storage.Vote, error) {
	if _, err := e.db.GetRound(roundID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("cast vote: %w", err)
	}

	v := &storage.Vote{
		ID:        uuid.New().String(),
		RoundID:   roundID,
		VoterID:   voter.ID,
		Choice:    storage.VoteUpvote,
		CreatedAt: e.now().Unix(),
	}
	if err := e.db.CreateVote(v); err != nil {
		return nil, err
	}
	if err := e.db.IncrementContribution(voter.ID); err != nil {
		return nil, fmt.Errorf("cast vote contribution: %w", err)
	}
	return v, nil
}
