package arena

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/kunflip-labs/kunarena/internal/storage"
)

// GetBattleSwept loads a battle and opportunistically runs the timeout
// sweeper over it. Every battle-detail read goes through here; there is no
// dedicated sweeping process.
func (e *Engine) GetBattleSwept(battleID string) (*storage.Battle, []storage.Round, error) {
	b, err := e.db.GetBattle(battleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrBattleNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get battle: %w", err)
	}

	if swept, err := e.sweep(b); err != nil {
		return nil, nil, err
	} else if swept {
		// Re-read so the caller sees the forfeited state.
		b, err = e.db.GetBattle(battleID)
		if err != nil {
			return nil, nil, fmt.Errorf("get battle after sweep: %w", err)
		}
	}

	rounds, err := e.db.ListRounds(battleID)
	if err != nil {
		return nil, nil, fmt.Errorf("get battle rounds: %w", err)
	}
	return b, rounds, nil
}

// sweep force-finishes a battle stalled past the turn deadline. The side
// whose turn it is forfeits; its opponent wins. The finish is a conditional
// update so only one concurrent reader applies it, and only that winner
// settles the stats. Returns whether this caller applied the forfeit.
func (e *Engine) sweep(b *storage.Battle) (bool, error) {
	if b.Status != storage.BattleInProgress || !b.HasBothSlots() {
		return false, nil
	}
	now := e.now()
	deadline := now.Add(-e.turnTimeout).Unix()
	if b.UpdatedAt > deadline {
		return false, nil
	}

	// The stalling side is whoever should be speaking.
	winnerID, loserID := b.RedAgentID, b.BlackAgentID
	if b.RedTurn() {
		winnerID, loserID = b.BlackAgentID, b.RedAgentID
	}

	won, err := e.db.ForfeitBattle(b.ID, winnerID, now.Unix())
	if err != nil {
		return false, fmt.Errorf("sweep forfeit: %w", err)
	}
	if !won {
		// A racing reader already finished it.
		return false, nil
	}

	if err := e.db.RecordWin(winnerID, EloDelta); err != nil {
		return false, fmt.Errorf("sweep winner stats: %w", err)
	}
	if err := e.db.RecordLoss(loserID, EloDelta); err != nil {
		return false, fmt.Errorf("sweep loser stats: %w", err)
	}
	log.Printf("[sweeper] battle %s timed out, %s forfeits, winner %s", b.ID, loserID, winnerID)
	return true, nil
}
