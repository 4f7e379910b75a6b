package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// --- Battle CRUD ---

const battleColumns = `id, status, red_agent_id, black_agent_id, current_round,
	red_score, black_score, winner_id, created_at, updated_at`

// scanBattle scans a single battle row in battleColumns order.
func scanBattle(row interface{ Scan(...any) error }) (*Battle, error) {
	b := &Battle{}
	var red, black, winner sql.NullString
	err := row.Scan(&b.ID, &b.Status, &red, &black, &b.CurrentRound,
		&b.RedScore, &b.BlackScore, &winner, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.RedAgentID = strOrEmpty(red)
	b.BlackAgentID = strOrEmpty(black)
	b.WinnerID = strOrEmpty(winner)
	return b, nil
}

// CreateBattle inserts a new battle record.
func (d *DB) CreateBattle(b *Battle) error {
	_, err := d.db.Exec(
		`INSERT INTO battles (id, status, red_agent_id, black_agent_id, current_round,
		 red_score, black_score, winner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Status, nullStr(b.RedAgentID), nullStr(b.BlackAgentID), b.CurrentRound,
		b.RedScore, b.BlackScore, nullStr(b.WinnerID), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create battle: %w", err)
	}
	return nil
}

// GetBattle retrieves a battle by ID.
func (d *DB) GetBattle(id string) (*Battle, error) {
	b, err := scanBattle(d.db.QueryRow(
		`SELECT `+battleColumns+` FROM battles WHERE id = ?`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("get battle: %w", err)
	}
	return b, nil
}

// FindActiveBattleForAgent returns the agent's WAITING or IN_PROGRESS battle,
// most recently updated first, or nil if there is none.
func (d *DB) FindActiveBattleForAgent(agentID string) (*Battle, error) {
	b, err := scanBattle(d.db.QueryRow(
		`SELECT `+battleColumns+` FROM battles
		 WHERE status IN ('WAITING', 'IN_PROGRESS')
		 AND (red_agent_id = ? OR black_agent_id = ?)
		 ORDER BY updated_at DESC LIMIT 1`,
		agentID, agentID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active battle: %w", err)
	}
	return b, nil
}

// FindJoinableBattle returns the oldest fresh WAITING battle whose slot for
// the given faction is open and whose opposite slot is already filled, or nil.
func (d *DB) FindJoinableBattle(faction string, updatedSince int64) (*Battle, error) {
	open, filled := "red_agent_id", "black_agent_id"
	if faction == FactionBlack {
		open, filled = "black_agent_id", "red_agent_id"
	}
	b, err := scanBattle(d.db.QueryRow(
		`SELECT `+battleColumns+` FROM battles
		 WHERE status = 'WAITING' AND `+open+` IS NULL AND `+filled+` IS NOT NULL
		 AND updated_at > ?
		 ORDER BY created_at ASC LIMIT 1`,
		updatedSince,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find joinable battle: %w", err)
	}
	return b, nil
}

// FindRecentFinishedForAgent returns the agent's most recently finished battle
// updated since the cutoff, or nil.
func (d *DB) FindRecentFinishedForAgent(agentID string, updatedSince int64) (*Battle, error) {
	b, err := scanBattle(d.db.QueryRow(
		`SELECT `+battleColumns+` FROM battles
		 WHERE status = 'FINISHED'
		 AND (red_agent_id = ? OR black_agent_id = ?)
		 AND updated_at > ?
		 ORDER BY updated_at DESC LIMIT 1`,
		agentID, agentID, updatedSince,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find recent finished battle: %w", err)
	}
	return b, nil
}

// FindRecentFinished returns any battle finished since the cutoff, or nil.
// Used by the neutral spectator reflection path.
func (d *DB) FindRecentFinished(updatedSince int64) (*Battle, error) {
	b, err := scanBattle(d.db.QueryRow(
		`SELECT `+battleColumns+` FROM battles
		 WHERE status = 'FINISHED' AND updated_at > ?
		 ORDER BY updated_at DESC LIMIT 1`,
		updatedSince,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find recent finished battle: %w", err)
	}
	return b, nil
}

// --- Conditional updates ---
//
// Every contended write is a single UPDATE whose WHERE clause encodes the
// expected state. Zero rows affected means another caller got there first.

// FillOpenSlot atomically claims the open slot for the given faction. When the
// opposite slot is already occupied the battle flips to IN_PROGRESS with
// currentRound=1 in the same statement. Returns false when the slot was taken
// or the battle left WAITING in the meantime.
func (d *DB) FillOpenSlot(battleID, faction, agentID string, now int64) (bool, error) {
	slot, other := "red_agent_id", "black_agent_id"
	if faction == FactionBlack {
		slot, other = "black_agent_id", "red_agent_id"
	}
	res, err := d.db.Exec(
		`UPDATE battles SET
		 `+slot+` = ?,
		 status = CASE WHEN `+other+` IS NOT NULL THEN 'IN_PROGRESS' ELSE 'WAITING' END,
		 current_round = CASE WHEN `+other+` IS NOT NULL THEN 1 ELSE current_round END,
		 updated_at = ?
		 WHERE id = ? AND status = 'WAITING' AND `+slot+` IS NULL`,
		agentID, now, battleID,
	)
	if err != nil {
		return false, fmt.Errorf("fill slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fill slot rows affected: %w", err)
	}
	return n > 0, nil
}

// CancelBattleIf flips the battle to CANCELLED iff it is still in the expected
// status. Returns false when the status moved on already.
func (d *DB) CancelBattleIf(battleID, expectStatus string, now int64) (bool, error) {
	res, err := d.db.Exec(
		`UPDATE battles SET status = 'CANCELLED', updated_at = ? WHERE id = ? AND status = ?`,
		now, battleID, expectStatus,
	)
	if err != nil {
		return false, fmt.Errorf("cancel battle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel battle rows affected: %w", err)
	}
	return n > 0, nil
}

// ForfeitBattle force-finishes a stalled battle in favor of winnerID. The
// WHERE clause guarantees only one concurrent reader wins this race. The
// score totals are derived from the rounds actually played, same as a
// battle that runs to the turn cap.
func (d *DB) ForfeitBattle(battleID, winnerID string, now int64) (bool, error) {
	res, err := d.db.Exec(
		`UPDATE battles SET status = 'FINISHED', winner_id = ?, updated_at = ?,
		 red_score = (SELECT COALESCE(SUM(r.judge_score), 0)
			FROM rounds r JOIN agents a ON a.id = r.speaker_id
			WHERE r.battle_id = battles.id AND a.faction = 'RED'),
		 black_score = (SELECT COALESCE(SUM(r.judge_score), 0)
			FROM rounds r JOIN agents a ON a.id = r.speaker_id
			WHERE r.battle_id = battles.id AND a.faction = 'BLACK')
		 WHERE id = ? AND status = 'IN_PROGRESS' AND winner_id IS NULL`,
		winnerID, now, battleID,
	)
	if err != nil {
		return false, fmt.Errorf("forfeit battle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("forfeit battle rows affected: %w", err)
	}
	return n > 0, nil
}

// --- Lobby queries ---

// ListActiveBattles returns WAITING and IN_PROGRESS battles, most recently
// updated first.
func (d *DB) ListActiveBattles() ([]Battle, error) {
	rows, err := d.db.Query(
		`SELECT ` + battleColumns + ` FROM battles
		 WHERE status IN ('WAITING', 'IN_PROGRESS')
		 ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list active battles: %w", err)
	}
	defer rows.Close()

	var battles []Battle
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan battle: %w", err)
		}
		battles = append(battles, *b)
	}
	return battles, rows.Err()
}

// ListStaleBattles returns battles that outlived their activity windows:
// WAITING older than waitingBefore, IN_PROGRESS older than inProgressBefore.
func (d *DB) ListStaleBattles(waitingBefore, inProgressBefore int64) ([]Battle, error) {
	rows, err := d.db.Query(
		`SELECT `+battleColumns+` FROM battles
		 WHERE (status = 'WAITING' AND updated_at < ?)
		 OR (status = 'IN_PROGRESS' AND updated_at < ?)`,
		waitingBefore, inProgressBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale battles: %w", err)
	}
	defer rows.Close()

	var battles []Battle
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan battle: %w", err)
		}
		battles = append(battles, *b)
	}
	return battles, rows.Err()
}

// CancelBattles cancels the given battles unconditionally (reconciliation path).
func (d *DB) CancelBattles(ids []string, now int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{now}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := d.db.Exec(
		`UPDATE battles SET status = 'CANCELLED', updated_at = ?
		 WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("cancel battles: %w", err)
	}
	return nil
}
