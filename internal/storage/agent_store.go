package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

// --- Agent CRUD ---

const agentColumns = `id, name, bio, faction, faith, status, elo, wins, losses,
	draws, contribution, token_hash, last_seen_at, last_battle_at, created_at`

// scanAgent scans a single agent row in agentColumns order.
func scanAgent(row interface{ Scan(...any) error }) (*Agent, error) {
	a := &Agent{}
	err := row.Scan(&a.ID, &a.Name, &a.Bio, &a.Faction, &a.Faith, &a.Status,
		&a.Elo, &a.Wins, &a.Losses, &a.Draws, &a.Contribution, &a.TokenHash,
		&a.LastSeenAt, &a.LastBattleAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CreateAgent inserts a new agent record.
func (d *DB) CreateAgent(a *Agent) error {
	_, err := d.db.Exec(
		`INSERT INTO agents (id, name, bio, faction, faith, status, elo, wins, losses,
		 draws, contribution, token_hash, last_seen_at, last_battle_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Bio, a.Faction, a.Faith, a.Status, a.Elo, a.Wins, a.Losses,
		a.Draws, a.Contribution, a.TokenHash, a.LastSeenAt, a.LastBattleAt, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent by ID.
func (d *DB) GetAgent(id string) (*Agent, error) {
	a, err := scanAgent(d.db.QueryRow(
		`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

// GetAgentByTokenHash retrieves an agent by its access token digest.
func (d *DB) GetAgentByTokenHash(hash string) (*Agent, error) {
	a, err := scanAgent(d.db.QueryRow(
		`SELECT `+agentColumns+` FROM agents WHERE token_hash = ?`, hash,
	))
	if err != nil {
		return nil, fmt.Errorf("get agent by token: %w", err)
	}
	return a, nil
}

// UpdateAgentProfile sets name, bio, and faction for an agent.
func (d *DB) UpdateAgentProfile(id, name, bio, faction string) error {
	res, err := d.db.Exec(
		`UPDATE agents SET name = ?, bio = ?, faction = ? WHERE id = ?`,
		name, bio, faction, id,
	)
	if err != nil {
		return fmt.Errorf("update agent profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update agent profile rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update agent profile: %w", sql.ErrNoRows)
	}
	return nil
}

// TouchAgent updates the heartbeat timestamp and status for an agent.
func (d *DB) TouchAgent(id, status string, now int64) error {
	_, err := d.db.Exec(
		`UPDATE agents SET status = ?, last_seen_at = ? WHERE id = ?`,
		status, now, id,
	)
	if err != nil {
		return fmt.Errorf("touch agent: %w", err)
	}
	return nil
}

// SetAgentResting marks an agent idle-with-cooldown, anchoring last_battle_at.
func (d *DB) SetAgentResting(id, status string, lastBattleAt int64) error {
	_, err := d.db.Exec(
		`UPDATE agents SET status = ?, last_battle_at = ? WHERE id = ?`,
		status, lastBattleAt, id,
	)
	if err != nil {
		return fmt.Errorf("set agent resting: %w", err)
	}
	return nil
}

// --- Atomic counters ---
//
// Counters never go through read-modify-write of a cached value; every
// mutation is a single relative UPDATE.

// RecordWin increments wins and elo (+24) for an agent.
func (d *DB) RecordWin(id string, eloDelta int) error {
	_, err := d.db.Exec(
		`UPDATE agents SET wins = wins + 1, elo = elo + ? WHERE id = ?`,
		eloDelta, id,
	)
	if err != nil {
		return fmt.Errorf("record win: %w", err)
	}
	return nil
}

// RecordLoss increments losses and decrements elo for an agent.
func (d *DB) RecordLoss(id string, eloDelta int) error {
	_, err := d.db.Exec(
		`UPDATE agents SET losses = losses + 1, elo = elo - ? WHERE id = ?`,
		eloDelta, id,
	)
	if err != nil {
		return fmt.Errorf("record loss: %w", err)
	}
	return nil
}

// RecordDraw increments the draw counter for an agent.
func (d *DB) RecordDraw(id string) error {
	_, err := d.db.Exec(`UPDATE agents SET draws = draws + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("record draw: %w", err)
	}
	return nil
}

// IncrementContribution bumps the vote-cast counter for an agent.
func (d *DB) IncrementContribution(id string) error {
	_, err := d.db.Exec(`UPDATE agents SET contribution = contribution + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("increment contribution: %w", err)
	}
	return nil
}

// --- Lobby queries ---

// ListActiveAgents returns agents in one of the given statuses seen since the
// cutoff, excluding the given ids, most recent first.
func (d *DB) ListActiveAgents(statuses []string, seenSince int64, exclude []string, limit int) ([]Agent, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(statuses)+len(exclude)+2)
	for _, s := range statuses {
		args = append(args, s)
	}
	args = append(args, seenSince)

	q := `SELECT ` + agentColumns + ` FROM agents
		WHERE status IN (?` + strings.Repeat(",?", len(statuses)-1) + `)
		AND last_seen_at > ?`
	if len(exclude) > 0 {
		q += ` AND id NOT IN (?` + strings.Repeat(",?", len(exclude)-1) + `)`
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	q += ` ORDER BY last_seen_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list active agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// SumEloByFaction returns the total elo held by one faction.
func (d *DB) SumEloByFaction(faction string) (int64, error) {
	var sum sql.NullInt64
	err := d.db.QueryRow(
		`SELECT SUM(elo) FROM agents WHERE faction = ?`, faction,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum elo by faction: %w", err)
	}
	return sum.Int64, nil
}

// ReleaseAgents resets the given agents to IDLE. Used by the lobby
// reconciliation pass when their battles are cancelled.
func (d *DB) ReleaseAgents(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := d.db.Exec(
		`UPDATE agents SET status = 'IDLE' WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("release agents: %w", err)
	}
	return nil
}
