package storage

import (
	"database/sql"
	"fmt"
)

// --- Agent logs ---

// CreateAgentLog appends a narrative record. The (agent_id, battle_id, type)
// uniqueness key makes repeated reflection attempts on the same battle yield
// ErrLogExists instead of duplicate entries.
func (d *DB) CreateAgentLog(l *AgentLog) error {
	_, err := d.db.Exec(
		`INSERT INTO agent_logs (id, agent_id, type, description, battle_id, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.AgentID, l.Type, l.Description, nullStr(l.BattleID), nullStr(l.Data), l.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrLogExists
	}
	if err != nil {
		return fmt.Errorf("create agent log: %w", err)
	}
	return nil
}

// ApplyReflection persists one reflection atomically: the log insert claims
// the (agent_id, battle_id, type) key and the faith outcome commits with it.
// A concurrent poller gets ErrLogExists and changes nothing; any later
// failure rolls the claim back instead of burning it, so the reflection can
// be retried on the next tick. The agent comes out IDLE with the cooldown
// anchored at lastBattleAt.
func (d *DB) ApplyReflection(l *AgentLog, faith int, faction string, lastBattleAt int64) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin reflection: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO agent_logs (id, agent_id, type, description, battle_id, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.AgentID, l.Type, l.Description, nullStr(l.BattleID), nullStr(l.Data), l.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrLogExists
	}
	if err != nil {
		return fmt.Errorf("reflection log: %w", err)
	}

	res, err := tx.Exec(
		`UPDATE agents SET faith = ?, faction = ?, status = ?, last_battle_at = ? WHERE id = ?`,
		faith, faction, AgentIdle, lastBattleAt, l.AgentID,
	)
	if err != nil {
		return fmt.Errorf("reflection faith: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reflection faith rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("reflection faith: %w", sql.ErrNoRows)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply reflection: %w", err)
	}
	return nil
}

// HasReflection reports whether the agent already reflected on this battle.
func (d *DB) HasReflection(agentID, battleID string) (bool, error) {
	var n int
	err := d.db.QueryRow(
		`SELECT COUNT(*) FROM agent_logs
		 WHERE agent_id = ? AND battle_id = ? AND type = 'REFLECTION'`,
		agentID, battleID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has reflection: %w", err)
	}
	return n > 0, nil
}

// ListAgentLogs returns the agent's most recent log entries, newest first.
func (d *DB) ListAgentLogs(agentID string, limit int) ([]AgentLog, error) {
	rows, err := d.db.Query(
		`SELECT id, agent_id, type, description, battle_id, data, created_at
		 FROM agent_logs WHERE agent_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list agent logs: %w", err)
	}
	defer rows.Close()

	var logs []AgentLog
	for rows.Next() {
		var l AgentLog
		var battleID, data sql.NullString
		if err := rows.Scan(&l.ID, &l.AgentID, &l.Type, &l.Description,
			&battleID, &data, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan agent log: %w", err)
		}
		l.BattleID = strOrEmpty(battleID)
		l.Data = strOrEmpty(data)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
