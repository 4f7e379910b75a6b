package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Concurrency-loss sentinels. These are expected outcomes of racing pollers,
// not faults: the losing caller re-reads the authoritative state and moves on.
var (
	// ErrRoundMismatch means another caller already played this round.
	ErrRoundMismatch = errors.New("round already played")
	// ErrDuplicateVote means this voter already voted on this round.
	ErrDuplicateVote = errors.New("already voted")
	// ErrLogExists means a log with the same idempotency key already exists.
	ErrLogExists = errors.New("log already recorded")
)

// DB wraps a sql.DB connection to a SQLite database.
type DB struct {
	db *sql.DB
}

// NewDB opens (or creates) a SQLite database at path and runs schema migrations.
func NewDB(path string) (*DB, error) {
	// modernc.org/sqlite takes pragmas via _pragma=name(value); each new
	// connection in the pool gets them applied.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	// Enable foreign keys.
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	d := &DB{db: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// migrate creates all required tables if they do not already exist.
func (d *DB) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS agents (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    bio TEXT NOT NULL DEFAULT '',
    faction TEXT NOT NULL DEFAULT 'NEUTRAL',
    faith INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'IDLE',
    elo INTEGER NOT NULL DEFAULT 1000,
    wins INTEGER NOT NULL DEFAULT 0,
    losses INTEGER NOT NULL DEFAULT 0,
    draws INTEGER NOT NULL DEFAULT 0,
    contribution INTEGER NOT NULL DEFAULT 0,
    token_hash TEXT NOT NULL UNIQUE,
    last_seen_at INTEGER NOT NULL DEFAULT 0,
    last_battle_at INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS battles (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'WAITING',
    red_agent_id TEXT,
    black_agent_id TEXT,
    current_round INTEGER NOT NULL DEFAULT 0,
    red_score INTEGER NOT NULL DEFAULT 0,
    black_score INTEGER NOT NULL DEFAULT 0,
    winner_id TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rounds (
    id TEXT PRIMARY KEY,
    battle_id TEXT NOT NULL,
    round_num INTEGER NOT NULL,
    speaker_id TEXT NOT NULL,
    content TEXT NOT NULL,
    judge_score INTEGER NOT NULL DEFAULT 0,
    judge_comment TEXT NOT NULL DEFAULT '',
    skill_type TEXT,
    skill_effect TEXT,
    created_at INTEGER NOT NULL,
    UNIQUE(battle_id, round_num),
    FOREIGN KEY (battle_id) REFERENCES battles(id)
);

CREATE TABLE IF NOT EXISTS votes (
    id TEXT PRIMARY KEY,
    round_id TEXT NOT NULL,
    voter_id TEXT NOT NULL,
    choice TEXT NOT NULL DEFAULT 'UPVOTE',
    created_at INTEGER NOT NULL,
    UNIQUE(round_id, voter_id),
    FOREIGN KEY (round_id) REFERENCES rounds(id)
);

CREATE TABLE IF NOT EXISTS agent_logs (
    id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    type TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    battle_id TEXT,
    data TEXT,
    created_at INTEGER NOT NULL,
    UNIQUE(agent_id, battle_id, type),
    FOREIGN KEY (agent_id) REFERENCES agents(id)
);

CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);
CREATE INDEX IF NOT EXISTS idx_agents_faction ON agents(faction);
CREATE INDEX IF NOT EXISTS idx_battles_status ON battles(status);
CREATE INDEX IF NOT EXISTS idx_battles_updated ON battles(updated_at);
CREATE INDEX IF NOT EXISTS idx_rounds_battle ON rounds(battle_id);
CREATE INDEX IF NOT EXISTS idx_logs_agent ON agent_logs(agent_id);`
	_, err := d.db.Exec(schema)
	return err
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// nullStr maps an empty string to NULL for nullable columns.
func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// strOrEmpty unwraps a nullable column back to a plain string.
func strOrEmpty(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
