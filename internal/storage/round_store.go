package storage

import (
	"database/sql"
	"fmt"
)

// --- Rounds ---

const roundColumns = `id, battle_id, round_num, speaker_id, content,
	judge_score, judge_comment, skill_type, skill_effect, created_at`

// scanRound scans a single round row in roundColumns order.
func scanRound(row interface{ Scan(...any) error }) (*Round, error) {
	r := &Round{}
	var skillType, skillEffect sql.NullString
	err := row.Scan(&r.ID, &r.BattleID, &r.RoundNum, &r.SpeakerID, &r.Content,
		&r.JudgeScore, &r.JudgeComment, &skillType, &skillEffect, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.SkillType = strOrEmpty(skillType)
	r.SkillEffect = strOrEmpty(skillEffect)
	return r, nil
}

// ListRounds returns all rounds of a battle in play order.
func (d *DB) ListRounds(battleID string) ([]Round, error) {
	rows, err := d.db.Query(
		`SELECT `+roundColumns+` FROM rounds WHERE battle_id = ? ORDER BY round_num ASC`,
		battleID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	var rounds []Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		rounds = append(rounds, *r)
	}
	return rounds, rows.Err()
}

// ListRecentRounds returns the last n rounds of a battle in play order.
func (d *DB) ListRecentRounds(battleID string, n int) ([]Round, error) {
	rows, err := d.db.Query(
		`SELECT * FROM (
		 SELECT `+roundColumns+` FROM rounds WHERE battle_id = ?
		 ORDER BY round_num DESC LIMIT ?
		 ) ORDER BY round_num ASC`,
		battleID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent rounds: %w", err)
	}
	defer rows.Close()

	var rounds []Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		rounds = append(rounds, *r)
	}
	return rounds, rows.Err()
}

// GetRound retrieves a round by ID.
func (d *DB) GetRound(id string) (*Round, error) {
	r, err := scanRound(d.db.QueryRow(
		`SELECT `+roundColumns+` FROM rounds WHERE id = ?`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("get round: %w", err)
	}
	return r, nil
}

// CommitRound is the turn engine's atomicity boundary. Inside one transaction
// it re-reads the battle's current round and, iff it still equals
// expectedRound, inserts the round and either advances the battle or finishes
// it once the turn cap is exceeded. Two concurrent attempts to play the same
// turn resolve to exactly one success; the loser gets ErrRoundMismatch (a
// duplicate-key insert is treated identically).
func (d *DB) CommitRound(r *Round, expectedRound, turnCap, eloDelta int, now int64) (*TurnOutcome, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin commit round: %w", err)
	}
	defer tx.Rollback()

	b, err := scanBattle(tx.QueryRow(
		`SELECT `+battleColumns+` FROM battles WHERE id = ?`, r.BattleID,
	))
	if err != nil {
		return nil, fmt.Errorf("commit round reload battle: %w", err)
	}
	if b.Status != BattleInProgress || b.CurrentRound != expectedRound {
		return nil, ErrRoundMismatch
	}

	_, err = tx.Exec(
		`INSERT INTO rounds (id, battle_id, round_num, speaker_id, content,
		 judge_score, judge_comment, skill_type, skill_effect, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.BattleID, r.RoundNum, r.SpeakerID, r.Content,
		r.JudgeScore, r.JudgeComment, nullStr(r.SkillType), nullStr(r.SkillEffect), now,
	)
	if isUniqueViolation(err) {
		return nil, ErrRoundMismatch
	}
	if err != nil {
		return nil, fmt.Errorf("commit round insert: %w", err)
	}

	out := &TurnOutcome{NextRound: expectedRound + 1}

	if out.NextRound > turnCap {
		// Final turn: derive both totals from the rounds table, decide the
		// winner, and settle the participants' stats in the same transaction.
		if err := tx.QueryRow(
			`SELECT
			 COALESCE(SUM(CASE WHEN a.faction = 'RED' THEN r.judge_score ELSE 0 END), 0),
			 COALESCE(SUM(CASE WHEN a.faction = 'BLACK' THEN r.judge_score ELSE 0 END), 0)
			 FROM rounds r JOIN agents a ON a.id = r.speaker_id
			 WHERE r.battle_id = ?`,
			r.BattleID,
		).Scan(&out.RedScore, &out.BlackScore); err != nil {
			return nil, fmt.Errorf("commit round score totals: %w", err)
		}

		out.Finished = true
		switch {
		case out.RedScore > out.BlackScore:
			out.WinnerID = b.RedAgentID
		case out.BlackScore > out.RedScore:
			out.WinnerID = b.BlackAgentID
		default:
			out.WinnerID = WinnerDraw
		}

		if _, err := tx.Exec(
			`UPDATE battles SET status = 'FINISHED', winner_id = ?, red_score = ?,
			 black_score = ?, updated_at = ? WHERE id = ?`,
			out.WinnerID, out.RedScore, out.BlackScore, now, r.BattleID,
		); err != nil {
			return nil, fmt.Errorf("commit round finish battle: %w", err)
		}

		if out.WinnerID == WinnerDraw {
			for _, id := range []string{b.RedAgentID, b.BlackAgentID} {
				if id == "" {
					continue
				}
				if _, err := tx.Exec(`UPDATE agents SET draws = draws + 1 WHERE id = ?`, id); err != nil {
					return nil, fmt.Errorf("commit round draw stats: %w", err)
				}
			}
		} else {
			loserID := b.BlackAgentID
			if out.WinnerID == b.BlackAgentID {
				loserID = b.RedAgentID
			}
			if _, err := tx.Exec(
				`UPDATE agents SET wins = wins + 1, elo = elo + ? WHERE id = ?`,
				eloDelta, out.WinnerID,
			); err != nil {
				return nil, fmt.Errorf("commit round winner stats: %w", err)
			}
			if loserID != "" {
				if _, err := tx.Exec(
					`UPDATE agents SET losses = losses + 1, elo = elo - ? WHERE id = ?`,
					eloDelta, loserID,
				); err != nil {
					return nil, fmt.Errorf("commit round loser stats: %w", err)
				}
			}
		}
	} else {
		if _, err := tx.Exec(
			`UPDATE battles SET current_round = ?, updated_at = ? WHERE id = ?`,
			out.NextRound, now, r.BattleID,
		); err != nil {
			return nil, fmt.Errorf("commit round advance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit round: %w", err)
	}
	return out, nil
}

// --- Votes ---

// CreateVote inserts a spectator vote. A duplicate (round, voter) pair yields
// ErrDuplicateVote.
func (d *DB) CreateVote(v *Vote) error {
	_, err := d.db.Exec(
		`INSERT INTO votes (id, round_id, voter_id, choice, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.RoundID, v.VoterID, v.Choice, v.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateVote
	}
	if err != nil {
		return fmt.Errorf("create vote: %w", err)
	}
	return nil
}

// CountVotes returns the number of votes cast on a round.
func (d *DB) CountVotes(roundID string) (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM votes WHERE round_id = ?`, roundID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return n, nil
}
