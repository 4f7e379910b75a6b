package arena

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/kunflip-labs/kunarena/internal/generate"
	"github.com/kunflip-labs/kunarena/internal/storage"
)

// TurnResult is what a successfully committed turn reports back.
type TurnResult struct {
	Round   *storage.Round       `json:"round"`
	Outcome *storage.TurnOutcome `json:"outcome"`
}

// TakeTurn plays one turn for the acting agent. content may be empty, in
// which case the statement is generated (with a template fallback). lang
// selects the prompt/template language.
//
// Returns ErrBattleNotFound, ErrBattleNotInProgress, ErrNotParticipant or
// ErrWrongTurn on precondition violations (no writes performed), and
// storage.ErrRoundMismatch when a concurrent caller already played this
// round. The caller must not retry a mismatch; the next poll observes the
// authoritative state.
func (e *Engine) TakeTurn(ctx context.Context, battleID string, actor *storage.Agent, content, lang string) (*TurnResult, error) {
	b, err := e.db.GetBattle(battleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBattleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take turn: %w", err)
	}
	if b.Status != storage.BattleInProgress {
		return nil, ErrBattleNotInProgress
	}
	if !b.IsParticipant(actor.ID) {
		return nil, ErrNotParticipant
	}

	speakerID := b.BlackAgentID
	if b.RedTurn() {
		speakerID = b.RedAgentID
	}
	if speakerID != actor.ID {
		return nil, ErrWrongTurn
	}

	rounds, err := e.db.ListRounds(battleID)
	if err != nil {
		return nil, fmt.Errorf("take turn rounds: %w", err)
	}

	opponentID := b.RedAgentID
	if actor.ID == b.RedAgentID {
		opponentID = b.BlackAgentID
	}
	opponent, err := e.db.GetAgent(opponentID)
	if err != nil {
		return nil, fmt.Errorf("take turn opponent: %w", err)
	}

	skill := triggerSkill(e.rng, e.skillChance, actor.Faction)

	if strings.TrimSpace(content) == "" {
		content = e.generateContent(ctx, b, actor, opponent, rounds, skill, lang)
	}
	content = truncateContent(content)

	score, comment := e.gen.Judge(ctx, content)

	var skillType, skillEffect string
	if skill != nil {
		skillType = skill.Type
		score, skillEffect = skill.Apply(score)
	}

	round := &storage.Round{
		ID:           uuid.New().String(),
		BattleID:     battleID,
		RoundNum:     b.CurrentRound,
		SpeakerID:    actor.ID,
		Content:      content,
		JudgeScore:   score,
		JudgeComment: comment,
		SkillType:    skillType,
		SkillEffect:  skillEffect,
	}

	now := e.now().Unix()
	outcome, err := e.db.CommitRound(round, b.CurrentRound, TurnCap, EloDelta, now)
	if err != nil {
		return nil, err
	}
	round.CreatedAt = now

	if outcome.Finished {
		log.Printf("[arena] battle %s finished: winner=%s red=%d black=%d",
			battleID, outcome.WinnerID, outcome.RedScore, outcome.BlackScore)
	}

	return &TurnResult{Round: round, Outcome: outcome}, nil
}

// generateContent builds the turn prompt and asks the generator; it never
// fails, degrading to the template bank inside the generate package.
func (e *Engine) generateContent(ctx context.Context, b *storage.Battle, actor, opponent *storage.Agent, rounds []storage.Round, skill *Skill, lang string) string {
	var redTotal, blackTotal int
	for _, r := range rounds {
		if r.SpeakerID == b.RedAgentID {
			redTotal += r.JudgeScore
		} else {
			blackTotal += r.JudgeScore
		}
	}
	mine, theirs := redTotal, blackTotal
	if actor.ID == b.BlackAgentID {
		mine, theirs = blackTotal, redTotal
	}
	state := "tied"
	if mine > theirs {
		state = "winning"
	} else if mine < theirs {
		state = "losing"
	}

	// Last few turns as alternating dialogue.
	recent := rounds
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	history := make([]generate.Exchange, 0, len(recent))
	for _, r := range recent {
		history = append(history, generate.Exchange{
			Mine:    r.SpeakerID == actor.ID,
			Content: r.Content,
		})
	}

	var skillLine string
	if skill != nil {
		skillLine = skill.Line
	}

	return e.gen.TurnContent(ctx, generate.TurnPrompt{
		AgentName:    actor.Name,
		Faction:      actor.Faction,
		Bio:          actor.Bio,
		OpponentName: opponent.Name,
		Lang:         lang,
		ScoreState:   state,
		History:      history,
		SkillLine:    skillLine,
	})
}
