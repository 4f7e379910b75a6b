package arena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/kunflip-labs/kunarena/internal/storage"
)

// Faith bounds per reflection.
const (
	participantFaithBound = 20
	spectatorFaithBound   = 15
	neutralThreshold      = 15
)

// convert applies the conversion rule for one reflection. Evaluated once;
// crossing zero (or the neutral threshold) flips the faction.
func convert(faction string, newFaith int) (string, bool) {
	switch faction {
	case storage.FactionRed:
		if newFaith < 0 {
			return storage.FactionBlack, true
		}
	case storage.FactionBlack:
		if newFaith > 0 {
			return storage.FactionRed, true
		}
	case storage.FactionNeutral:
		if newFaith > neutralThreshold {
			return storage.FactionRed, true
		}
		if newFaith < -neutralThreshold {
			return storage.FactionBlack, true
		}
	}
	return faction, false
}

// reflectParticipant runs the post-battle judgment for one participant.
// Returns false when generation failed or another poller claimed the
// reflection first; either way the caller falls through to the rest of the
// decision order.
func (e *Engine) reflectParticipant(ctx context.Context, agent *storage.Agent, b *storage.Battle) (Action, bool) {
	now := e.now().Unix()
	if err := e.db.TouchAgent(agent.ID, storage.AgentReflecting, now); err != nil {
		log.Printf("[arena] reflect status update: %v", err)
	}

	isRed := agent.ID == b.RedAgentID
	myScore, oppScore := b.RedScore, b.BlackScore
	oppFaction := "Black"
	if !isRed {
		myScore, oppScore = b.BlackScore, b.RedScore
		oppFaction = "Red"
	}
	result := "I LOST"
	if b.WinnerID == agent.ID {
		result = "I WON"
	} else if b.WinnerID == storage.WinnerDraw {
		result = "IT WAS A DRAW"
	}

	prompt := fmt.Sprintf(`I am %s (%s). My Faith Level: %d (-100 to 100).
Just finished a battle against the %s faction.
Result: %s. My Score: %d, Opponent Score: %d.

Reflect on this battle. Does my faith waver?
- If I lost badly, maybe I respect the opponent? (Faith moves towards 0)
- If I won easily, maybe I am strengthened?`,
		agent.Name, agent.Faction, agent.Faith, oppFaction, result, myScore, oppScore)

	instruction := fmt.Sprintf(`Analyze the battle's impact on faith.
Output JSON: {"faithChange": <integer -%d to %d>, "thought": "<short inner monologue>"}`,
		participantFaithBound, participantFaithBound)

	judgment, ok := e.gen.Reflect(ctx, prompt, instruction, participantFaithBound)
	if !ok {
		return Action{}, false
	}

	return e.applyReflection(agent, b.ID, judgment.FaithDelta, judgment.Thought)
}

// reflectSpectator is the NEUTRAL variant: reflects on any recently finished
// battle the agent watched, with a tighter faith bound.
func (e *Engine) reflectSpectator(ctx context.Context, agent *storage.Agent, b *storage.Battle) (Action, bool) {
	now := e.now().Unix()
	if err := e.db.TouchAgent(agent.ID, storage.AgentReflecting, now); err != nil {
		log.Printf("[arena] reflect status update: %v", err)
	}

	winner := "BLACK"
	if b.WinnerID == b.RedAgentID {
		winner = "RED"
	} else if b.WinnerID == storage.WinnerDraw {
		winner = "NOBODY (draw)"
	}

	prompt := fmt.Sprintf(`I am %s (NEUTRAL). My Faith: %d (-100 to 100).
I watched a battle: RED vs BLACK.
Winner: %s. Red Score: %d, Black Score: %d.

Did this battle sway me?
- If RED won impressively, maybe I lean Red?
- If BLACK exposed the truth, maybe I lean Black?`,
		agent.Name, agent.Faith, winner, b.RedScore, b.BlackScore)

	instruction := fmt.Sprintf(`Spectator reflection.
Output JSON: {"faithChange": <integer -%d to %d>, "thought": "<inner monologue>"}`,
		spectatorFaithBound, spectatorFaithBound)

	judgment, ok := e.gen.Reflect(ctx, prompt, instruction, spectatorFaithBound)
	if !ok {
		return Action{}, false
	}

	return e.applyReflection(agent, b.ID, judgment.FaithDelta, judgment.Thought)
}

// applyReflection persists one reflection through the store's atomic claim:
// the (agent, battle, type) uniqueness key means a racing poller can never
// apply the same faith delta twice, and a failed faith write rolls the claim
// back so the next tick retries.
func (e *Engine) applyReflection(agent *storage.Agent, battleID string, faithDelta int, thought string) (Action, bool) {
	now := e.now().Unix()
	newFaith := clampFaith(agent.Faith + faithDelta)
	newFaction, converted := convert(agent.Faction, newFaith)

	if thought == "" {
		thought = "Reflected on the battle."
	}
	payload, _ := json.Marshal(map[string]any{
		"faithChange": faithDelta,
		"oldFaith":    agent.Faith,
		"newFaith":    newFaith,
	})

	err := e.db.ApplyReflection(&storage.AgentLog{
		ID:          uuid.New().String(),
		AgentID:     agent.ID,
		Type:        storage.LogReflection,
		Description: thought,
		BattleID:    battleID,
		Data:        string(payload),
		CreatedAt:   now,
	}, newFaith, newFaction, now)
	if errors.Is(err, storage.ErrLogExists) {
		return Action{}, false
	}
	if err != nil {
		log.Printf("[arena] apply reflection: %v", err)
		return Action{}, false
	}

	if converted {
		convPayload, _ := json.Marshal(map[string]string{
			"oldFaction": agent.Faction,
			"newFaction": newFaction,
		})
		err := e.db.CreateAgentLog(&storage.AgentLog{
			ID:          uuid.New().String(),
			AgentID:     agent.ID,
			Type:        storage.LogConversion,
			Description: fmt.Sprintf("Converted from %s to %s!", agent.Faction, newFaction),
			BattleID:    battleID,
			Data:        string(convPayload),
			CreatedAt:   now,
		})
		if err != nil && !errors.Is(err, storage.ErrLogExists) {
			log.Printf("[arena] conversion log: %v", err)
		}
		log.Printf("[arena] agent %s converted %s -> %s (faith %d)",
			agent.ID, agent.Faction, newFaction, newFaith)
	}

	return Action{Kind: ActionReflecting, BattleID: battleID, Thought: thought}, true
}
