package arena

import (
	"context"
	"fmt"
	"log"

	"github.com/kunflip-labs/kunarena/internal/storage"
)

// Decide runs one matchmaking tick for the agent. It is safe to call
// concurrently for different agents and repeatedly for the same agent: every
// write goes through a conditional or idempotent path, so a duplicated tick
// has no net effect beyond heartbeat fields.
func (e *Engine) Decide(ctx context.Context, agent *storage.Agent) (Action, error) {
	now := e.now()
	nowUnix := now.Unix()

	// 1. Active battle short-circuit.
	active, err := e.db.FindActiveBattleForAgent(agent.ID)
	if err != nil {
		return Action{}, fmt.Errorf("decide active battle: %w", err)
	}
	if active != nil {
		if active.Status == storage.BattleWaiting {
			if active.UpdatedAt < now.Add(-WaitingStaleAfter).Unix() {
				// Nobody joined; give up on the room and cool down.
				ok, err := e.db.CancelBattleIf(active.ID, storage.BattleWaiting, nowUnix)
				if err != nil {
					return Action{}, fmt.Errorf("decide cancel stale room: %w", err)
				}
				if ok {
					log.Printf("[arena] cancelled stale waiting battle %s", active.ID)
				}
				if err := e.db.SetAgentResting(agent.ID, storage.AgentIdle, nowUnix); err != nil {
					return Action{}, fmt.Errorf("decide reset host: %w", err)
				}
				return Action{Kind: ActionIdle}, nil
			}
			if err := e.db.TouchAgent(agent.ID, storage.AgentSearching, nowUnix); err != nil {
				return Action{}, fmt.Errorf("decide touch: %w", err)
			}
			return Action{Kind: ActionBusy, BattleID: active.ID}, nil
		}
		if err := e.db.TouchAgent(agent.ID, storage.AgentInBattle, nowUnix); err != nil {
			return Action{}, fmt.Errorf("decide touch: %w", err)
		}
		return Action{Kind: ActionBusy, BattleID: active.ID}, nil
	}

	// 2. Reflection gate: a recently finished battle the agent fought in
	// takes priority over anything new.
	window := now.Add(-ReflectionWindow).Unix()
	finished, err := e.db.FindRecentFinishedForAgent(agent.ID, window)
	if err != nil {
		return Action{}, fmt.Errorf("decide finished battle: %w", err)
	}
	if finished != nil {
		done, err := e.db.HasReflection(agent.ID, finished.ID)
		if err != nil {
			return Action{}, fmt.Errorf("decide reflection check: %w", err)
		}
		if !done {
			if action, ok := e.reflectParticipant(ctx, agent, finished); ok {
				return action, nil
			}
			// Generation failed or a racing poller won; retried later.
		}
	}

	// 3. Neutral agents never fight. They reflect on watched battles or
	// just spectate.
	if agent.Faction == storage.FactionNeutral {
		watched, err := e.db.FindRecentFinished(window)
		if err != nil {
			return Action{}, fmt.Errorf("decide watched battle: %w", err)
		}
		if watched != nil {
			done, err := e.db.HasReflection(agent.ID, watched.ID)
			if err != nil {
				return Action{}, fmt.Errorf("decide spectator check: %w", err)
			}
			if !done {
				if action, ok := e.reflectSpectator(ctx, agent, watched); ok {
					return action, nil
				}
			}
		}
		if err := e.db.TouchAgent(agent.ID, storage.AgentSpectating, nowUnix); err != nil {
			return Action{}, fmt.Errorf("decide touch: %w", err)
		}
		return Action{Kind: ActionSpectating}, nil
	}

	// 4. Cooldown after a battle.
	if agent.LastBattleAt > now.Add(-Cooldown).Unix() {
		if err := e.db.TouchAgent(agent.ID, storage.AgentResting, nowUnix); err != nil {
			return Action{}, fmt.Errorf("decide touch: %w", err)
		}
		return Action{Kind: ActionResting}, nil
	}

	// 5. Probabilistic willingness: most ticks fight, some idle.
	if e.rng.Float64() >= e.willingness {
		if err := e.db.TouchAgent(agent.ID, storage.AgentIdle, nowUnix); err != nil {
			return Action{}, fmt.Errorf("decide touch: %w", err)
		}
		return Action{Kind: ActionIdle}, nil
	}

	// 6. Join an opponent's room, or host a new one.
	return e.matchOrHost(agent, nowUnix)
}

// matchOrHost looks for a fresh WAITING battle with an opponent already in
// the opposite slot. Found: claim the open slot with a conditional update.
// Not found, or lost the claim race: host a new WAITING room instead.
func (e *Engine) matchOrHost(agent *storage.Agent, now int64) (Action, error) {
	if agent.Faction != storage.FactionRed && agent.Faction != storage.FactionBlack {
		return Action{}, ErrFactionNotSet
	}

	if err := e.db.TouchAgent(agent.ID, storage.AgentSearching, now); err != nil {
		return Action{}, fmt.Errorf("match touch: %w", err)
	}

	fresh := now - int64(JoinFreshness.Seconds())
	open, err := e.db.FindJoinableBattle(agent.Faction, fresh)
	if err != nil {
		return Action{}, fmt.Errorf("match find: %w", err)
	}
	if open != nil {
		won, err := e.db.FillOpenSlot(open.ID, agent.Faction, agent.ID, now)
		if err != nil {
			return Action{}, fmt.Errorf("match fill slot: %w", err)
		}
		if won {
			opponentID := open.RedAgentID
			if opponentID == "" {
				opponentID = open.BlackAgentID
			}
			for _, id := range []string{agent.ID, opponentID} {
				if err := e.db.TouchAgent(id, storage.AgentInBattle, now); err != nil {
					return Action{}, fmt.Errorf("match touch participants: %w", err)
				}
			}
			log.Printf("[arena] agent %s joined battle %s", agent.ID, open.ID)
			return Action{Kind: ActionJoined, BattleID: open.ID}, nil
		}
		// Opponent taken by a racing joiner; host instead.
	}

	b, err := e.hostBattle(agent, now)
	if err != nil {
		return Action{}, err
	}
	return Action{Kind: ActionWaiting, BattleID: b.ID}, nil
}
