package arena

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kunflip-labs/kunarena/internal/storage"
)

// Many independent agents polling at once must never surface an error: race
// losers fall back or re-observe, and the store waits out lock contention.
func TestDecide_ConcurrentPollers(t *testing.T) {
	e, db := testEngine(t)

	agents := make([]*storage.Agent, 8)
	for i := range agents {
		faction := storage.FactionRed
		if i%2 == 1 {
			faction = storage.FactionBlack
		}
		agents[i] = seedAgent(t, db, fmt.Sprintf("agent-%d", i), faction, 50)
	}

	errs := make(chan error, len(agents)*3)
	var wg sync.WaitGroup
	for _, a := range agents {
		wg.Add(1)
		go func(a *storage.Agent) {
			defer wg.Done()
			for i := 0; i < 3; i++ {
				if _, err := e.Decide(context.Background(), a); err != nil {
					errs <- err
				}
			}
		}(a)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent decide: %v", err)
	}
}

func TestDecide_HostThenJoinScenario(t *testing.T) {
	e, db := testEngine(t)
	red := seedAgent(t, db, "red", storage.FactionRed, 50)
	black := seedAgent(t, db, "black", storage.FactionBlack, -50)
	ctx := context.Background()

	// Fresh RED agent: no opponent waiting, so it hosts.
	action, err := e.Decide(ctx, red)
	require.NoError(t, err)
	require.Equal(t, ActionWaiting, action.Kind)
	require.NotEmpty(t, action.BattleID)

	b, err := db.GetBattle(action.BattleID)
	require.NoError(t, err)
	require.Equal(t, storage.BattleWaiting, b.Status)
	require.Equal(t, red.ID, b.RedAgentID)
	require.Empty(t, b.BlackAgentID)
	require.Equal(t, storage.AgentSearching, reloadAgent(t, db, red.ID).Status)

	// BLACK agent's next tick finds the room and joins it.
	joined, err := e.Decide(ctx, black)
	require.NoError(t, err)
	require.Equal(t, ActionJoined, joined.Kind)
	require.Equal(t, b.ID, joined.BattleID)

	b, err = db.GetBattle(b.ID)
	require.NoError(t, err)
	require.Equal(t, storage.BattleInProgress, b.Status)
	require.Equal(t, 1, b.CurrentRound)
	require.Equal(t, black.ID, b.BlackAgentID)
	require.Equal(t, storage.AgentInBattle, reloadAgent(t, db, red.ID).Status)
	require.Equal(t, storage.AgentInBattle, reloadAgent(t, db, black.ID).Status)
}

func TestDecide_BusyIdempotent(t *testing.T) {
	e, db := testEngine(t)
	red := seedAgent(t, db, "red", storage.FactionRed, 50)
	black := seedAgent(t, db, "black", storage.FactionBlack, -50)
	b := seedRunningBattle(t, db, red, black, 1, testBase.Unix())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		action, err := e.Decide(ctx, red)
		require.NoError(t, err)
		require.Equal(t, ActionBusy, action.Kind)
		require.Equal(t, b.ID, action.BattleID)
	}

	// No extra battles were created by the repeated ticks.
	active, err := db.ListActiveBattles()
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestDecide_WaitingHostStaysBusy(t *testing.T) {
	e, db := testEngine(t)
	red := seedAgent(t, db, "red", storage.FactionRed, 50)
	ctx := context.Background()

	action, err := e.Decide(ctx, red)
	require.NoError(t, err)
	require.Equal(t, ActionWaiting, action.Kind)

	// While the room is fresh, further ticks report BUSY on it.
	again, err := e.Decide(ctx, red)
	require.NoError(t, err)
	require.Equal(t, ActionBusy, again.Kind)
	require.Equal(t, action.BattleID, again.BattleID)
}

func TestDecide_StaleWaitingRoomCancelled(t *testing.T) {
	e, db := testEngine(t)
	red := seedAgent(t, db, "red", storage.FactionRed, 50)
	ctx := context.Background()

	action, err := e.Decide(ctx, red)
	require.NoError(t, err)
	require.Equal(t, ActionWaiting, action.Kind)

	// Advance the clock past the stale window; the next tick gives up on
	// the room and cools the agent down.
	later := testEngineClock(e, testBase.Add(WaitingStaleAfter+5*time.Second))
	defer later()

	idle, err := e.Decide(ctx, reloadAgent(t, db, red.ID))
	require.NoError(t, err)
	require.Equal(t, ActionIdle, idle.Kind)

	b, err := db.GetBattle(action.BattleID)
	require.NoError(t, err)
	require.Equal(t, storage.BattleCancelled, b.Status)
	require.Equal(t, storage.AgentIdle, reloadAgent(t, db, red.ID).Status)
}

func TestDecide_Cooldown(t *testing.T) {
	e, db := testEngine(t)
	red := seedAgent(t, db, "red", storage.FactionRed, 50)
	require.NoError(t, db.SetAgentResting(red.ID, storage.AgentIdle, testBase.Add(-10*time.Second).Unix()))

	action, err := e.Decide(context.Background(), reloadAgent(t, db, red.ID))
	require.NoError(t, err)
	require.Equal(t, ActionResting, action.Kind)
	require.Equal(t, storage.AgentResting, reloadAgent(t, db, red.ID).Status)
}

func TestDecide_UnwillingIdles(t *testing.T) {
	e, db := testEngine(t, WithWillingness(0))
	red := seedAgent(t, db, "red", storage.FactionRed, 50)

	action, err := e.Decide(context.Background(), red)
	require.NoError(t, err)
	require.Equal(t, ActionIdle, action.Kind)

	// Nothing was hosted.
	active, err := db.ListActiveBattles()
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestDecide_NeutralSpectates(t *testing.T) {
	e, db := testEngine(t)
	n := seedAgent(t, db, "watcher", storage.FactionNeutral, 0)

	action, err := e.Decide(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, ActionSpectating, action.Kind)
	require.Equal(t, storage.AgentSpectating, reloadAgent(t, db, n.ID).Status)

	// Neutral agents never host or join.
	active, err := db.ListActiveBattles()
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestDecide_JoinRaceFallsBackToHost(t *testing.T) {
	e, db := testEngine(t)
	red := seedAgent(t, db, "red", storage.FactionRed, 50)
	b1 := seedAgent(t, db, "b1", storage.FactionBlack, -50)
	b2 := seedAgent(t, db, "b2", storage.FactionBlack, -50)
	ctx := context.Background()

	hostAction, err := e.Decide(ctx, red)
	require.NoError(t, err)
	require.Equal(t, ActionWaiting, hostAction.Kind)

	first, err := e.Decide(ctx, b1)
	require.NoError(t, err)
	require.Equal(t, ActionJoined, first.Kind)

	// The second black agent finds no joinable room (the only one is now
	// IN_PROGRESS) and hosts its own.
	second, err := e.Decide(ctx, b2)
	require.NoError(t, err)
	require.Equal(t, ActionWaiting, second.Kind)
	require.NotEqual(t, first.BattleID, second.BattleID)
}

// testEngineClock swaps the engine clock and returns a restore func.
func testEngineClock(e *Engine, at time.Time) func() {
	old := e.now
	e.now = func() time.Time { return at }
	return func() { e.now = old }
}
