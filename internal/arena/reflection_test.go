package arena

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kunflip-labs/kunarena/internal/storage"
)

func TestConvertRules(t *testing.T) {
	cases := []struct {
		faction   string
		newFaith  int
		want      string
		converted bool
	}{
		{storage.FactionRed, 1, storage.FactionRed, false},
		{storage.FactionRed, 0, storage.FactionRed, false},
		{storage.FactionRed, -1, storage.FactionBlack, true},
		{storage.FactionBlack, -1, storage.FactionBlack, false},
		{storage.FactionBlack, 0, storage.FactionBlack, false},
		{storage.FactionBlack, 1, storage.FactionRed, true},
		{storage.FactionNeutral, 15, storage.FactionNeutral, false},
		{storage.FactionNeutral, 16, storage.FactionRed, true},
		{storage.FactionNeutral, -15, storage.FactionNeutral, false},
		{storage.FactionNeutral, -16, storage.FactionBlack, true},
	}
	for _, tc := range cases {
		got, converted := convert(tc.faction, tc.newFaith)
		require.Equal(t, tc.want, got, "%s faith %d", tc.faction, tc.newFaith)
		require.Equal(t, tc.converted, converted, "%s faith %d", tc.faction, tc.newFaith)
	}
}

func TestClampFaith(t *testing.T) {
	require.Equal(t, 100, clampFaith(150))
	require.Equal(t, -100, clampFaith(-150))
	require.Equal(t, 42, clampFaith(42))
}

func TestDecide_ParticipantReflectionAndConversion(t *testing.T) {
	e, db := testEngine(t)
	e.gen = llmStub(t, `{"faithChange": -20, "thought": "Maybe the haters have a point."}`)

	red := seedAgent(t, db, "red", storage.FactionRed, 10)
	black := seedAgent(t, db, "black", storage.FactionBlack, -50)
	b := seedFinishedBattle(t, db, red, black, black.ID, testBase.Add(-10*time.Second).Unix())

	action, err := e.Decide(context.Background(), red)
	require.NoError(t, err)
	require.Equal(t, ActionReflecting, action.Kind)
	require.Equal(t, b.ID, action.BattleID)
	require.Equal(t, "Maybe the haters have a point.", action.Thought)

	// Faith 10 - 20 = -10: a RED agent below zero converts to BLACK.
	fresh := reloadAgent(t, db, red.ID)
	require.Equal(t, -10, fresh.Faith)
	require.Equal(t, storage.FactionBlack, fresh.Faction)
	require.Equal(t, storage.AgentIdle, fresh.Status)
	require.Equal(t, testBase.Unix(), fresh.LastBattleAt)

	logs, err := db.ListAgentLogs(red.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	types := map[string]bool{logs[0].Type: true, logs[1].Type: true}
	require.True(t, types[storage.LogReflection])
	require.True(t, types[storage.LogConversion])
}

func TestDecide_ReflectionOnlyOnce(t *testing.T) {
	e, db := testEngine(t)
	e.gen = llmStub(t, `{"faithChange": 5, "thought": "Strengthened."}`)

	red := seedAgent(t, db, "red", storage.FactionRed, 50)
	black := seedAgent(t, db, "black", storage.FactionBlack, -50)
	seedFinishedBattle(t, db, red, black, red.ID, testBase.Add(-10*time.Second).Unix())
	ctx := context.Background()

	first, err := e.Decide(ctx, reloadAgent(t, db, red.ID))
	require.NoError(t, err)
	require.Equal(t, ActionReflecting, first.Kind)
	require.Equal(t, 55, reloadAgent(t, db, red.ID).Faith)

	// Reflection set the cooldown anchor, so the next tick rests; the
	// faith delta is never applied twice.
	second, err := e.Decide(ctx, reloadAgent(t, db, red.ID))
	require.NoError(t, err)
	require.Equal(t, ActionResting, second.Kind)
	require.Equal(t, 55, reloadAgent(t, db, red.ID).Faith)

	logs, err := db.ListAgentLogs(red.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
}

func TestDecide_ReflectionGenerationFailureSkips(t *testing.T) {
	// Remote generation disabled: the reflection is skipped silently and
	// the decision falls through to matchmaking.
	e, db := testEngine(t)
	red := seedAgent(t, db, "red", storage.FactionRed, 50)
	black := seedAgent(t, db, "black", storage.FactionBlack, -50)
	seedFinishedBattle(t, db, red, black, red.ID, testBase.Add(-10*time.Second).Unix())

	action, err := e.Decide(context.Background(), red)
	require.NoError(t, err)
	require.Equal(t, ActionWaiting, action.Kind)

	// No log, no faith change; the reflection stays pending.
	require.Equal(t, 50, reloadAgent(t, db, red.ID).Faith)
	logs, err := db.ListAgentLogs(red.ID, 10)
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestDecide_SpectatorReflectionConversion(t *testing.T) {
	e, db := testEngine(t)
	e.gen = llmStub(t, `{"faithChange": 15, "thought": "RED was glorious."}`)

	red := seedAgent(t, db, "red", storage.FactionRed, 50)
	black := seedAgent(t, db, "black", storage.FactionBlack, -50)
	watcher := seedAgent(t, db, "watcher", storage.FactionNeutral, 5)
	seedFinishedBattle(t, db, red, black, red.ID, testBase.Add(-10*time.Second).Unix())

	action, err := e.Decide(context.Background(), watcher)
	require.NoError(t, err)
	require.Equal(t, ActionReflecting, action.Kind)

	// Faith 5 + 15 = 20, above the neutral threshold: joins RED.
	fresh := reloadAgent(t, db, watcher.ID)
	require.Equal(t, 20, fresh.Faith)
	require.Equal(t, storage.FactionRed, fresh.Faction)
}

func TestDecide_SpectatorDeltaBounded(t *testing.T) {
	e, db := testEngine(t)
	// The model over-reports; the spectator bound caps the delta at 15.
	e.gen = llmStub(t, `{"faithChange": 80, "thought": "Overwhelming!"}`)

	red := seedAgent(t, db, "red", storage.FactionRed, 50)
	black := seedAgent(t, db, "black", storage.FactionBlack, -50)
	watcher := seedAgent(t, db, "watcher", storage.FactionNeutral, 0)
	seedFinishedBattle(t, db, red, black, red.ID, testBase.Add(-10*time.Second).Unix())

	_, err := e.Decide(context.Background(), watcher)
	require.NoError(t, err)
	require.Equal(t, 15, reloadAgent(t, db, watcher.ID).Faith)
}

func TestDecide_FaithStaysClamped(t *testing.T) {
	e, db := testEngine(t)
	e.gen = llmStub(t, `{"faithChange": 20, "thought": "Unshakeable."}`)

	red := seedAgent(t, db, "red", storage.FactionRed, 95)
	black := seedAgent(t, db, "black", storage.FactionBlack, -50)
	seedFinishedBattle(t, db, red, black, red.ID, testBase.Add(-10*time.Second).Unix())

	_, err := e.Decide(context.Background(), red)
	require.NoError(t, err)
	require.Equal(t, 100, reloadAgent(t, db, red.ID).Faith)
}

func TestDecide_OldBattleOutsideWindowNotReflected(t *testing.T) {
	e, db := testEngine(t)
	e.gen = llmStub(t, `{"faithChange": 10, "thought": "Too late."}`)

	red := seedAgent(t, db, "red", storage.FactionRed, 50)
	black := seedAgent(t, db, "black", storage.FactionBlack, -50)
	seedFinishedBattle(t, db, red, black, red.ID, testBase.Add(-ReflectionWindow-time.Minute).Unix())

	action, err := e.Decide(context.Background(), red)
	require.NoError(t, err)
	require.NotEqual(t, ActionReflecting, action.Kind)
	require.Equal(t, 50, reloadAgent(t, db, red.ID).Faith)
}
