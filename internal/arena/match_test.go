package arena

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kunflip-labs/kunarena/internal/generate"
	"github.com/kunflip-labs/kunarena/internal/storage"
)

func TestHostBattle(t *testing.T) {
	e, db := testEngine(t)
	red := seedAgent(t, db, "red", storage.FactionRed, 50)

	b, err := e.HostBattle(red)
	require.NoError(t, err)
	require.Equal(t, storage.BattleWaiting, b.Status)
	require.Equal(t, red.ID, b.RedAgentID)

	// Hosting again returns the existing room instead of a second one.
	again, err := e.HostBattle(red)
	require.NoError(t, err)
	require.Equal(t, b.ID, again.ID)

	active, err := db.ListActiveBattles()
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestHostBattle_NeutralRejected(t *testing.T) {
	e, db := testEngine(t)
	n := seedAgent(t, db, "watcher", storage.FactionNeutral, 0)

	_, err := e.HostBattle(n)
	require.ErrorIs(t, err, ErrFactionNotSet)
}

func TestJoinBattle(t *testing.T) {
	e, db := testEngine(t)
	red := seedAgent(t, db, "red", storage.FactionRed, 50)
	black := seedAgent(t, db, "black", storage.FactionBlack, -50)

	hosted, err := e.HostBattle(red)
	require.NoError(t, err)

	b, err := e.JoinBattle(hosted.ID, black)
	require.NoError(t, err)
	require.Equal(t, storage.BattleInProgress, b.Status)
	require.Equal(t, 1, b.CurrentRound)
	require.Equal(t, black.ID, b.BlackAgentID)
}

func TestJoinBattle_SlotTaken(t *testing.T) {
	e, db := testEngine(t)
	red := seedAgent(t, db, "red", storage.FactionRed, 50)
	b1 := seedAgent(t, db, "b1", storage.FactionBlack, -50)
	b2 := seedAgent(t, db, "b2", storage.FactionBlack, -50)

	hosted, err := e.HostBattle(red)
	require.NoError(t, err)

	_, err = e.JoinBattle(hosted.ID, b1)
	require.NoError(t, err)

	_, err = e.JoinBattle(hosted.ID, b2)
	require.ErrorIs(t, err, ErrSlotTaken)
}

func TestJoinBattle_NotFound(t *testing.T) {
	e, db := testEngine(t)
	black := seedAgent(t, db, "black", storage.FactionBlack, -50)

	_, err := e.JoinBattle("no-such-battle", black)
	require.ErrorIs(t, err, ErrBattleNotFound)
}

func TestCastVote(t *testing.T) {
	e, db := testEngine(t)
	red := seedAgent(t, db, "red", storage.FactionRed, 50)
	black := seedAgent(t, db, "black", storage.FactionBlack, -50)
	voter := seedAgent(t, db, "voter", storage.FactionNeutral, 0)
	b := seedRunningBattle(t, db, red, black, 1, testBase.Unix())

	res, err := e.TakeTurn(context.Background(), b.ID, red, "opening statement", generate.LangEN)
	require.NoError(t, err)

	v, err := e.CastVote(res.Round.ID, voter)
	require.NoError(t, err)
	require.Equal(t, storage.VoteUpvote, v.Choice)
	require.Equal(t, 1, reloadAgent(t, db, voter.ID).Contribution)

	// Second vote on the same round is rejected and adds no contribution.
	_, err = e.CastVote(res.Round.ID, voter)
	require.ErrorIs(t, err, ErrAlreadyVoted)
	require.Equal(t, 1, reloadAgent(t, db, voter.ID).Contribution)
}

func TestCastVote_RoundNotFound(t *testing.T) {
	e, db := testEngine(t)
	voter := seedAgent(t, db, "voter", storage.FactionNeutral, 0)

	_, err := e.CastVote("no-such-round", voter)
	require.ErrorIs(t, err, ErrRoundNotFound)
}
