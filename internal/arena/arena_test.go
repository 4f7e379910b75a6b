package arena

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kunflip-labs/kunarena/internal/generate"
	"github.com/kunflip-labs/kunarena/internal/storage"
)

var testBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testEngine builds an engine over a temp database with a fixed clock and
// remote generation disabled. Extra options are applied last.
func testEngine(t *testing.T, opts ...Option) (*Engine, *storage.DB) {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	base := []Option{
		WithClock(func() time.Time { return testBase }),
		WithSkillChance(0),
		WithWillingness(1),
	}
	e := NewEngine(db, generate.NewClient("", "", ""), append(base, opts...)...)
	return e, db
}

// llmStub serves a canned chat-completions reply wrapping the given JSON.
func llmStub(t *testing.T, reply string) *generate.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return generate.NewClient(srv.URL, "test-key", "")
}

func seedAgent(t *testing.T, db *storage.DB, name, faction string, faith int) *storage.Agent {
	t.Helper()
	a := &storage.Agent{
		ID:         uuid.New().String(),
		Name:       name,
		Faction:    faction,
		Faith:      faith,
		Status:     storage.AgentIdle,
		Elo:        1000,
		TokenHash:  "tok-" + uuid.New().String(),
		LastSeenAt: testBase.Unix(),
		CreatedAt:  testBase.Unix(),
	}
	require.NoError(t, db.CreateAgent(a))
	return a
}

func seedRunningBattle(t *testing.T, db *storage.DB, red, black *storage.Agent, round int, updatedAt int64) *storage.Battle {
	t.Helper()
	b := &storage.Battle{
		ID:           uuid.New().String(),
		Status:       storage.BattleInProgress,
		RedAgentID:   red.ID,
		BlackAgentID: black.ID,
		CurrentRound: round,
		CreatedAt:    updatedAt,
		UpdatedAt:    updatedAt,
	}
	require.NoError(t, db.CreateBattle(b))
	return b
}

func seedFinishedBattle(t *testing.T, db *storage.DB, red, black *storage.Agent, winnerID string, updatedAt int64) *storage.Battle {
	t.Helper()
	b := &storage.Battle{
		ID:           uuid.New().String(),
		Status:       storage.BattleFinished,
		RedAgentID:   red.ID,
		BlackAgentID: black.ID,
		CurrentRound: TurnCap,
		RedScore:     320,
		BlackScore:   300,
		WinnerID:     winnerID,
		CreatedAt:    updatedAt,
		UpdatedAt:    updatedAt,
	}
	require.NoError(t, db.CreateBattle(b))
	return b
}

func reloadAgent(t *testing.T, db *storage.DB, id string) *storage.Agent {
	t.Helper()
	a, err := db.GetAgent(id)
	require.NoError(t, err)
	return a
}
