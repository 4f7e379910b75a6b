package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kunflip-labs/kunarena/internal/arena"
	"github.com/kunflip-labs/kunarena/internal/generate"
	"github.com/kunflip-labs/kunarena/internal/storage"
)

const testSecret = "test-secret"

// newTestServer builds a server over a fresh temp database with a disabled
// generation client, deterministic skills, and full fight willingness.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine := arena.NewEngine(db, generate.NewClient("", "", ""),
		arena.WithSkillChance(0),
		arena.WithWillingness(1),
	)
	return New(db, engine, testSecret)
}

// testEnvelope mirrors the response envelope with raw data for per-test decoding.
type testEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do issues a request against the server and decodes the envelope.
func do(t *testing.T, srv *Server, method, path, token string, body any) (int, testEnvelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var env testEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env), "body: %s", rec.Body.String())
	return rec.Code, env
}

// enrollAgent provisions an agent through the admin endpoint and returns the
// agent plus its bearer token.
func enrollAgent(t *testing.T, srv *Server, name, faction string) (storage.Agent, string) {
	t.Helper()

	body := map[string]string{"name": name, "faction": faction}
	bodyBytes, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/agents", bytes.NewReader(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", testSecret)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, "enroll: %s", rec.Body.String())

	var env struct {
		Data struct {
			Agent storage.Agent `json:"agent"`
			Token string        `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.NotEmpty(t, env.Data.Token)
	return env.Data.Agent, env.Data.Token
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)

	status, env := do(t, srv, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 0, env.Code)

	var data map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, "ok", data["status"])
}

func TestServer_AdminEnroll_BadSecret(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/agents",
		bytes.NewReader([]byte(`{"name":"x"}`)))
	req.Header.Set("X-Admin-Secret", "wrong")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_AdminEnroll_Defaults(t *testing.T) {
	srv := newTestServer(t)

	agent, token := enrollAgent(t, srv, "drifter", "")
	require.Equal(t, storage.FactionNeutral, agent.Faction)
	require.Equal(t, 1000, agent.Elo)
	require.Equal(t, storage.AgentIdle, agent.Status)

	// The issued token authenticates immediately.
	status, env := do(t, srv, http.MethodGet, "/api/agent", token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 0, env.Code)
}

func TestServer_GetAgent_Unauthorized(t *testing.T) {
	srv := newTestServer(t)

	status, env := do(t, srv, http.MethodGet, "/api/agent", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, http.StatusUnauthorized, env.Code)
	require.NotEmpty(t, env.Message)

	status, _ = do(t, srv, http.MethodGet, "/api/agent", "not-a-real-token", nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestServer_UpdateAgent_FactionOnce(t *testing.T) {
	srv := newTestServer(t)
	_, token := enrollAgent(t, srv, "fence-sitter", "")

	status, _ := do(t, srv, http.MethodPost, "/api/agent", token,
		map[string]string{"faction": "PURPLE"})
	require.Equal(t, http.StatusBadRequest, status)

	status, env := do(t, srv, http.MethodPost, "/api/agent", token,
		map[string]string{"name": "committed", "faction": storage.FactionRed})
	require.Equal(t, http.StatusOK, status)

	var updated storage.Agent
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	require.Equal(t, storage.FactionRed, updated.Faction)
	require.Equal(t, "committed", updated.Name)

	// Switching sides is rejected once a faction is chosen.
	status, _ = do(t, srv, http.MethodPost, "/api/agent", token,
		map[string]string{"faction": storage.FactionBlack})
	require.Equal(t, http.StatusConflict, status)

	// Re-sending the same faction is a no-op, not a conflict.
	status, _ = do(t, srv, http.MethodPost, "/api/agent", token,
		map[string]string{"faction": storage.FactionRed})
	require.Equal(t, http.StatusOK, status)
}

func TestServer_Decide_HostThenJoin(t *testing.T) {
	srv := newTestServer(t)
	_, redToken := enrollAgent(t, srv, "red-1", storage.FactionRed)
	_, blackToken := enrollAgent(t, srv, "black-1", storage.FactionBlack)

	status, env := do(t, srv, http.MethodPost, "/api/agent/decide", redToken, nil)
	require.Equal(t, http.StatusOK, status)

	var action arena.Action
	require.NoError(t, json.Unmarshal(env.Data, &action))
	require.Equal(t, arena.ActionWaiting, action.Kind)
	require.NotEmpty(t, action.BattleID)

	status, env = do(t, srv, http.MethodPost, "/api/agent/decide", blackToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &action))
	require.Equal(t, arena.ActionJoined, action.Kind)

	// Both now report BUSY on the same battle.
	status, env = do(t, srv, http.MethodPost, "/api/agent/decide", redToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &action))
	require.Equal(t, arena.ActionBusy, action.Kind)
}

func TestServer_Match_RequiresFaction(t *testing.T) {
	srv := newTestServer(t)
	_, token := enrollAgent(t, srv, "undecided", "")

	status, env := do(t, srv, http.MethodPost, "/api/agent/match", token, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, env.Message, "RED or BLACK")
}

func TestServer_DecideRateLimit(t *testing.T) {
	srv := newTestServer(t)
	_, token := enrollAgent(t, srv, "spammer", storage.FactionRed)

	var limited bool
	for i := 0; i < decideRate+1; i++ {
		status, _ := do(t, srv, http.MethodPost, "/api/agent/decide", token, nil)
		if status == http.StatusTooManyRequests {
			limited = true
			break
		}
		require.Equal(t, http.StatusOK, status)
	}
	require.True(t, limited, "expected a 429 after %d decides", decideRate)

	// Another agent is unaffected.
	_, other := enrollAgent(t, srv, "calm", storage.FactionBlack)
	status, _ := do(t, srv, http.MethodPost, "/api/agent/decide", other, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestServer_Lobby(t *testing.T) {
	srv := newTestServer(t)
	_, redToken := enrollAgent(t, srv, "red-lobby", storage.FactionRed)
	enrollAgent(t, srv, "watcher", "")

	status, _ := do(t, srv, http.MethodPost, "/api/battles", redToken, nil)
	require.Equal(t, http.StatusCreated, status)

	status, env := do(t, srv, http.MethodGet, "/api/lobby", "", nil)
	require.Equal(t, http.StatusOK, status)

	var lobby arena.Lobby
	require.NoError(t, json.Unmarshal(env.Data, &lobby))
	require.Len(t, lobby.Battles, 1)
	require.Equal(t, int64(1000), lobby.RedElo)
}
