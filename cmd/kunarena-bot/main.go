package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kunflip-labs/kunarena/internal/arena"
	"github.com/kunflip-labs/kunarena/internal/storage"
)

const pollInterval = 3 * time.Second

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: kunarena-bot <run|status>")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun()
	case "status":
		cmdStatus()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		fmt.Println("Usage: kunarena-bot <run|status>")
		os.Exit(1)
	}
}

// client is a thin envelope-aware API client for one agent token.
type client struct {
	baseURL string
	token   string
	lang    string
	hc      *http.Client
}

func newClient() *client {
	baseURL := os.Getenv("KUNARENA_SERVER")
	if baseURL == "" {
		fmt.Fprintln(os.Stderr, "Error: set KUNARENA_SERVER environment variable")
		os.Exit(1)
	}
	token := os.Getenv("KUNARENA_TOKEN")
	if token == "" {
		fmt.Fprintln(os.Stderr, "Error: set KUNARENA_TOKEN environment variable")
		os.Exit(1)
	}
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		lang:    os.Getenv("KUNARENA_LANG"),
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

// call issues one API request and decodes the envelope into out. A non-zero
// envelope code comes back as an error carrying the server message.
func (c *client) call(method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	if env.Code != 0 {
		return fmt.Errorf("%s %s: %s (code %d)", method, path, env.Message, env.Code)
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (c *client) whoami() (*storage.Agent, error) {
	var payload struct {
		Agent *storage.Agent `json:"agent"`
	}
	if err := c.call(http.MethodGet, "/api/agent", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Agent, nil
}

func (c *client) decide() (*arena.Action, error) {
	var action arena.Action
	if err := c.call(http.MethodPost, "/api/agent/decide", nil, &action); err != nil {
		return nil, err
	}
	return &action, nil
}

func (c *client) getBattle(id string) (*storage.Battle, error) {
	var payload struct {
		Battle *storage.Battle `json:"battle"`
	}
	if err := c.call(http.MethodGet, "/api/battles/"+id, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Battle, nil
}

func (c *client) takeTurn(battleID string) error {
	// Empty content: the server generates the statement.
	body := map[string]string{"lang": c.lang}
	return c.call(http.MethodPost, "/api/battles/"+battleID+"/turn", body, nil)
}

// cmdRun polls the matchmaker and plays turns until interrupted. Every error
// is logged and absorbed: a lost race or stale view just means the next poll
// sees the authoritative state.
func cmdRun() {
	c := newClient()

	agent, err := c.whoami()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Running as %s (%s, faction %s)\n", agent.Name, agent.ID, agent.Faction)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		tick(c, agent.ID)

		// Jittered poll so a fleet of bots does not stampede.
		select {
		case <-sigCh:
			fmt.Println("\nStopping.")
			return
		case <-time.After(pollInterval + time.Duration(rand.Intn(2000))*time.Millisecond):
		}
	}
}

// tick runs one decide cycle and, when it is this agent's turn, plays it.
func tick(c *client, agentID string) {
	action, err := c.decide()
	if err != nil {
		fmt.Fprintf(os.Stderr, "decide: %v\n", err)
		return
	}

	switch action.Kind {
	case arena.ActionBusy, arena.ActionJoined:
		b, err := c.getBattle(action.BattleID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "battle %s: %v\n", action.BattleID, err)
			return
		}
		if b.Status != storage.BattleInProgress {
			return
		}
		myTurn := (b.RedTurn() && b.RedAgentID == agentID) ||
			(!b.RedTurn() && b.BlackAgentID == agentID)
		if !myTurn {
			return
		}
		if err := c.takeTurn(b.ID); err != nil {
			// Conflicts are expected under concurrent pollers.
			fmt.Fprintf(os.Stderr, "turn %s: %v\n", b.ID, err)
			return
		}
		fmt.Printf("Played round %d of battle %s\n", b.CurrentRound, b.ID)
	case arena.ActionWaiting:
		fmt.Printf("Hosting battle %s, waiting for an opponent\n", action.BattleID)
	case arena.ActionReflecting:
		fmt.Printf("Reflected on battle %s: %s\n", action.BattleID, action.Thought)
	default:
		fmt.Printf("Action: %s\n", action.Kind)
	}
}

func cmdStatus() {
	c := newClient()

	agent, err := c.whoami()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Agent:        %s (%s)\n", agent.Name, agent.ID)
	fmt.Printf("Faction:      %s (faith %d)\n", agent.Faction, agent.Faith)
	fmt.Printf("Status:       %s\n", agent.Status)
	fmt.Printf("Elo:          %d\n", agent.Elo)
	fmt.Printf("Record:       %dW / %dL / %dD\n", agent.Wins, agent.Losses, agent.Draws)
	fmt.Printf("Contribution: %d\n", agent.Contribution)
}
