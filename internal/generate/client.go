// Package generate wraps the external content-generation service behind
// bounded-timeout calls with deterministic local fallbacks. A turn or a
// judgment never hard-fails on a generation error; the caller always gets
// something usable.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Call timeouts. Generation gets longer because it produces prose; judging is
// a short structured call.
const (
	GenTimeout   = 10 * time.Second
	JudgeTimeout = 6 * time.Second
)

// Client talks to a chat-completions style endpoint. A nil client or an empty
// API key disables remote generation entirely; every call then reports
// failure and the callers fall back to the local template bank.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	hc      *http.Client
}

// NewClient builds a client for the given endpoint. model may be empty to use
// the server default.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether remote generation is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) chat(ctx context.Context, messages []chatMessage) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("generation disabled")
	}

	buf, err := json.Marshal(chatRequest{Model: c.model, Messages: messages, Temperature: 0.8})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("chat call status: %s", resp.Status)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices")
	}
	return cr.Choices[0].Message.Content, nil
}

// Act sends a free-text message plus a structured instruction and unmarshals
// the model's JSON reply into out. The upstream routinely wraps its JSON in
// prose or markdown fences, so the reply is scanned for the first balanced
// object before parsing.
func (c *Client) Act(ctx context.Context, message, instruction string, out any) error {
	raw, err := c.chat(ctx, []chatMessage{
		{Role: "system", Content: instruction},
		{Role: "user", Content: message},
	})
	if err != nil {
		return err
	}

	block, ok := extractJSON(raw)
	if !ok {
		return fmt.Errorf("no JSON object in reply: %q", raw)
	}
	if err := json.Unmarshal([]byte(block), out); err != nil {
		return fmt.Errorf("parse act reply: %w", err)
	}
	return nil
}
