// Package assistant talks to the externally hosted generation service that
// produces chat replies for the storefront.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"phonestore/internal/config"
	"phonestore/internal/domain"
)

type Message struct {
	Role    domain.TurnRole `json:"role"`
	Content string          `json:"content"`
}

type request struct {
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"message"`
	History   []Message `json:"history"`
}

type response struct {
	Answer   string                 `json:"answer"`
	Checkout *domain.CheckoutIntent `json:"checkout,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

// New returns nil when the service is not configured; a nil *Client
// reports Available() == false.
func New(cfg config.AssistantConfig) *Client {
	if !cfg.Configured() {
		return nil
	}
	return &Client{url: cfg.URL, apiKey: cfg.APIKey, http: &http.Client{}}
}

func (c *Client) Available() bool { return c != nil && c.url != "" }

// Respond sends one turn. Timeouts come from ctx. Transport failures, 5xx
// answers and deadline expiry are wrapped with domain.ErrUnavailable.
func (c *Client) Respond(ctx context.Context, sessionID, message string, history []domain.Turn) (domain.Reply, error) {
	if !c.Available() {
		return domain.Reply{}, domain.ErrUnavailable
	}
	req := request{SessionID: sessionID, Message: message, History: make([]Message, 0, len(history))}
	for _, t := range history {
		req.History = append(req.History, Message{Role: t.Role, Content: t.Text})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return domain.Reply{}, fmt.Errorf("marshal request: %w", err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.Reply{}, fmt.Errorf("create request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		return domain.Reply{}, fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Reply{}, fmt.Errorf("%w: read response: %w", domain.ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return domain.Reply{}, fmt.Errorf("%w: generation service returned %d", domain.ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Reply{}, fmt.Errorf("generation service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.Reply{}, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return domain.Reply{}, errors.New(out.Error)
	}
	if out.Checkout != nil {
		text, err := json.Marshal(out.Checkout)
		if err != nil {
			return domain.Reply{}, err
		}
		if out.Answer != "" {
			text = []byte(out.Answer)
		}
		return domain.Reply{Text: string(text), Checkout: out.Checkout}, nil
	}
	return domain.Reply{Text: out.Answer, Checkout: ExtractCheckout(out.Answer)}, nil
}
