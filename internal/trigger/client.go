package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/banphlet/trigger.dev-rails/internal/config"
)

// Client is a thin REST client for triggering tasks on a remote host API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Run is the remote run record embedded in trigger responses.
type Run struct {
	ID     string `json:"id"`
	Task   string `json:"task"`
	Status string `json:"status"`
}

type triggerRequest struct {
	Payload json.RawMessage `json:"payload,omitempty"`
}

type triggerResponse struct {
	Run   *Run   `json:"run"`
	Error string `json:"error"`
}

// NewClient builds a client from resolved trigger credentials.
func NewClient(cfg config.TriggerConfig) (*Client, error) {
	resolved := cfg.Resolve()
	if resolved.APIKey == "" {
		return nil, fmt.Errorf("trigger API key is not set (config trigger.api_key or $TRIGGER_API_KEY)")
	}
	if _, err := url.Parse(resolved.APIURL); err != nil {
		return nil, fmt.Errorf("invalid trigger API URL %q: %w", resolved.APIURL, err)
	}

	return &Client{
		baseURL: strings.TrimRight(resolved.APIURL, "/"),
		apiKey:  resolved.APIKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Trigger starts the named task remotely and returns the created run.
func (c *Client) Trigger(ctx context.Context, task string, payload json.RawMessage) (*Run, error) {
	if task == "" {
		return nil, fmt.Errorf("task name is empty")
	}

	var body bytes.Buffer
	if len(payload) > 0 {
		if !json.Valid(payload) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		if err := json.NewEncoder(&body).Encode(triggerRequest{Payload: payload}); err != nil {
			return nil, fmt.Errorf("encode trigger request: %w", err)
		}
	}

	endpoint := fmt.Sprintf("%s/api/v1/tasks/%s/trigger", c.baseURL, url.PathEscape(task))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trigger task %q: %w", task, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read trigger response: %w", err)
	}

	var decoded triggerResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("trigger task %q: unexpected response (status %d)", task, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		msg := decoded.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("trigger task %q: %s (status %d)", task, msg, resp.StatusCode)
	}
	if decoded.Run == nil {
		return nil, fmt.Errorf("trigger task %q: response carries no run", task)
	}
	return decoded.Run, nil
}
