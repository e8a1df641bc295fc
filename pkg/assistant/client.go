package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client calls the hosted assistants API (thread + run execution model).
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client with the provided API key.
func NewClient(apiKey string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("assistant api key required")
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// WithBaseURL overrides the API base URL. Used by tests and self-hosted gateways.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return c
}

// Assistant describes the provider-side assistant configuration.
type Assistant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Instructions string `json:"instructions"`
}

// Run is one asynchronous execution of the assistant against a thread.
type Run struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

// Run status values reported by the provider.
const (
	RunQueued     = "queued"
	RunInProgress = "in_progress"
	RunCompleted  = "completed"
	RunFailed     = "failed"
	RunCancelled  = "cancelled"
	RunExpired    = "expired"
)

// Terminal reports whether the run reached a final state.
func (r Run) Terminal() bool {
	switch r.Status {
	case RunQueued, RunInProgress:
		return false
	}
	return true
}

// RetrieveAssistant fetches the assistant configuration. Called once at
// startup as a credentials check.
func (c *Client) RetrieveAssistant(ctx context.Context, assistantID string) (Assistant, error) {
	var out Assistant
	err := c.doJSON(ctx, http.MethodGet, "/assistants/"+url.PathEscape(assistantID), nil, &out)
	return out, err
}

// CreateThread opens a new provider-side conversation and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/threads", struct{}{}, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("assistant api returned empty thread id")
	}
	return out.ID, nil
}

// AddMessage appends a user message to the thread.
func (c *Client) AddMessage(ctx context.Context, threadID, content string) error {
	payload := map[string]string{
		"role":    "user",
		"content": content,
	}
	return c.doJSON(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", payload, nil)
}

// CreateRun starts a new run of the assistant against the thread.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (Run, error) {
	payload := map[string]string{
		"assistant_id": assistantID,
	}
	var out Run
	err := c.doJSON(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/runs", payload, &out)
	return out, err
}

// GetRun retrieves the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	var out Run
	err := c.doJSON(ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID)+"/runs/"+url.PathEscape(runID), nil, &out)
	return out, err
}

// LatestAssistantMessage returns the text of the most recent message in the
// thread. After a completed run this is the assistant's reply.
func (c *Client) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	var out struct {
		Data []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text struct {
					Value string `json:"value"`
				} `json:"text"`
			} `json:"content"`
		} `json:"data"`
	}
	path := "/threads/" + url.PathEscape(threadID) + "/messages?order=desc&limit=1"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	if len(out.Data) == 0 || len(out.Data[0].Content) == 0 {
		return "", fmt.Errorf("thread %s has no messages", threadID)
	}
	return out.Data[0].Content[0].Text.Value, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return fmt.Errorf("assistant api error: %s", errResp.Error.Message)
		}
		return fmt.Errorf("assistant api error: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
