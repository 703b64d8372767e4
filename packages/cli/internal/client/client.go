package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client wraps HTTP access to the gm-genai API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string, timeout time.Duration) (*Client, error) {
	normalized, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    normalized,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Get issues a GET request to the given path.
func (c *Client) Get(ctx context.Context, path string) (int, []byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target := strings.TrimRight(c.baseURL, "/")
	if path != "" {
		target = target + "/" + strings.TrimLeft(path, "/")
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("server URL is empty")
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		raw = strings.TrimRight(raw, "/")
	} else if strings.HasPrefix(raw, ":") {
		raw = "http://localhost" + raw
	} else {
		raw = "http://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid server URL: %q", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

// Post issues a POST request to the given path.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBytes)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, bodyReader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// Delete issues a DELETE request to the given path.
func (c *Client) Delete(ctx context.Context, path string) (int, []byte, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// Message mirrors one transcript entry of the API.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type RunRequest struct {
	Model    string    `json:"model,omitempty"`
	Prompt   string    `json:"prompt,omitempty"`
	System   string    `json:"system,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Apply    bool      `json:"apply,omitempty"`
	Async    bool      `json:"async,omitempty"`
}

type FileEdit struct {
	Filename string  `json:"filename"`
	Before   *string `json:"before,omitempty"`
	After    *string `json:"after,omitempty"`
}

type RunResult struct {
	SessionID    string               `json:"session_id"`
	Model        string               `json:"model,omitempty"`
	Status       string               `json:"status"`
	FinishReason string               `json:"finish_reason,omitempty"`
	Error        string               `json:"error,omitempty"`
	Text         string               `json:"text"`
	Messages     []Message            `json:"messages,omitempty"`
	FileEdits    map[string]*FileEdit `json:"file_edits,omitempty"`
}

type Applied struct {
	FilePath     string `json:"file_path"`
	PatchID      string `json:"patch_id,omitempty"`
	Created      bool   `json:"created,omitempty"`
	Skipped      bool   `json:"skipped,omitempty"`
	RolledBack   bool   `json:"rolled_back,omitempty"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
}

type RunResponse struct {
	Result  *RunResult `json:"result"`
	Applied []Applied  `json:"applied,omitempty"`
}

type PermissionRequest struct {
	RequestID  string `json:"request_id"`
	ToolName   string `json:"tool_name"`
	Permission string `json:"permission"`
	Arguments  string `json:"arguments"`
}

// apiError turns a non-2xx reply into an error carrying the server message.
func apiError(op string, status int, body []byte) error {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("%s failed: status=%d: %s", op, status, e.Error)
	}
	return fmt.Errorf("%s failed: status=%d body=%s", op, status, string(body))
}

// Run executes a session and waits for its result.
func (c *Client) Run(ctx context.Context, req RunRequest) (*RunResponse, error) {
	status, body, err := c.Post(ctx, "/api/v1/runs", req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, apiError("run", status, body)
	}
	var resp RunResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Result == nil {
		return nil, errors.New("run returned no result")
	}
	return &resp, nil
}

// Start launches a run in the background and returns its ID.
func (c *Client) Start(ctx context.Context, req RunRequest) (string, error) {
	req.Async = true
	status, body, err := c.Post(ctx, "/api/v1/runs", req)
	if err != nil {
		return "", err
	}
	if status != http.StatusAccepted {
		return "", apiError("start run", status, body)
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	return resp.ID, nil
}

// Messages fetches the transcript of a run.
func (c *Client) Messages(ctx context.Context, id string) ([]Message, error) {
	status, body, err := c.Get(ctx, "/api/v1/runs/"+url.PathEscape(id)+"/messages")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, apiError("get messages", status, body)
	}
	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return resp.Messages, nil
}

// GetRun fetches the result of a run; active runs report status running.
func (c *Client) GetRun(ctx context.Context, id string) (*RunResult, error) {
	status, body, err := c.Get(ctx, "/api/v1/runs/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, apiError("get run", status, body)
	}
	var res RunResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &res, nil
}

// ListRuns returns stored run IDs, oldest first.
func (c *Client) ListRuns(ctx context.Context) ([]string, error) {
	status, body, err := c.Get(ctx, "/api/v1/runs")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, apiError("list runs", status, body)
	}
	var resp struct {
		Runs []string `json:"runs"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return resp.Runs, nil
}

// CancelRun stops an active run.
func (c *Client) CancelRun(ctx context.Context, id string) error {
	status, body, err := c.Post(ctx, "/api/v1/runs/"+url.PathEscape(id)+"/cancel", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return apiError("cancel run", status, body)
	}
	return nil
}

// DeleteRun removes a finished run.
func (c *Client) DeleteRun(ctx context.Context, id string) error {
	status, body, err := c.Delete(ctx, "/api/v1/runs/"+url.PathEscape(id))
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return apiError("delete run", status, body)
	}
	return nil
}

// Permissions lists tool calls waiting for approval.
func (c *Client) Permissions(ctx context.Context) ([]PermissionRequest, error) {
	status, body, err := c.Get(ctx, "/api/v1/permissions")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, apiError("list permissions", status, body)
	}
	var resp struct {
		Requests []PermissionRequest `json:"requests"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return resp.Requests, nil
}

// RespondPermission approves or denies a pending tool call.
func (c *Client) RespondPermission(ctx context.Context, id string, approved, always bool) error {
	status, body, err := c.Post(ctx, "/api/v1/permissions/"+url.PathEscape(id), map[string]bool{"approved": approved, "always": always})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return apiError("respond permission", status, body)
	}
	return nil
}
