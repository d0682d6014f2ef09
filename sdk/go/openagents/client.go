// Package openagents is a Go client for the OpenAgents orchestrator HTTP API.
package openagents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// DefaultBaseURL is the orchestrator address used when none is configured.
const DefaultBaseURL = "http://localhost:3000"

// Task statuses reported by the orchestrator.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusBlocked   = "blocked"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Client wraps the HTTP interactions with the orchestrator.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// TaskStatus is the status view of a task.
type TaskStatus struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	BlockedReason string    `json:"blockedReason,omitempty"`
}

// Terminal reports whether the task reached completed or failed.
func (s TaskStatus) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Artifact is an auxiliary output of a run.
type Artifact struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// TaskResult is the outcome of a finished task.
type TaskResult struct {
	TaskID    string     `json:"taskId"`
	Status    string     `json:"status"`
	Summary   string     `json:"summary"`
	Artifacts []Artifact `json:"artifacts"`
}

// ToolSpec describes a tool registered in the gateway.
type ToolSpec struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"inputSchema"`
	OutputSchema map[string]any `json:"outputSchema"`
	Permissions  []string       `json:"permissions"`
	SideEffects  string         `json:"sideEffects"`
}

// ListOptions filters ListTasks.
type ListOptions struct {
	Statuses []string
	Limit    int
	Order    string
	Query    string
}

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	// Status carries the task status on 409 responses for unfinished tasks.
	Status string `json:"status,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("openagents api error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsNotFinished reports whether err is the 409 returned for unfinished tasks.
func IsNotFinished(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// NewClient instantiates a client. When httpClient is nil, a default client
// with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	if rawURL == "" {
		rawURL = DefaultBaseURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url: %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SubmitTask creates a task and returns its id.
func (c *Client) SubmitTask(ctx context.Context, goal string) (string, error) {
	var out struct {
		TaskID string `json:"task_id"`
	}
	if err := c.post(ctx, "/tasks", map[string]string{"goal": goal}, &out); err != nil {
		return "", err
	}
	return out.TaskID, nil
}

// Status fetches the status of a task.
func (c *Client) Status(ctx context.Context, taskID string) (TaskStatus, error) {
	var status TaskStatus
	if err := c.get(ctx, taskPath(taskID, "status"), nil, &status); err != nil {
		return TaskStatus{}, err
	}
	return status, nil
}

// Result fetches the result of a finished task.
func (c *Client) Result(ctx context.Context, taskID string) (TaskResult, error) {
	var result TaskResult
	if err := c.get(ctx, taskPath(taskID, "result"), nil, &result); err != nil {
		return TaskResult{}, err
	}
	return result, nil
}

// Resume provides the requested input to a blocked task.
func (c *Client) Resume(ctx context.Context, taskID, input string) error {
	var out struct {
		Resumed bool `json:"resumed"`
	}
	if err := c.post(ctx, taskPath(taskID, "resume"), map[string]string{"input": input}, &out); err != nil {
		return err
	}
	if !out.Resumed {
		return errors.New("openagents: task was not resumed")
	}
	return nil
}

// ListTasks returns recent tasks matching opts.
func (c *Client) ListTasks(ctx context.Context, opts ListOptions) ([]TaskStatus, error) {
	query := url.Values{}
	if len(opts.Statuses) > 0 {
		query.Set("status", strings.Join(opts.Statuses, ","))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Order != "" {
		query.Set("order", opts.Order)
	}
	if opts.Query != "" {
		query.Set("q", opts.Query)
	}
	var out struct {
		Tasks []TaskStatus `json:"tasks"`
	}
	if err := c.get(ctx, "/tasks", query, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// ListTools returns the tools registered in the gateway.
func (c *Client) ListTools(ctx context.Context) ([]ToolSpec, error) {
	var out struct {
		Tools []ToolSpec `json:"tools"`
	}
	if err := c.get(ctx, "/tools", nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

func taskPath(taskID, action string) string {
	return path.Join("/tasks", taskID, action)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
