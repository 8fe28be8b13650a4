package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnreachable wraps transport-level failures: DNS, refused
// connections, timeouts. It is the signal the session and task layers
// key their offline fallbacks on. A response the server actually sent,
// whatever the status, is never ErrUnreachable.
var ErrUnreachable = errors.New("server unreachable")

// APIError is a rejection the server itself produced.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Task is the wire shape of a task as the API serves it.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	DueDate     time.Time `json:"dueDate"`
	CreatedAt   time.Time `json:"createdAt"`
	Subtasks    []Subtask `json:"subtasks"`
}

type Subtask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	IsCompleted bool   `json:"isCompleted"`
}

type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// API is a thin HTTP client for the task server. It attaches the bearer
// token from the configured source and reports 401s to the unauthorized
// hook so the session layer can decide whether the stored token is dead.
type API struct {
	baseURL        string
	httpClient     *http.Client
	tokenSource    func() string
	onUnauthorized func(*APIError)
}

func NewAPI(baseURL string) *API {
	return &API{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SetTokenSource installs the function consulted for the bearer token
// on every request. An empty string means no Authorization header.
func (a *API) SetTokenSource(fn func() string) {
	a.tokenSource = fn
}

// SetUnauthorizedHook installs the callback invoked whenever the server
// answers 401.
func (a *API) SetUnauthorizedHook(fn func(*APIError)) {
	a.onUnauthorized = fn
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (a *API) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if a.tokenSource != nil {
		if token := a.tokenSource(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var env envelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		if env.Message == "" {
			env.Message = http.StatusText(resp.StatusCode)
		}

		apiErr := &APIError{Status: resp.StatusCode, Message: env.Message}
		if resp.StatusCode == http.StatusUnauthorized && a.onUnauthorized != nil {
			a.onUnauthorized(apiErr)
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (a *API) Get(ctx context.Context, path string, out interface{}) error {
	return a.do(ctx, http.MethodGet, path, nil, out)
}

func (a *API) Post(ctx context.Context, path string, body, out interface{}) error {
	return a.do(ctx, http.MethodPost, path, body, out)
}

func (a *API) Put(ctx context.Context, path string, body, out interface{}) error {
	return a.do(ctx, http.MethodPut, path, body, out)
}

func (a *API) Delete(ctx context.Context, path string, out interface{}) error {
	return a.do(ctx, http.MethodDelete, path, nil, out)
}
