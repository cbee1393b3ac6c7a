package http

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

	"github.com/bft-labs/meetrec/internal/app"
	"github.com/bft-labs/meetrec/internal/domain"
)

// DefaultBaseURL is where controllers find a local coordinator.
const DefaultBaseURL = "http://127.0.0.1:7465"

// HTTPClient abstracts HTTP request execution for testing and custom transports.
// The standard *http.Client satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is a failed coordinator call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("coordinator returned status %d", e.StatusCode)
	}
	return e.Message
}

// Unwrap recovers the domain error the coordinator reported, so callers can
// keep using errors.Is across the HTTP boundary.
func (e *APIError) Unwrap() error {
	for _, s := range knownErrors {
		if strings.HasPrefix(e.Message, s.Error()) {
			return s
		}
	}
	return nil
}

var knownErrors = []error{
	domain.ErrNoActiveRecording,
	domain.ErrAlreadyRecording,
	domain.ErrTabNotFound,
	domain.ErrTabUnreachable,
	domain.ErrNotMeetPage,
}

// Client calls the coordinator API.
type Client struct {
	baseURL string
	http    HTTPClient
}

// NewClient creates a client for baseURL. A zero timeout leaves requests
// bounded by their context only.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: timeout})
}

// NewClientWithHTTP creates a client over a custom HTTP implementation.
func NewClientWithHTTP(baseURL string, c HTTPClient) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: c}
}

// Start asks the coordinator to record tabID. The returned flag reports a
// denied microphone.
func (c *Client) Start(ctx context.Context, tabID string, includeMic bool) (bool, error) {
	var reply domain.CommandReply
	err := c.do(ctx, http.MethodPost, startPath, domain.StartRequest{TabID: tabID, IncludeMic: includeMic}, &reply)
	if err != nil {
		return false, err
	}
	return reply.MicDenied, nil
}

// Stop asks the coordinator to stop the active recording.
func (c *Client) Stop(ctx context.Context) error {
	var reply domain.CommandReply
	return c.do(ctx, http.MethodPost, stopPath, struct{}{}, &reply)
}

// State fetches the coordinator's view of the recording.
func (c *Client) State(ctx context.Context) (domain.SharedState, error) {
	var s domain.SharedState
	err := c.do(ctx, http.MethodGet, statePath, nil, &s)
	return s, err
}

// Tabs lists connected tabs.
func (c *Client) Tabs(ctx context.Context) ([]app.TabStatus, error) {
	var tabs []app.TabStatus
	err := c.do(ctx, http.MethodGet, tabsPath, nil, &tabs)
	return tabs, err
}

// CheckMeetPage asks whether tabID shows a meeting page.
func (c *Client) CheckMeetPage(ctx context.Context, tabID string) (bool, error) {
	var reply domain.MeetPageReply
	err := c.do(ctx, http.MethodGet, tabsPath+"/"+url.PathEscape(tabID)+"/meet", nil, &reply)
	return reply.IsMeetPage, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reach coordinator: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var reply domain.CommandReply
		_ = json.Unmarshal(data, &reply)
		return &APIError{StatusCode: resp.StatusCode, Message: reply.Error}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if r, ok := out.(*domain.CommandReply); ok && !r.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: r.Error}
	}
	return nil
}

// IsUnavailable reports whether err means no coordinator answered.
func IsUnavailable(err error) bool {
	var apiErr *APIError
	return err != nil && !errors.As(err, &apiErr)
}
