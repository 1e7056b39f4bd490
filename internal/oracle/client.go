// Package oracle holds the request/response surface of the verification
// oracle: status polling by session id and result-artifact fetch by subject
// reference. The push channel lives in internal/channel.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrResultNotReady is returned by FetchResult when the oracle reports the
// artifact as not yet available. Callers retry exactly once after a fixed
// delay before treating it as a fetch failure.
var ErrResultNotReady = errors.New("result artifact not yet available")

// StatusSample is one poll observation for a session. ExpiresAt is optional;
// when present and already past on a pending sample, the poller applies
// client-side expiry compensation.
type StatusSample struct {
	SessionID string     `json:"sessionId"`
	State     string     `json:"state"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Result is the finalized verification artifact fetched after a success
// signal.
type Result struct {
	SubjectRef       string   `json:"subjectRef"`
	ArtifactRef      string   `json:"artifactRef"`
	Confidence       float64  `json:"confidence"`
	PassedChallenges []string `json:"passedChallenges,omitempty"`
}

// StatusAPI samples a session's verification state.
type StatusAPI interface {
	SessionStatus(ctx context.Context, sessionID string) (*StatusSample, error)
}

// ResultAPI fetches the finalized artifact for a subject.
type ResultAPI interface {
	FetchResult(ctx context.Context, subjectRef string) (*Result, error)
}

// Client makes REST calls to the oracle's HTTP endpoints.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client targeting the given base URL (e.g.
// "https://oracle.example").
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// SessionStatus fetches GET /sessions/{id}/status.
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (*StatusSample, error) {
	var body struct {
		State     string     `json:"state"`
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	if err := c.get(ctx, "/sessions/"+sessionID+"/status", &body); err != nil {
		return nil, err
	}
	return &StatusSample{
		SessionID: sessionID,
		State:     body.State,
		ExpiresAt: body.ExpiresAt,
		Timestamp: time.Now(),
	}, nil
}

// FetchResult fetches GET /results/{subjectRef}. A 404 maps to
// ErrResultNotReady.
func (c *Client) FetchResult(ctx context.Context, subjectRef string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/results/"+subjectRef, nil)
	if err != nil {
		return nil, err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrResultNotReady
	}
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GET /results/%s: %d %s", subjectRef, resp.StatusCode, string(data))
	}
	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.SubjectRef == "" {
		out.SubjectRef = subjectRef
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, string(data))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
