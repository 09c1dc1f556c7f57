// Package llm provides an HTTP client for the classification service: one
// observation call per file in the map phase, and one synthesis call in the
// reduce phase. The result schema is owned by the service, not by this tool.
//
// # Retries
// 5xx responses are retried with exponential backoff (initial × 2^(attempt−1))
// up to a configured count, sequentially. Anything else — transport errors,
// 4xx, malformed bodies — surfaces immediately without retry. The request
// context and the HTTP client timeout are the only bounds on call duration.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"carve/cli/internal/groups"
)

const (
	defaultTimeout        = 120 * time.Second
	defaultMaxRetries     = 3
	defaultInitialBackoff = time.Second
)

// Config configures a Client. Zero values fall back to defaults.
type Config struct {
	BaseURL        string
	Model          string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	// HTTPClient overrides the default client (tests pass httptest clients);
	// when set, Timeout is ignored in favor of the client's own.
	HTTPClient *http.Client
}

// Client calls the classification service. Zero value is not valid; use New.
type Client struct {
	baseURL        string
	model          string
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.InitialBackoff
	if backoff <= 0 {
		backoff = defaultInitialBackoff
	}
	return &Client{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		model:          cfg.Model,
		httpClient:     httpClient,
		maxRetries:     maxRetries,
		initialBackoff: backoff,
	}
}

// Observation is one file's analysis output from the map phase.
type Observation struct {
	File      string   `json:"file"`
	Notes     []string `json:"notes"`
	Additions int      `json:"additions"`
	Deletions int      `json:"deletions"`
}

// Classification is the synthesized result of the reduce phase (or of the
// single-call path when map-reduce is not used).
type Classification struct {
	Type    string         `json:"type"`
	Scope   string         `json:"scope,omitempty"`
	Summary string         `json:"summary"`
	Groups  []groups.Group `json:"groups,omitempty"`
}

type observeRequest struct {
	Model   string `json:"model"`
	Diff    string `json:"diff"`
	Context string `json:"context,omitempty"`
}

type observeResponse struct {
	Observations []string `json:"observations"`
}

// ClassifyRequest is the reduce-phase payload: every per-file observation
// plus the stat summary and scope hints, all passed through opaquely.
type ClassifyRequest struct {
	Model        string        `json:"model"`
	Observations []Observation `json:"observations,omitempty"`
	Diff         string        `json:"diff,omitempty"`
	Stat         string        `json:"stat,omitempty"`
	Scopes       []string      `json:"scopes,omitempty"`
}

// Observe sends one file's diff text plus a sibling-context header and
// returns the service's observation strings.
func (c *Client) Observe(ctx context.Context, fileDiff, contextHeader string) ([]string, error) {
	var resp observeResponse
	req := observeRequest{Model: c.model, Diff: fileDiff, Context: contextHeader}
	if err := c.post(ctx, "/v1/observe", req, &resp); err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	return resp.Observations, nil
}

// Classify sends the synthesis payload and returns the classification
// record.
func (c *Client) Classify(ctx context.Context, req ClassifyRequest) (*Classification, error) {
	req.Model = c.model
	var resp Classification
	if err := c.post(ctx, "/v1/classify", req, &resp); err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return &resp, nil
}

// post sends a JSON request and decodes a JSON response, applying the retry
// policy. Retries are sequential; the backoff sleep respects ctx.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	url := c.baseURL + path

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt > c.maxRetries {
				return fmt.Errorf("%s: HTTP %d after %d retries", path, resp.StatusCode, c.maxRetries)
			}
			if err := sleepBackoff(ctx, c.initialBackoff, attempt); err != nil {
				return err
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if decodeErr != nil {
			return fmt.Errorf("%s: parse response: %w", path, decodeErr)
		}
		return nil
	}
}

// sleepBackoff waits initial × 2^(attempt−1), or returns early when ctx is
// done.
func sleepBackoff(ctx context.Context, initial time.Duration, attempt int) error {
	wait := initial << (attempt - 1)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
