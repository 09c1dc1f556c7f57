package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc, maxRetries int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:        srv.URL,
		Model:          "test-model",
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		HTTPClient:     srv.Client(),
	})
}

func TestObserve_success(t *testing.T) {
	t.Parallel()
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/observe" {
			t.Errorf("path = %q, want /v1/observe", r.URL.Path)
		}
		w.Write([]byte(`{"observations": ["adds a parser", "renames a struct"]}`))
	}, 1)
	notes, err := c.Observe(context.Background(), "diff text", "context header")
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if len(notes) != 2 || notes[0] != "adds a parser" {
		t.Errorf("notes = %v", notes)
	}
}

func TestClassify_success(t *testing.T) {
	t.Parallel()
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/classify" {
			t.Errorf("path = %q, want /v1/classify", r.URL.Path)
		}
		w.Write([]byte(`{"type": "feat", "scope": "parser", "summary": "add parser"}`))
	}, 1)
	got, err := c.Classify(context.Background(), ClassifyRequest{Stat: "1 file changed"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Type != "feat" || got.Scope != "parser" {
		t.Errorf("classification = %+v", got)
	}
}

func TestPost_retriesOn5xxThenSucceeds(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"observations": ["ok"]}`))
	}, 3)
	notes, err := c.Observe(context.Background(), "d", "")
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if len(notes) != 1 || notes[0] != "ok" {
		t.Errorf("notes = %v", notes)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestPost_retryExhaustion(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, 2)
	_, err := c.Observe(context.Background(), "d", "")
	if err == nil {
		t.Fatal("Observe succeeded, want error")
	}
	if !strings.Contains(err.Error(), "after 2 retries") {
		t.Errorf("error = %q, want retry exhaustion", err.Error())
	}
	// Initial attempt plus two retries.
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestPost_non5xxNotRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}, 3)
	_, err := c.Observe(context.Background(), "d", "")
	if err == nil {
		t.Fatal("Observe succeeded, want error")
	}
	if !strings.Contains(err.Error(), "HTTP 400") {
		t.Errorf("error = %q, want HTTP 400", err.Error())
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", n)
	}
}

func TestNew_timeout(t *testing.T) {
	t.Parallel()
	c := New(Config{BaseURL: "http://unused", Timeout: 7 * time.Second})
	if c.httpClient.Timeout != 7*time.Second {
		t.Errorf("httpClient.Timeout = %v, want 7s", c.httpClient.Timeout)
	}
	c = New(Config{BaseURL: "http://unused"})
	if c.httpClient.Timeout != defaultTimeout {
		t.Errorf("httpClient.Timeout = %v, want default %v", c.httpClient.Timeout, defaultTimeout)
	}
	// An explicit HTTP client keeps its own timeout.
	own := &http.Client{Timeout: time.Minute}
	c = New(Config{BaseURL: "http://unused", Timeout: 7 * time.Second, HTTPClient: own})
	if c.httpClient.Timeout != time.Minute {
		t.Errorf("httpClient.Timeout = %v, want the supplied client's 1m", c.httpClient.Timeout)
	}
}

func TestPost_malformedBody(t *testing.T) {
	t.Parallel()
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}, 1)
	if _, err := c.Observe(context.Background(), "d", ""); err == nil {
		t.Fatal("Observe succeeded, want parse error")
	}
}
