package integrations

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fastClient(service, baseURL string) *Client {
	c := NewClient(service, baseURL, testLogger())
	c.Backoff = time.Millisecond
	return c
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := fastClient("test", server.URL)
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.GetJSON(context.Background(), "/", nil, &out); err != nil {
		t.Fatalf("GetJSON returned error: %v", err)
	}
	if !out.OK {
		t.Error("expected decoded response")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad key"))
	}))
	defer server.Close()

	c := fastClient("test", server.URL)
	err := c.GetJSON(context.Background(), "/", nil, nil)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error type = %T, want *StatusError", err)
	}
	if statusErr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", statusErr.Status)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1", got)
	}
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := fastClient("test", server.URL)
	if err := c.GetJSON(context.Background(), "/", nil, nil); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := calls.Load(); got != int32(c.MaxRetries) {
		t.Errorf("server called %d times, want %d", got, c.MaxRetries)
	}
}

func TestClientUnconfiguredBaseURL(t *testing.T) {
	c := fastClient("test", "")
	err := c.GetJSON(context.Background(), "/", nil, nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestClientSetsUserAgentAndHeaders(t *testing.T) {
	var gotUA, gotCustom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCustom = r.Header.Get("X-API-Key")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := fastClient("test", server.URL)
	c.Headers = map[string]string{"X-API-Key": "secret"}
	if err := c.GetJSON(context.Background(), "/", nil, nil); err != nil {
		t.Fatalf("GetJSON returned error: %v", err)
	}

	if gotUA != userAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, userAgent)
	}
	if gotCustom != "secret" {
		t.Errorf("X-API-Key = %q, want %q", gotCustom, "secret")
	}
}
