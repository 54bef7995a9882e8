package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
)

func newTestClient(host string, retries int) *Client {
	return New(Config{
		Host:            host,
		APIKey:          "pk_test",
		UserToken:       "user-token",
		Timeout:         2 * time.Second,
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}, nil)
}

func TestDoSendsHeadersAndParams(t *testing.T) {
	var got *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"entries":[],"meta":{"total_count":0,"unread_count":0,"unseen_count":0},"page_info":{"before":null,"after":null,"page_size":50}}`))
	}))
	defer ts.Close()

	client := newTestClient(ts.URL, 0)
	res := client.Do(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/v1/users/u1/feeds/f1",
		Params: url.Values{"page_size": {"10"}, "archived": {"exclude"}},
	})

	if !res.OK() {
		t.Fatalf("expected ok result, got %+v", res)
	}
	if res.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", res.Status)
	}
	if got.URL.Path != "/v1/users/u1/feeds/f1" {
		t.Errorf("path = %q", got.URL.Path)
	}
	if got.URL.Query().Get("page_size") != "10" || got.URL.Query().Get("archived") != "exclude" {
		t.Errorf("unexpected query %q", got.URL.RawQuery)
	}
	if got.Header.Get("Authorization") != "Bearer pk_test" {
		t.Errorf("Authorization = %q", got.Header.Get("Authorization"))
	}
	if got.Header.Get("X-User-Token") != "user-token" {
		t.Errorf("X-User-Token = %q", got.Header.Get("X-User-Token"))
	}
	if got.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID should be set")
	}

	var body domain.FeedResponse
	if err := res.Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.PageInfo.PageSize != 50 {
		t.Errorf("page_size = %d, want 50", body.PageInfo.PageSize)
	}
}

func TestDoSendsJSONBody(t *testing.T) {
	var received domain.BatchStatusRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	res := newTestClient(ts.URL, 0).Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/v1/messages/batch/read",
		Data:   domain.BatchStatusRequest{MessageIDs: []string{"a", "b"}},
	})

	if !res.OK() {
		t.Fatalf("expected ok, got %+v", res)
	}
	if res.Body != nil {
		t.Errorf("expected empty body, got %q", res.Body)
	}
	if len(received.MessageIDs) != 2 {
		t.Errorf("message_ids = %v", received.MessageIDs)
	}
}

func TestDoRetries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		status    int
		retries   int
		wantOK    bool
		wantCalls int32
	}{
		{name: "server error then success", failures: 2, status: http.StatusInternalServerError, retries: 3, wantOK: true, wantCalls: 3},
		{name: "rate limited then success", failures: 1, status: http.StatusTooManyRequests, retries: 3, wantOK: true, wantCalls: 2},
		{name: "retries exhausted", failures: 10, status: http.StatusBadGateway, retries: 2, wantOK: false, wantCalls: 3},
		{name: "client error not retried", failures: 10, status: http.StatusNotFound, retries: 3, wantOK: false, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				if n <= tt.failures {
					w.WriteHeader(tt.status)
					w.Write([]byte(`{"message":"nope"}`))
					return
				}
				w.Write([]byte(`{"ok":true}`))
			}))
			defer ts.Close()

			res := newTestClient(ts.URL, tt.retries).Do(context.Background(), Request{Method: http.MethodGet, Path: "/v1/thing"})

			if res.OK() != tt.wantOK {
				t.Fatalf("OK() = %v, want %v (result %+v)", res.OK(), tt.wantOK, res)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			if !tt.wantOK {
				if res.Status != tt.status {
					t.Errorf("Status = %d, want %d", res.Status, tt.status)
				}
				var statusErr *StatusError
				if !errors.As(res.Err, &statusErr) {
					t.Errorf("expected StatusError, got %v", res.Err)
				}
			}
		})
	}
}

func TestDoHonoursRetryAfter(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	client := newTestClient(ts.URL, 2)
	client.cfg.MaxInterval = 50 * time.Millisecond

	start := time.Now()
	res := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/v1/thing"})
	elapsed := time.Since(start)

	if !res.OK() {
		t.Fatalf("expected success after retry, got %+v", res)
	}
	if elapsed < 40*time.Millisecond || elapsed > 5*time.Second {
		t.Errorf("retry waited %v, want the capped Retry-After", elapsed)
	}

	t.Run("exhausted keeps status error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer ts.Close()

		res := newTestClient(ts.URL, 1).Do(context.Background(), Request{Method: http.MethodGet, Path: "/v1/thing"})
		var statusErr *StatusError
		if res.OK() || !errors.As(res.Err, &statusErr) || statusErr.Status != http.StatusTooManyRequests {
			t.Errorf("unexpected result %+v", res)
		}
	})
}

func TestDoNetworkError(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1", 1)

	res := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/v1/thing"})

	if res.OK() {
		t.Fatal("expected error result")
	}
	if res.Err == nil {
		t.Error("expected Err to be set")
	}
	if res.Status != 0 {
		t.Errorf("Status = %d, want 0", res.Status)
	}
}

func TestDoCancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestClient(ts.URL, 3).Do(ctx, Request{Method: http.MethodGet, Path: "/"})
	if res.OK() {
		t.Fatal("expected error result for cancelled context")
	}
}

func TestResultDecodeEmptyBody(t *testing.T) {
	var v map[string]any
	err := Result{StatusCode: OutcomeOK}.Decode(&v)
	if !errors.Is(err, domain.ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}
