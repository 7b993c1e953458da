package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func fastRetryConfig() ClientConfig {
	return ClientConfig{
		AccessToken: "tok",
		MaxRetries:  2,
		Backoff: BackoffConfig{
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
			Multiplier:  1,
			MaxAttempts: 2,
		},
	}
}

func TestClient_SetsBearerAndUserAgent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a User-Agent header")
		}
	}))
	defer server.Close()

	client := NewClient(fastRetryConfig())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	_ = resp.Body.Close()
}

func TestClient_RetriesOnServerError(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(fastRetryConfig())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 after retry", resp.StatusCode)
	}
	if got := atomic.LoadInt64(&hits); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
	if m := client.GetMetrics(); m.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", m.RetryCount)
	}
}

func TestClient_NonRetryableStatusReturnedAsIs(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(fastRetryConfig())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Errorf("server hits = %d, want 1 (404 is not retryable)", got)
	}
}

func TestClient_ResponseHookSeesEveryResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "299")
	}))
	defer server.Close()

	var hooked int64
	cfg := fastRetryConfig()
	cfg.OnResponse = func(resp *http.Response) {
		if resp.Header.Get("X-RateLimit-Remaining") == "299" {
			atomic.AddInt64(&hooked, 1)
		}
	}

	client := NewClient(cfg)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	_ = resp.Body.Close()

	if atomic.LoadInt64(&hooked) != 1 {
		t.Error("response hook did not run")
	}
}

func TestClient_LimiterPacesRequests(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
	}))
	defer server.Close()

	cfg := fastRetryConfig()
	cfg.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	client := NewClient(cfg)

	// The burst token admits the first request immediately.
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	_ = resp.Body.Close()

	// The second would have to wait an hour; a short deadline makes the
	// limiter give up before the request is sent.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ = http.NewRequest(http.MethodGet, server.URL, nil)
	if _, err := client.Do(ctx, req); err == nil {
		t.Fatal("expected the limiter to fail the second request")
	}

	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Errorf("server hits = %d, want 1 (second request paced out before sending)", got)
	}
}

func TestClient_DoStreamCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(ClientConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.DoStream(ctx, req)
	if err != nil {
		t.Fatalf("DoStream: %v", err)
	}
	defer resp.Body.Close()

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := resp.Body.Read(buf)
		done <- err
	}()

	cancel()
	select {
	case readErr := <-done:
		if readErr == nil {
			t.Error("expected the pending read to fail after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation did not unblock the pending read")
	}
}
