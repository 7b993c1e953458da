package streaming

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fedihttp "github.com/cecil-the-coder/fediverse-kit/pkg/http"
)

func TestInstanceResolver_FetchesStreamingURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/instance", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"uri":"example","urls":{"streaming_api":"wss://streaming.example"}}`))
	}))
	defer server.Close()

	resolver := NewInstanceResolver(server.URL, fedihttp.NewClient(fedihttp.ClientConfig{}))
	info, err := resolver.Resolve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "wss://streaming.example", info.StreamingBaseURL)
}

func TestInstanceResolver_FetchesAtMostOnce(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		_, _ = w.Write([]byte(`{"urls":{"streaming_api":"wss://streaming.example"}}`))
	}))
	defer server.Close()

	resolver := NewInstanceResolver(server.URL, fedihttp.NewClient(fedihttp.ClientConfig{}))
	for i := 0; i < 5; i++ {
		_, err := resolver.Resolve(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits))
}

func TestInstanceResolver_NoStreamingURLIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"uri":"old-server"}`))
	}))
	defer server.Close()

	resolver := NewInstanceResolver(server.URL, fedihttp.NewClient(fedihttp.ClientConfig{}))
	info, err := resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.Nil(t, info, "absent streaming URL means fall back to polling, not error")
}

func TestInstanceResolver_FailedFetchIsCached(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		http.Error(w, `{"error":"overloaded"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	hc := fedihttp.NewClient(fedihttp.ClientConfig{MaxRetries: 1, Backoff: fedihttp.BackoffConfig{BaseDelay: 1, MaxDelay: 1, Multiplier: 1, MaxAttempts: 1}})
	resolver := NewInstanceResolver(server.URL, hc)

	_, err := resolver.Resolve(context.Background())
	require.Error(t, err)
	fetched := atomic.LoadInt64(&hits)

	// The failure is memoized like a success: later Resolves return the
	// same error without touching the network again.
	_, again := resolver.Resolve(context.Background())
	require.Error(t, again)
	assert.Equal(t, err, again)
	assert.Equal(t, fetched, atomic.LoadInt64(&hits))
}

func TestInstanceResolver_NetworkFailurePropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	hc := fedihttp.NewClient(fedihttp.ClientConfig{MaxRetries: 1, Backoff: fedihttp.BackoffConfig{BaseDelay: 1, MaxDelay: 1, Multiplier: 1, MaxAttempts: 1}})
	resolver := NewInstanceResolver(server.URL, hc)
	_, err := resolver.Resolve(context.Background())
	assert.Error(t, err)
}
