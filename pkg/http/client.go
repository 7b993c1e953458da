// Package http provides the shared HTTP client used by the fediverse kit.
// It wraps net/http with retry logic, bearer-token auth, rate-limit pacing,
// and JSON helpers tuned for Mastodon-compatible APIs.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ResponseHook is invoked with every response received by the client, before
// retry decisions are made. Used to capture rate-limit headers.
type ResponseHook func(resp *http.Response)

// ClientConfig configures the shared HTTP client.
type ClientConfig struct {
	// Timeout applies to one-shot requests. Streaming requests opened with
	// DoStream ignore it, since a healthy stream stays open indefinitely.
	Timeout time.Duration

	// Retry behavior for one-shot requests.
	MaxRetries int
	Backoff    BackoffConfig

	// AccessToken, when non-empty, is sent as "Authorization: Bearer <token>"
	// on every request.
	AccessToken string

	UserAgent string

	// Limiter, when non-nil, paces outgoing one-shot requests client-side.
	// Servers that enforce 300 requests per 5 minutes are well served by
	// rate.NewLimiter(rate.Every(time.Second), 1).
	Limiter *rate.Limiter

	// OnResponse is called for every response, including retried attempts.
	OnResponse ResponseHook
}

// Metrics tracks request counts and latency for one client.
type Metrics struct {
	TotalRequests  int64         `json:"total_requests"`
	SuccessfulReqs int64         `json:"successful_requests"`
	FailedReqs     int64         `json:"failed_requests"`
	RetryCount     int64         `json:"retry_count"`
	AvgLatency     time.Duration `json:"avg_latency"`
}

// Client is a reusable HTTP client safe for concurrent use. One Client is
// shared by the REST wrappers and every streaming session of a kit client.
type Client struct {
	oneShot  *http.Client
	longLive *http.Client
	config   ClientConfig

	requestCount int64
	successCount int64
	errorCount   int64
	retryCount   int64
	totalLatency int64 // nanoseconds
}

// NewClient creates a Client, filling in defaults for unset config fields.
func NewClient(config ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.Backoff == (BackoffConfig{}) {
		config.Backoff = DefaultBackoffConfig()
	}
	if config.UserAgent == "" {
		config.UserAgent = "fediverse-kit/1.0"
	}

	return &Client{
		oneShot:  &http.Client{Timeout: config.Timeout},
		longLive: &http.Client{},
		config:   config,
	}
}

// Do executes a one-shot request with retry on retryable failures.
// A response with a non-2xx status is returned as-is; use ProcessResponse
// or ProcessJSONResponse to turn it into an *APIError.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	atomic.AddInt64(&c.requestCount, 1)

	var resp *http.Response
	var err error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(c.config.Backoff, attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			atomic.AddInt64(&c.retryCount, 1)
		}

		if err = c.waitForLimiter(ctx); err != nil {
			return nil, err
		}

		attemptReq := req.Clone(ctx)
		c.decorate(attemptReq)

		resp, err = c.oneShot.Do(attemptReq)
		if err != nil {
			if attempt < c.config.MaxRetries {
				continue
			}
			break
		}

		if c.config.OnResponse != nil {
			c.config.OnResponse(resp)
		}

		if retryableStatus(resp.StatusCode) && attempt < c.config.MaxRetries {
			_ = resp.Body.Close()
			continue
		}
		break
	}

	c.record(err == nil, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL.Host, err)
	}
	return resp, nil
}

// DoStream executes a request on the long-lived client: no overall timeout,
// no retry, no client-side pacing. The caller owns the response body and
// must close it; cancelling ctx also unblocks in-flight body reads.
func (c *Client) DoStream(ctx context.Context, req *http.Request) (*http.Response, error) {
	atomic.AddInt64(&c.requestCount, 1)

	streamReq := req.Clone(ctx)
	c.decorate(streamReq)

	resp, err := c.longLive.Do(streamReq)
	if err != nil {
		c.record(false, 0)
		return nil, fmt.Errorf("stream request to %s failed: %w", req.URL.Host, err)
	}
	c.record(true, 0)
	return resp, nil
}

// AuthHeader returns the Authorization header the client attaches to its
// requests, for transports (websocket dial) that build their own requests.
func (c *Client) AuthHeader() http.Header {
	h := make(http.Header)
	if c.config.AccessToken != "" {
		h.Set("Authorization", "Bearer "+c.config.AccessToken)
	}
	h.Set("User-Agent", c.config.UserAgent)
	return h
}

// GetMetrics returns a snapshot of the client's request metrics.
func (c *Client) GetMetrics() Metrics {
	total := atomic.LoadInt64(&c.requestCount)
	m := Metrics{
		TotalRequests:  total,
		SuccessfulReqs: atomic.LoadInt64(&c.successCount),
		FailedReqs:     atomic.LoadInt64(&c.errorCount),
		RetryCount:     atomic.LoadInt64(&c.retryCount),
	}
	if total > 0 {
		m.AvgLatency = time.Duration(atomic.LoadInt64(&c.totalLatency) / total)
	}
	return m
}

func (c *Client) decorate(req *http.Request) {
	if c.config.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
}

func (c *Client) waitForLimiter(ctx context.Context) error {
	if c.config.Limiter == nil {
		return nil
	}
	if err := c.config.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	return nil
}

func (c *Client) record(ok bool, latency time.Duration) {
	if ok {
		atomic.AddInt64(&c.successCount, 1)
	} else {
		atomic.AddInt64(&c.errorCount, 1)
	}
	atomic.AddInt64(&c.totalLatency, latency.Nanoseconds())
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
