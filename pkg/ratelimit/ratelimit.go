// Package ratelimit tracks the rate-limit state a Mastodon-compatible
// server reports through its X-RateLimit-* response headers, so callers can
// pace requests instead of running into 429 responses.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Info is the rate-limit state captured from one response.
type Info struct {
	// Limit is the maximum number of requests allowed in the window.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// Reset is when the window rolls over.
	Reset time.Time `json:"reset"`

	// RetryAfter holds a server-instructed wait from a 429 response.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Timestamp is when this information was captured.
	Timestamp time.Time `json:"timestamp"`
}

// ParseHeaders extracts rate-limit information from response headers.
// Mastodon sends X-RateLimit-Limit, X-RateLimit-Remaining and an RFC3339
// X-RateLimit-Reset; a 429 additionally carries Retry-After in seconds.
// It returns false when the response carries no rate-limit headers.
func ParseHeaders(headers http.Header) (Info, bool) {
	limitStr := headers.Get("X-RateLimit-Limit")
	remainingStr := headers.Get("X-RateLimit-Remaining")
	if limitStr == "" && remainingStr == "" {
		return Info{}, false
	}

	info := Info{Timestamp: time.Now()}
	if n, err := strconv.Atoi(limitStr); err == nil {
		info.Limit = n
	}
	if n, err := strconv.Atoi(remainingStr); err == nil {
		info.Remaining = n
	}
	if reset, err := time.Parse(time.RFC3339, headers.Get("X-RateLimit-Reset")); err == nil {
		info.Reset = reset
	}
	if seconds, err := strconv.Atoi(headers.Get("Retry-After")); err == nil {
		info.RetryAfter = time.Duration(seconds) * time.Second
	}
	return info, true
}

// Tracker holds the most recent rate-limit state for an instance. It is
// safe for concurrent use and is wired into the HTTP client's response
// hook so every API response refreshes it.
type Tracker struct {
	mu   sync.RWMutex
	info *Info
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Update records rate-limit state from a response. Responses without
// rate-limit headers are ignored.
func (t *Tracker) Update(resp *http.Response) {
	info, ok := ParseHeaders(resp.Header)
	if !ok {
		return
	}
	t.mu.Lock()
	t.info = &info
	t.mu.Unlock()
}

// Info returns the last captured state, or nil when nothing has been
// recorded yet.
func (t *Tracker) Info() *Info {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.info == nil {
		return nil
	}
	copied := *t.info
	return &copied
}

// CanRequest reports whether the window has requests left. With no
// recorded state it optimistically returns true.
func (t *Tracker) CanRequest() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.info == nil {
		return true
	}
	if t.info.Remaining > 0 {
		return true
	}
	return time.Now().After(t.info.Reset)
}

// WaitTime returns how long to wait before the next request is allowed.
// Zero means the request can go out now.
func (t *Tracker) WaitTime() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.info == nil || t.info.Remaining > 0 {
		return 0
	}
	if t.info.RetryAfter > 0 {
		return t.info.RetryAfter
	}
	wait := time.Until(t.info.Reset)
	if wait < 0 {
		return 0
	}
	return wait
}
