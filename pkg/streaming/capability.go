package streaming

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	fedihttp "github.com/cecil-the-coder/fediverse-kit/pkg/http"
)

// CapabilityInfo is the per-instance result of capability discovery: where
// the websocket streaming endpoint lives, when the instance has one.
type CapabilityInfo struct {
	// StreamingBaseURL is the advertised streaming API base, e.g.
	// "wss://streaming.mastodon.example".
	StreamingBaseURL string
}

// CapabilityResolver reports whether an instance supports the socket
// transport. Resolve returns (nil, nil) when the instance advertises no
// streaming URL; that is the supported "use the polling transport" signal,
// not an error. A network failure is an error and aborts session start.
//
// Implementations must be memoized: a session consults its resolver on
// every connect and reconnect, but at most one fetch may hit the network.
type CapabilityResolver interface {
	Resolve(ctx context.Context) (*CapabilityInfo, error)
}

// InstanceResolver fetches the instance metadata endpoint once and caches
// the outcome, including a failed outcome, for its lifetime. Restarting a
// session does not retry a failed fetch; retrying discovery takes a fresh
// resolver, which is what a new Session built by NewSession carries.
type InstanceResolver struct {
	baseURL string
	hc      *fedihttp.Client

	once sync.Once
	info *CapabilityInfo
	err  error
}

// NewInstanceResolver creates a resolver for the instance at base, e.g.
// "https://mastodon.example".
func NewInstanceResolver(base string, hc *fedihttp.Client) *InstanceResolver {
	return &InstanceResolver{baseURL: base, hc: hc}
}

// Resolve returns the cached capability info, fetching it on first use.
func (r *InstanceResolver) Resolve(ctx context.Context) (*CapabilityInfo, error) {
	r.once.Do(func() {
		r.info, r.err = r.fetch(ctx)
	})
	return r.info, r.err
}

func (r *InstanceResolver) fetch(ctx context.Context) (*CapabilityInfo, error) {
	req, err := http.NewRequest(http.MethodGet, r.baseURL+"/api/v1/instance", nil)
	if err != nil {
		return nil, fmt.Errorf("building instance request: %w", err)
	}

	resp, err := r.hc.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetching instance metadata: %w", err)
	}

	// The instance entity is large; only the streaming URL matters here.
	var instance struct {
		URLs struct {
			StreamingAPI string `json:"streaming_api"`
		} `json:"urls"`
	}
	if err := fedihttp.ProcessJSONResponse(resp, &instance); err != nil {
		return nil, fmt.Errorf("decoding instance metadata: %w", err)
	}

	if instance.URLs.StreamingAPI == "" {
		return nil, nil
	}
	return &CapabilityInfo{StreamingBaseURL: instance.URLs.StreamingAPI}, nil
}
