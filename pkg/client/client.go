// Package client is the main entry point of the fediverse kit: one Client
// per instance/account pair, offering a representative REST surface and
// factories for real-time streaming sessions.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	fedihttp "github.com/cecil-the-coder/fediverse-kit/pkg/http"
	"github.com/cecil-the-coder/fediverse-kit/pkg/ratelimit"
	"github.com/cecil-the-coder/fediverse-kit/pkg/streaming"
)

// Config configures a Client.
type Config struct {
	// Instance is the server to talk to, with or without scheme:
	// "mastodon.example" and "https://mastodon.example" are equivalent.
	Instance string

	// AccessToken authenticates requests. Leave empty for endpoints that
	// allow anonymous access (public timelines, public streams on some
	// instances).
	AccessToken string

	UserAgent string

	// DisableSocket forces every streaming session onto the chunked-HTTP
	// polling transport, even when the instance advertises a websocket URL.
	DisableSocket bool

	// HTTPClient overrides the shared HTTP client; mostly for tests. When
	// set, the caller owns rate-limit tracking.
	HTTPClient *fedihttp.Client
}

// Client talks to one Mastodon-compatible instance. Safe for concurrent
// use; all methods and any number of streaming sessions share one
// underlying HTTP client.
type Client struct {
	baseURL  string
	token    string
	hc       *fedihttp.Client
	limits   *ratelimit.Tracker
	noSocket bool
}

// New validates the configuration and creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Instance == "" {
		return nil, fmt.Errorf("client: instance is required")
	}
	base := cfg.Instance
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("client: invalid instance %q", cfg.Instance)
	}
	base = strings.TrimRight(base, "/")

	limits := ratelimit.NewTracker()
	hc := cfg.HTTPClient
	if hc == nil {
		hc = fedihttp.NewClient(fedihttp.ClientConfig{
			AccessToken: cfg.AccessToken,
			UserAgent:   cfg.UserAgent,
			OnResponse:  limits.Update,
		})
	}

	return &Client{
		baseURL:  base,
		token:    cfg.AccessToken,
		hc:       hc,
		limits:   limits,
		noSocket: cfg.DisableSocket,
	}, nil
}

// BaseURL returns the normalized instance base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RateLimit returns the last rate-limit state the server reported, or nil
// before the first response.
func (c *Client) RateLimit() *ratelimit.Info {
	return c.limits.Info()
}

// StreamPublic subscribes to the federated public timeline.
func (c *Client) StreamPublic() (*streaming.Session, error) {
	return c.newStream(streaming.KindPublic, "")
}

// StreamPublicLocal subscribes to the instance-local public timeline.
func (c *Client) StreamPublicLocal() (*streaming.Session, error) {
	return c.newStream(streaming.KindPublicLocal, "")
}

// StreamUser subscribes to the authenticated user's home timeline and
// notifications.
func (c *Client) StreamUser() (*streaming.Session, error) {
	return c.newStream(streaming.KindUser, "")
}

// StreamHashtag subscribes to statuses carrying a hashtag, federation-wide.
// An empty tag fails before any network activity.
func (c *Client) StreamHashtag(tag string) (*streaming.Session, error) {
	return c.newStream(streaming.KindHashtag, tag)
}

// StreamHashtagLocal subscribes to local statuses carrying a hashtag.
func (c *Client) StreamHashtagLocal(tag string) (*streaming.Session, error) {
	return c.newStream(streaming.KindHashtagLocal, tag)
}

// StreamList subscribes to the statuses of a list's members.
func (c *Client) StreamList(listID string) (*streaming.Session, error) {
	return c.newStream(streaming.KindList, listID)
}

// StreamDirect subscribes to the user's direct-message conversations.
func (c *Client) StreamDirect() (*streaming.Session, error) {
	return c.newStream(streaming.KindDirect, "")
}

func (c *Client) newStream(kind streaming.Kind, param string) (*streaming.Session, error) {
	return streaming.NewSession(streaming.Config{
		BaseURL:       c.baseURL,
		AccessToken:   c.token,
		Kind:          kind,
		Param:         param,
		HTTPClient:    c.hc,
		DisableSocket: c.noSocket,
	})
}

func (c *Client) endpoint(path string, query url.Values) string {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	return c.send(ctx, req, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, headers http.Header, out interface{}) error {
	req, err := fedihttp.NewFormRequest(c.endpoint(path, nil), form)
	if err != nil {
		return err
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return c.send(ctx, req, out)
}

func (c *Client) delete(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodDelete, c.endpoint(path, nil), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	return c.send(ctx, req, out)
}

func (c *Client) send(ctx context.Context, req *http.Request, out interface{}) error {
	resp, err := c.hc.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		_, err := fedihttp.ProcessResponse(resp)
		return err
	}
	return fedihttp.ProcessJSONResponse(resp, out)
}
