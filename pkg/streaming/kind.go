package streaming

import (
	"fmt"
	"net/url"
)

// Kind identifies the logical feed a streaming session subscribes to.
// The value doubles as the "stream" query parameter of the websocket
// endpoint.
type Kind string

const (
	KindPublic       Kind = "public"
	KindPublicLocal  Kind = "public:local"
	KindUser         Kind = "user"
	KindHashtag      Kind = "hashtag"
	KindHashtagLocal Kind = "hashtag:local"
	KindList         Kind = "list"
	KindDirect       Kind = "direct"
)

// paramName returns the query parameter name carrying the kind's required
// argument, or "" when the kind takes none.
func (k Kind) paramName() string {
	switch k {
	case KindHashtag, KindHashtagLocal:
		return "tag"
	case KindList:
		return "list"
	}
	return ""
}

// endpointPath returns the chunked-HTTP streaming path for the kind.
func (k Kind) endpointPath() string {
	switch k {
	case KindPublic:
		return "/api/v1/streaming/public"
	case KindPublicLocal:
		return "/api/v1/streaming/public/local"
	case KindUser:
		return "/api/v1/streaming/user"
	case KindHashtag:
		return "/api/v1/streaming/hashtag"
	case KindHashtagLocal:
		return "/api/v1/streaming/hashtag/local"
	case KindList:
		return "/api/v1/streaming/list"
	case KindDirect:
		return "/api/v1/streaming/direct"
	}
	return ""
}

// validateKind checks the kind/param pairing before any network activity.
func validateKind(k Kind, param string) error {
	if k.endpointPath() == "" {
		return fmt.Errorf("unknown streaming kind %q", k)
	}
	if name := k.paramName(); name != "" && param == "" {
		return fmt.Errorf("streaming kind %q requires a %s parameter", k, name)
	}
	return nil
}

// pollingURL builds the chunked-HTTP streaming URL for a kind. base is the
// instance base URL including scheme, e.g. "https://mastodon.example".
func pollingURL(base string, k Kind, param string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid instance URL %q: %w", base, err)
	}
	u.Path = k.endpointPath()
	if name := k.paramName(); name != "" {
		q := u.Query()
		q.Set(name, param)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// socketURL builds the websocket streaming URL from the capability-discovered
// streaming base, e.g. "wss://streaming.mastodon.example".
func socketURL(streamingBase, token string, k Kind, param string) (string, error) {
	u, err := url.Parse(streamingBase)
	if err != nil {
		return "", fmt.Errorf("invalid streaming base URL %q: %w", streamingBase, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/api/v1/streaming"
	q := u.Query()
	q.Set("access_token", token)
	q.Set("stream", string(k))
	if name := k.paramName(); name != "" {
		q.Set(name, param)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
