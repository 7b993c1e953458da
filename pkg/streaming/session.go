// Package streaming implements the real-time event subsystem of the
// fediverse kit: a session subscribes to one feed of a Mastodon-compatible
// instance and delivers typed events over a channel, in wire order.
//
// A session prefers the websocket transport when capability discovery says
// the instance has one, and falls back to the long-lived chunked-HTTP
// transport otherwise. Exactly one transport is live per session at any
// instant.
package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/cecil-the-coder/fediverse-kit/pkg/entities"
	fedihttp "github.com/cecil-the-coder/fediverse-kit/pkg/http"
)

// ErrAlreadyStarted is returned by Start on a session that is already
// running. Stop the session before starting it again.
var ErrAlreadyStarted = errors.New("streaming: session already started")

// Config describes one streaming subscription.
type Config struct {
	// BaseURL is the instance base URL including scheme,
	// e.g. "https://mastodon.example".
	BaseURL string

	// AccessToken authenticates both transports.
	AccessToken string

	// Kind selects the feed; Param carries the hashtag name or list ID for
	// the kinds that need one.
	Kind  Kind
	Param string

	// HTTPClient is shared with the rest of the kit. A default client is
	// created when nil.
	HTTPClient *fedihttp.Client

	// Resolver overrides capability discovery; used by tests. Defaults to
	// an InstanceResolver for BaseURL.
	Resolver CapabilityResolver

	// Dialer overrides the websocket dialer.
	Dialer *websocket.Dialer

	// DisableSocket forces the polling transport even when the instance
	// advertises a streaming URL.
	DisableSocket bool

	// DisableReconnect makes a socket transport fault terminal instead of
	// triggering the bounded-backoff reconnect.
	DisableReconnect bool

	// ReconnectBackoff tunes the socket reconnect policy. Zero value means
	// fedihttp.DefaultBackoffConfig.
	ReconnectBackoff fedihttp.BackoffConfig

	// BufferSize is the event channel capacity (default 16). When the
	// buffer is full the receive loop blocks, applying backpressure to the
	// wire rather than dropping or reordering events.
	BufferSize int
}

// Session is one logical subscription. Events arrive on Events() strictly
// in wire order; the stream ends when Done() closes, after which Err()
// reports the terminal fault, or nil after a caller Stop.
//
// Start and Stop may be called repeatedly in sequence, but a Session must
// not be started concurrently from two goroutines.
type Session struct {
	cfg      Config
	resolver CapabilityResolver
	events   chan Event
	dropped  int64

	mu      sync.Mutex
	running bool
	tr      transport
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

// NewSession validates the subscription and creates a stopped session.
// Kinds that require a parameter (hashtag, list) fail here, before any
// network activity, when the parameter is empty.
func NewSession(cfg Config) (*Session, error) {
	if err := validateKind(cfg.Kind, cfg.Param); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("streaming: instance base URL is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = fedihttp.NewClient(fedihttp.ClientConfig{AccessToken: cfg.AccessToken})
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 16
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = NewInstanceResolver(cfg.BaseURL, cfg.HTTPClient)
	}

	return &Session{
		cfg:      cfg,
		resolver: resolver,
		events:   make(chan Event, cfg.BufferSize),
	}, nil
}

// Events returns the channel typed events are delivered on. The channel is
// never closed; watch Done() for end of stream.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done returns a channel that closes when the current run ends, whether by
// Stop or by a terminal transport fault. For a session that has never been
// started it returns an already-closed channel.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// Err reports the terminal fault of the last run: nil when the session was
// stopped by the caller, context.Canceled (or DeadlineExceeded) when the
// Start context ended the run, and the transport fault otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Dropped reports how many recognized frames were discarded because their
// payload would not decode.
func (s *Session) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

// Start resolves the instance's streaming capability, connects the
// preferred transport, and launches the receive loop. It returns once the
// connection is established; events then flow on Events() without blocking
// the caller.
//
// A capability-discovery network failure aborts the start. An instance
// that simply advertises no streaming URL is not a failure: the session
// connects the polling transport instead. Cancelling ctx stops the run.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.running = true
	s.lastErr = nil
	s.mu.Unlock()

	fail := func(err error) error {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}

	info, err := s.resolver.Resolve(ctx)
	if err != nil {
		return fail(fmt.Errorf("capability discovery failed: %w", err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	onFrame := func(f Frame) { s.dispatch(runCtx, f) }
	onDrop := func(error) { atomic.AddInt64(&s.dropped, 1) }
	onTerminal := func(err error) { s.finish(done, err) }

	var tr transport
	if info != nil && !s.cfg.DisableSocket {
		target, uerr := socketURL(info.StreamingBaseURL, s.cfg.AccessToken, s.cfg.Kind, s.cfg.Param)
		if uerr != nil {
			cancel()
			return fail(uerr)
		}
		tr = newSocketTransport(target, s.cfg.HTTPClient.AuthHeader(), s.cfg.Dialer,
			!s.cfg.DisableReconnect, s.cfg.ReconnectBackoff, onFrame, onDrop, onTerminal)
	} else {
		target, uerr := pollingURL(s.cfg.BaseURL, s.cfg.Kind, s.cfg.Param)
		if uerr != nil {
			cancel()
			return fail(uerr)
		}
		tr = newPollingTransport(s.cfg.HTTPClient, target, onFrame, onTerminal)
	}

	s.mu.Lock()
	s.tr = tr
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	if err := tr.Start(runCtx); err != nil {
		cancel()
		s.mu.Lock()
		s.running = false
		s.tr, s.cancel, s.done = nil, nil, nil
		s.mu.Unlock()
		return err
	}

	// End the run when the caller's context is cancelled. Stop and
	// transport faults also cancel runCtx, but they clear the done channel
	// first, so finish is a no-op for them and only an external
	// cancellation is recorded here.
	go func() {
		<-runCtx.Done()
		s.finish(done, runCtx.Err())
	}()
	return nil
}

// Stop releases the transport and ends the run. Idempotent; safe to call
// from any goroutine.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	tr, cancel, done := s.tr, s.cancel, s.done
	s.tr, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if tr != nil {
		tr.Stop()
	}
	if done != nil {
		close(done)
	}
}

// finish ends the run from inside a transport's receive loop. The done
// channel identifies the run, so a stale transport that lost a race with
// Stop cannot tear down its successor.
func (s *Session) finish(done chan struct{}, err error) {
	s.mu.Lock()
	if s.done != done {
		s.mu.Unlock()
		return
	}
	s.running = false
	tr, cancel := s.tr, s.cancel
	s.tr, s.cancel, s.done = nil, nil, nil
	s.lastErr = err
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if tr != nil {
		tr.Stop()
	}
	close(done)
}

// dispatch classifies one frame and delivers the resulting event. Called
// from the single receive-loop goroutine, so delivery order matches frame
// arrival order.
func (s *Session) dispatch(ctx context.Context, f Frame) {
	ev, ok := s.classify(f)
	if !ok {
		return
	}
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// classify decodes a frame's payload according to its event name. Unknown
// event names are ignored for forward compatibility; a recognized event
// with an undecodable payload is dropped and counted, never fatal.
func (s *Session) classify(f Frame) (Event, bool) {
	switch EventType(f.Event) {
	case EventUpdate:
		var status entities.Status
		if err := json.Unmarshal([]byte(f.Payload), &status); err != nil {
			s.drop()
			return Event{}, false
		}
		return Event{Type: EventUpdate, Status: &status}, true

	case EventNotification:
		var notification entities.Notification
		if err := json.Unmarshal([]byte(f.Payload), &notification); err != nil {
			s.drop()
			return Event{}, false
		}
		return Event{Type: EventNotification, Notification: &notification}, true

	case EventConversation:
		var conversation entities.Conversation
		if err := json.Unmarshal([]byte(f.Payload), &conversation); err != nil {
			s.drop()
			return Event{}, false
		}
		return Event{Type: EventConversation, Conversation: &conversation}, true

	case EventDelete:
		id, err := strconv.ParseInt(strings.TrimSpace(f.Payload), 10, 64)
		if err != nil {
			s.drop()
			return Event{}, false
		}
		return Event{Type: EventDelete, DeletedID: id}, true

	case EventFiltersChanged:
		return Event{Type: EventFiltersChanged}, true
	}
	return Event{}, false
}

func (s *Session) drop() {
	atomic.AddInt64(&s.dropped, 1)
}
