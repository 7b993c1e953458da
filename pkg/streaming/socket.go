package streaming

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	fedihttp "github.com/cecil-the-coder/fediverse-kit/pkg/http"
)

// socketTransport carries frames over a persistent websocket connection.
// The websocket layer reassembles fragmented frames, so the receive loop
// always sees whole messages, each a JSON envelope decoded by
// decodeSocketFrame.
//
// On a transport fault that is not a normal close, the transport redials
// with capped exponential backoff and a bounded attempt count, keeping the
// same logical transport object. Reconnection is invisible to the caller;
// exhausting the attempts surfaces a terminal error.
type socketTransport struct {
	url        string
	header     http.Header
	dialer     *websocket.Dialer
	reconnect  bool
	backoff    fedihttp.BackoffConfig
	onFrame    func(Frame)
	onDrop     func(error)
	onTerminal func(error)

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	stopped bool
}

func newSocketTransport(url string, header http.Header, dialer *websocket.Dialer, reconnect bool, backoff fedihttp.BackoffConfig, onFrame func(Frame), onDrop func(error), onTerminal func(error)) *socketTransport {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if backoff == (fedihttp.BackoffConfig{}) {
		backoff = fedihttp.DefaultBackoffConfig()
	}
	return &socketTransport{
		url:        url,
		header:     header,
		dialer:     dialer,
		reconnect:  reconnect,
		backoff:    backoff,
		onFrame:    onFrame,
		onDrop:     onDrop,
		onTerminal: onTerminal,
	}
}

// Start dials the streaming endpoint. A handshake failure is returned
// synchronously; on success the receive loop runs until Stop, a normal
// close, or reconnect exhaustion.
func (t *socketTransport) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	conn, _, err := t.dialer.DialContext(runCtx, t.url, t.header)
	if err != nil {
		cancel()
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		cancel()
		_ = conn.Close()
		return fmt.Errorf("transport already stopped")
	}
	t.conn = conn
	t.cancel = cancel
	t.mu.Unlock()

	go t.readLoop(runCtx, conn)
	return nil
}

// Stop closes the socket gracefully. Safe to call repeatedly and from a
// different goroutine than the receive loop; only the first call closes
// the connection.
func (t *socketTransport) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	conn, cancel := t.conn, t.cancel
	t.conn, t.cancel = nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
}

func (t *socketTransport) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *socketTransport) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || t.isStopped() {
				return
			}
			if !t.reconnect || isNormalClose(err) {
				t.onTerminal(err)
				return
			}
			next, rerr := t.redial(ctx)
			if rerr != nil {
				t.onTerminal(rerr)
				return
			}
			conn = next
			continue
		}

		frame, err := decodeSocketFrame(message)
		if err != nil {
			// A single undecodable message is dropped; the stream lives on.
			if t.onDrop != nil {
				t.onDrop(err)
			}
			continue
		}
		t.onFrame(frame)
	}
}

// redial reopens the socket after a transport fault, swapping the new
// connection into the transport so Stop can still reach it.
func (t *socketTransport) redial(ctx context.Context) (*websocket.Conn, error) {
	attempts := t.backoff.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-time.After(fedihttp.CalculateBackoff(t.backoff, attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
		if err != nil {
			lastErr = err
			continue
		}

		t.mu.Lock()
		if t.stopped {
			t.mu.Unlock()
			_ = conn.Close()
			return nil, fmt.Errorf("transport stopped during reconnect")
		}
		t.conn = conn
		t.mu.Unlock()
		return conn, nil
	}
	return nil, fmt.Errorf("websocket reconnect failed after %d attempts: %w", attempts, lastErr)
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
