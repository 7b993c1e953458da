package streaming

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	fedihttp "github.com/cecil-the-coder/fediverse-kit/pkg/http"
)

// transport is the contract between a session and its network mechanism.
// Start connects synchronously and, on success, launches the receive loop
// in a background goroutine. Stop tears the connection down and is
// idempotent. A transport is single-use: once stopped it is not restarted.
type transport interface {
	Start(ctx context.Context) error
	Stop()
}

// pollingTransport reads the line-oriented event stream from a long-lived
// chunked HTTP response. It is the fallback transport and never reconnects:
// any read failure or stream end is terminal and reported to the session.
type pollingTransport struct {
	hc         *fedihttp.Client
	url        string
	onFrame    func(Frame)
	onTerminal func(error)

	mu     sync.Mutex
	cancel context.CancelFunc
	body   io.ReadCloser
}

func newPollingTransport(hc *fedihttp.Client, url string, onFrame func(Frame), onTerminal func(error)) *pollingTransport {
	return &pollingTransport{
		hc:         hc,
		url:        url,
		onFrame:    onFrame,
		onTerminal: onTerminal,
	}
}

// Start opens the stream. A connection or handshake failure is returned
// synchronously and leaves the transport stopped.
func (t *pollingTransport) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequest(http.MethodGet, t.url, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("building stream request: %w", err)
	}

	resp, err := t.hc.DoStream(runCtx, req)
	if err != nil {
		cancel()
		return err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		cancel()
		return fedihttp.ParseAPIError(resp.StatusCode, string(body))
	}

	t.mu.Lock()
	t.cancel = cancel
	t.body = resp.Body
	t.mu.Unlock()

	go t.readLoop(runCtx, resp.Body)
	return nil
}

// Stop cancels the receive loop and closes the connection. Safe to call
// more than once and from any goroutine.
func (t *pollingTransport) Stop() {
	t.mu.Lock()
	cancel, body := t.cancel, t.body
	t.cancel, t.body = nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if body != nil {
		// Closing the body unblocks a pending read immediately.
		_ = body.Close()
	}
}

func (t *pollingTransport) readLoop(ctx context.Context, body io.ReadCloser) {
	defer func() { _ = body.Close() }()

	parser := &lineParser{}
	reader := bufio.NewReader(body)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				// Stopped by the session; not a fault.
				return
			}
			if err == io.EOF {
				err = fmt.Errorf("event stream ended: %w", io.ErrUnexpectedEOF)
			}
			t.onTerminal(err)
			return
		}

		line = strings.TrimRight(line, "\r\n")
		if frame, ok := parser.Feed(line); ok {
			t.onFrame(frame)
		}
	}
}
