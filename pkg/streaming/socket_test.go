package streaming

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fedihttp "github.com/cecil-the-coder/fediverse-kit/pkg/http"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func fastBackoff() fedihttp.BackoffConfig {
	return fedihttp.BackoffConfig{
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  1,
		MaxAttempts: 5,
	}
}

func socketSession(t *testing.T, resolver CapabilityResolver, kind Kind, param string) *Session {
	t.Helper()
	session, err := NewSession(Config{
		BaseURL:          "https://unused.example",
		AccessToken:      "tok",
		Kind:             kind,
		Param:            param,
		Resolver:         resolver,
		ReconnectBackoff: fastBackoff(),
	})
	require.NoError(t, err)
	return session
}

func TestSession_SocketDeliversNotification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "user", r.URL.Query().Get("stream"))
		assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		msg := `{"event":"notification","payload":"{\"id\":\"9\",\"type\":\"follow\"}"}`
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	resolver := &fakeResolver{info: &CapabilityInfo{StreamingBaseURL: server.URL}}
	session := socketSession(t, resolver, KindUser, "")
	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	ev := waitEvent(t, session)
	require.Equal(t, EventNotification, ev.Type)
	require.NotNil(t, ev.Notification)
	assert.Equal(t, "follow", ev.Notification.Type)
}

// A message split across several websocket fragments must surface as
// exactly one event: the socket layer reassembles fragments before the
// frame is decoded.
func TestSession_SocketReassemblesFragmentedMessage(t *testing.T) {
	fragmentingUpgrader := websocket.Upgrader{
		WriteBufferSize: 16, // force fragmentation of anything larger
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := fragmentingUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		writer, err := conn.NextWriter(websocket.TextMessage)
		require.NoError(t, err)
		msg := `{"event":"notification","payload":"{\"id\":\"9\",\"type\":\"mention\"}"}`
		for len(msg) > 0 {
			n := 10
			if n > len(msg) {
				n = len(msg)
			}
			_, err = io.WriteString(writer, msg[:n])
			require.NoError(t, err)
			msg = msg[n:]
		}
		require.NoError(t, writer.Close())
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	resolver := &fakeResolver{info: &CapabilityInfo{StreamingBaseURL: server.URL}}
	session := socketSession(t, resolver, KindUser, "")
	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	ev := waitEvent(t, session)
	require.Equal(t, EventNotification, ev.Type)
	assert.Equal(t, "mention", ev.Notification.Type)

	// Exactly one event: nothing else may arrive.
	select {
	case extra := <-session.Events():
		t.Fatalf("unexpected second event: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSession_SocketReconnectsAfterFault(t *testing.T) {
	var connects int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&connects, 1)
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		if n == 1 {
			// Abnormal close: tear the TCP connection down without a
			// close handshake.
			conn.Close()
			return
		}
		defer conn.Close()
		msg := `{"event":"update","payload":"{\"id\":\"2\"}"}`
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	resolver := &fakeResolver{info: &CapabilityInfo{StreamingBaseURL: server.URL}}
	session := socketSession(t, resolver, KindPublic, "")
	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	ev := waitEvent(t, session)
	require.Equal(t, EventUpdate, ev.Type)
	assert.Equal(t, "2", ev.Status.ID)

	assert.GreaterOrEqual(t, atomic.LoadInt64(&connects), int64(2), "a fault must trigger a redial")
	assert.Equal(t, int64(1), atomic.LoadInt64(&resolver.calls),
		"capability discovery runs at most once per session, reconnects included")
}

func TestSession_SocketReconnectDisabledIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn.Close()
	}))
	defer server.Close()

	resolver := &fakeResolver{info: &CapabilityInfo{StreamingBaseURL: server.URL}}
	session, err := NewSession(Config{
		BaseURL:          "https://unused.example",
		AccessToken:      "tok",
		Kind:             KindPublic,
		Resolver:         resolver,
		DisableReconnect: true,
	})
	require.NoError(t, err)

	require.NoError(t, session.Start(context.Background()))
	waitDone(t, session)
	assert.Error(t, session.Err())
}

func TestSession_SocketReconnectExhaustionIsTerminal(t *testing.T) {
	var connects int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&connects, 1)
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn.Close()
	}))

	resolver := &fakeResolver{info: &CapabilityInfo{StreamingBaseURL: server.URL}}
	session := socketSession(t, resolver, KindPublic, "")
	require.NoError(t, session.Start(context.Background()))

	// Refuse all redials from now on.
	server.CloseClientConnections()
	server.Close()

	waitDone(t, session)
	require.Error(t, session.Err())
	assert.Equal(t, int64(1), atomic.LoadInt64(&resolver.calls))
}

func TestSession_SocketDialFailureSurfacesFromStart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	resolver := &fakeResolver{info: &CapabilityInfo{StreamingBaseURL: server.URL}}
	session := socketSession(t, resolver, KindPublic, "")
	err := session.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "websocket dial failed")
}

func TestSession_SocketMalformedEnvelopeDropped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("garbage")))
		msg := `{"event":"delete","payload":"11"}`
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	resolver := &fakeResolver{info: &CapabilityInfo{StreamingBaseURL: server.URL}}
	session := socketSession(t, resolver, KindPublic, "")
	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	ev := waitEvent(t, session)
	assert.Equal(t, int64(11), ev.DeletedID)
	assert.Equal(t, int64(1), session.Dropped())
}
