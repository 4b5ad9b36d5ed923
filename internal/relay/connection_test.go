package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dialport/hookbridge/internal/wire"
)

// fakeUpstream plays the authenticated remote webhook-events endpoint.
type fakeUpstream struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	headers  http.Header
	query    url.Values
	received [][]byte
	conn     *websocket.Conn

	connected chan struct{}
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{connected: make(chan struct{})}
}

func (u *fakeUpstream) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.headers = r.Header.Clone()
		u.query = r.URL.Query()
		u.mu.Unlock()

		conn, err := u.upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		u.mu.Lock()
		u.conn = conn
		u.mu.Unlock()
		close(u.connected)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			u.mu.Lock()
			u.received = append(u.received, data)
			u.mu.Unlock()
		}
	}
}

func (u *fakeUpstream) push(t *testing.T, data string) {
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	require.NotNil(t, conn)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

func (u *fakeUpstream) closeWith(t *testing.T, code int, reason string) {
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	require.NotNil(t, conn)
	deadline := time.Now().Add(time.Second)
	require.NoError(t, conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline))
}

func (u *fakeUpstream) frames() [][]byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([][]byte, len(u.received))
	copy(out, u.received)
	return out
}

// newRelayHarness mounts a relay Server the way the router does and returns
// its base ws:// URL.
func newRelayHarness(t *testing.T, upstreamURL string) string {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	s := NewServer(upstreamURL, "secret123", "tenantA", 2*time.Second)
	r.GET("/webhook-proxy", func(c *gin.Context) {
		s.Handle(context.Background(), c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialBrowser(t *testing.T, rawURL string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

func readControl(t *testing.T, conn *websocket.Conn) wire.Control {
	var c wire.Control
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &c))
	return c
}

func Test_Relay_BridgeHandshake(t *testing.T) {
	upstream := newFakeUpstream()
	upstreamSrv := httptest.NewServer(upstream.handler(t))
	defer upstreamSrv.Close()

	relayURL := newRelayHarness(t, "ws"+strings.TrimPrefix(upstreamSrv.URL, "http"))
	browser := dialBrowser(t, relayURL+"/webhook-proxy?conference=room1")

	ctrl := readControl(t, browser)
	require.Equal(t, wire.TypeProxyConnected, ctrl.Type)
	require.Equal(t, "room1", ctrl.Conference)
	require.NotEmpty(t, ctrl.Timestamp)

	<-upstream.connected
	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	require.Equal(t, "secret123", upstream.headers.Get("Authorization"))
	require.Equal(t, "room1", upstream.headers.Get("X-Conference"))
	require.Equal(t, userAgent, upstream.headers.Get("User-Agent"))
	require.Equal(t, "tenantA", upstream.query.Get("tenant"))
	require.Equal(t, "room1", upstream.query.Get("room"))
}

func Test_Relay_RoomIsolation(t *testing.T) {
	upstream := newFakeUpstream()
	upstreamSrv := httptest.NewServer(upstream.handler(t))
	defer upstreamSrv.Close()

	relayURL := newRelayHarness(t, "ws"+strings.TrimPrefix(upstreamSrv.URL, "http"))
	browser := dialBrowser(t, relayURL+"/webhook-proxy?conference=room1")

	require.Equal(t, wire.TypeProxyConnected, readControl(t, browser).Type)
	<-upstream.connected

	// A frame for another conference is withheld; the next matching frame
	// arrives first on the browser side, proving the drop.
	upstream.push(t, `{"eventType":"PARTICIPANT_JOINED","fqn":"tenantA/OTHER","name":"Mallory"}`)
	upstream.push(t, `{"eventType":"PARTICIPANT_JOINED","fqn":"tenantA/room1","name":"Alice"}`)

	got := readFrame(t, browser)
	require.JSONEq(t, `{"eventType":"PARTICIPANT_JOINED","fqn":"tenantA/room1","name":"Alice"}`, string(got))

	// Frames without routing info pass through unconditionally.
	upstream.push(t, `{"eventType":"ROOM_CREATED"}`)
	require.JSONEq(t, `{"eventType":"ROOM_CREATED"}`, string(readFrame(t, browser)))

	upstream.push(t, `plain text frame`)
	require.Equal(t, `plain text frame`, string(readFrame(t, browser)))
}

func Test_Relay_BrowserToRemote(t *testing.T) {
	upstream := newFakeUpstream()
	upstreamSrv := httptest.NewServer(upstream.handler(t))
	defer upstreamSrv.Close()

	relayURL := newRelayHarness(t, "ws"+strings.TrimPrefix(upstreamSrv.URL, "http"))
	browser := dialBrowser(t, relayURL+"/webhook-proxy?conference=room1")
	require.Equal(t, wire.TypeProxyConnected, readControl(t, browser).Type)
	<-upstream.connected

	// A bare settings response gets the routing fqn injected.
	require.NoError(t, browser.WriteMessage(websocket.TextMessage, []byte(`{"lobbyEnabled":true}`)))
	require.Eventually(t, func() bool { return len(upstream.frames()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.JSONEq(t, `{"lobbyEnabled":true,"fqn":"tenantA/room1"}`, string(upstream.frames()[0]))

	// Tagged frames forward unmodified.
	require.NoError(t, browser.WriteMessage(websocket.TextMessage, []byte(`{"eventType":"CUSTOM","x":1}`)))
	require.Eventually(t, func() bool { return len(upstream.frames()) == 2 }, 2*time.Second, 10*time.Millisecond)
	require.JSONEq(t, `{"eventType":"CUSTOM","x":1}`, string(upstream.frames()[1]))

	// So do non-JSON frames.
	require.NoError(t, browser.WriteMessage(websocket.TextMessage, []byte(`raw`)))
	require.Eventually(t, func() bool { return len(upstream.frames()) == 3 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, `raw`, string(upstream.frames()[2]))
}

func Test_Relay_RemoteClose(t *testing.T) {
	upstream := newFakeUpstream()
	upstreamSrv := httptest.NewServer(upstream.handler(t))
	defer upstreamSrv.Close()

	relayURL := newRelayHarness(t, "ws"+strings.TrimPrefix(upstreamSrv.URL, "http"))
	browser := dialBrowser(t, relayURL+"/webhook-proxy?conference=room1")
	require.Equal(t, wire.TypeProxyConnected, readControl(t, browser).Type)
	<-upstream.connected

	upstream.closeWith(t, websocket.CloseNormalClosure, "rollover")

	ctrl := readControl(t, browser)
	require.Equal(t, wire.TypeProxyDisconnected, ctrl.Type)
	require.Equal(t, websocket.CloseNormalClosure, ctrl.Code)
	require.Equal(t, "rollover", ctrl.Reason)

	// The browser socket does not outlive the remote one.
	require.NoError(t, browser.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := browser.ReadMessage()
	require.Error(t, err)
}

func Test_Relay_DialError(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := "ws" + strings.TrimPrefix(dead.URL, "http")
	dead.Close()

	relayURL := newRelayHarness(t, deadURL)
	browser := dialBrowser(t, relayURL+"/webhook-proxy?conference=room1")

	ctrl := readControl(t, browser)
	require.Equal(t, wire.TypeProxyError, ctrl.Type)
	require.Equal(t, "room1", ctrl.Conference)
	require.NotEmpty(t, ctrl.Error)
}

func Test_Relay_DNSError(t *testing.T) {
	relayURL := newRelayHarness(t, "ws://no-such-host.invalid/ws")
	browser := dialBrowser(t, relayURL+"/webhook-proxy?conference=room1")

	ctrl := readControl(t, browser)
	require.Equal(t, wire.TypeProxyError, ctrl.Type)
	require.Contains(t, ctrl.Error, "DNS resolution failed")
}

func Test_Relay_DefaultConference(t *testing.T) {
	upstream := newFakeUpstream()
	upstreamSrv := httptest.NewServer(upstream.handler(t))
	defer upstreamSrv.Close()

	relayURL := newRelayHarness(t, "ws"+strings.TrimPrefix(upstreamSrv.URL, "http"))
	browser := dialBrowser(t, relayURL+"/webhook-proxy")

	ctrl := readControl(t, browser)
	require.Equal(t, wire.TypeProxyConnected, ctrl.Type)
	require.Equal(t, "unknown", ctrl.Conference)

	<-upstream.connected
	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	require.Equal(t, "unknown", upstream.query.Get("room"))
}
