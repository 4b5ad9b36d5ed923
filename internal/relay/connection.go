package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dialport/hookbridge/internal/domain"
	"github.com/dialport/hookbridge/internal/metrics"
	"github.com/dialport/hookbridge/internal/wire"
)

// writeWait bounds a single write to either peer.
const writeWait = 10 * time.Second

// Connection is one live bridge: a browser socket on one side, the
// authenticated upstream socket on the other. Neither side outlives the
// other. Every frame passes through exactly one filtering step.
type Connection struct {
	id         string
	conference domain.RoomName
	fqn        domain.FQN

	server  *Server
	browser *websocket.Conn
	remote  *websocket.Conn
}

func newConnection(s *Server, browser *websocket.Conn, conference domain.RoomName) *Connection {
	return &Connection{
		id:         clientID(),
		conference: conference,
		fqn:        domain.NewFQN(s.tenant, conference),
		server:     s,
		browser:    browser,
	}
}

// run walks the connection through dns-resolving, dialing-remote and bridged.
// DNS and dial failures are terminal and surface to the browser as typed
// proxy-error frames; this layer never retries.
func (c *Connection) run(ctx context.Context) {
	target, err := c.targetURL()
	if err != nil {
		c.sendControl(c.browser, wire.NewProxyError(string(c.conference), err.Error()))
		metrics.BridgesTotal.WithLabelValues("dial_error").Inc()
		_ = c.browser.Close()
		return
	}

	if err := c.resolve(ctx, target); err != nil {
		log.Error().Err(err).Str("module", "relay").Str("client", c.id).Msg("dns resolution failed")
		c.sendControl(c.browser, wire.NewProxyError(string(c.conference), fmt.Sprintf("DNS resolution failed: %s", err.Error())))
		metrics.BridgesTotal.WithLabelValues("dns_error").Inc()
		_ = c.browser.Close()
		return
	}

	remote, err := c.dial(target)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Str("client", c.id).Str("conference", string(c.conference)).Msg("remote connection error")
		c.sendControl(c.browser, wire.NewProxyError(string(c.conference), err.Error()))
		metrics.BridgesTotal.WithLabelValues("dial_error").Inc()
		metrics.DialFailures.Inc()
		_ = c.browser.Close()
		return
	}
	c.remote = remote

	log.Info().Str("module", "relay").Str("client", c.id).Str("conference", string(c.conference)).Msg("connected to remote webhook endpoint")
	c.sendControl(c.browser, wire.NewProxyConnected(string(c.conference)))

	metrics.BridgesTotal.WithLabelValues("bridged").Inc()
	metrics.BridgesActive.Inc()
	defer metrics.BridgesActive.Dec()

	// Browser-side close tears down the remote and vice versa.
	go func() {
		c.browserToRemote()
		_ = c.remote.Close()
	}()
	c.remoteToBrowser()
}

// targetURL is the upstream URL with tenant and room routing parameters.
func (c *Connection) targetURL() (*url.URL, error) {
	u, err := url.Parse(c.server.upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("bad upstream url: %w", err)
	}
	q := u.Query()
	q.Set("tenant", string(c.server.tenant))
	q.Set("room", string(c.conference))
	u.RawQuery = q.Encode()
	return u, nil
}

// resolve checks the upstream hostname before dialing so a dead name is
// reported as a DNS failure, not a generic dial error.
func (c *Connection) resolve(ctx context.Context, target *url.URL) error {
	addrs, err := net.DefaultResolver.LookupHost(ctx, target.Hostname())
	if err != nil {
		return err
	}
	log.Debug().Str("module", "relay").Str("client", c.id).Str("host", target.Hostname()).Strs("addrs", addrs).Msg("dns resolved")
	return nil
}

func (c *Connection) dial(target *url.URL) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout:  c.server.handshakeTimeout,
		EnableCompression: false,
	}
	headers := http.Header{}
	headers.Set("Authorization", c.server.sharedSecret)
	headers.Set("User-Agent", userAgent)
	headers.Set("X-Conference", string(c.conference))

	conn, _, err := dialer.Dial(target.String(), headers)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// remoteToBrowser forwards upstream frames, withholding events that belong
// to another conference. The upstream multiplexes several rooms over one
// channel; a mismatched fqn is expected noise, not a fault, so the drop is
// silent. Non-JSON and unidentified frames pass through unconditionally.
func (c *Connection) remoteToBrowser() {
	for {
		msgType, data, err := c.remote.ReadMessage()
		if err != nil {
			c.handleRemoteClose(err)
			return
		}

		shape := wire.Peek(data)
		if shape.HasFQN && shape.FQN != c.fqn.String() {
			log.Debug().
				Str("module", "relay").
				Str("client", c.id).
				Str("expected", c.fqn.String()).
				Str("got", shape.FQN).
				Msg("fqn mismatch, frame withheld")
			metrics.FramesFiltered.Inc()
			continue
		}

		if err := c.write(c.browser, msgType, data); err != nil {
			log.Warn().Err(err).Str("module", "relay").Str("client", c.id).Msg("browser not writable, frame dropped")
			metrics.FramesDropped.WithLabelValues("to_browser").Inc()
			continue
		}
		metrics.FramesForwarded.WithLabelValues("to_browser").Inc()
	}
}

// browserToRemote forwards browser frames upstream. A JSON object carrying
// neither fqn nor eventType is taken for a settings provisioning response
// and gets the routing fqn injected before forwarding.
func (c *Connection) browserToRemote() {
	for {
		msgType, data, err := c.browser.ReadMessage()
		if err != nil {
			c.handleBrowserClose(err)
			return
		}

		if shape := wire.Peek(data); shape.LooksLikeSettingsResponse() {
			injected, injErr := wire.InjectFQN(data, c.fqn.String())
			if injErr == nil {
				log.Debug().Str("module", "relay").Str("client", c.id).Msg("injected fqn into browser response")
				data = injected
			}
		}

		if err := c.write(c.remote, msgType, data); err != nil {
			log.Warn().Err(err).Str("module", "relay").Str("client", c.id).Str("conference", string(c.conference)).Msg("remote not ready, message dropped")
			metrics.FramesDropped.WithLabelValues("to_remote").Inc()
			continue
		}
		metrics.FramesForwarded.WithLabelValues("to_remote").Inc()
	}
}

// handleRemoteClose tells the browser why the upstream went away, then
// closes the browser socket to keep the 1:1 lifetime symmetric.
func (c *Connection) handleRemoteClose(err error) {
	code, reason := websocket.CloseAbnormalClosure, err.Error()
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code, reason = ce.Code, ce.Text
	}
	log.Info().Str("module", "relay").Str("client", c.id).Str("conference", string(c.conference)).Int("code", code).Str("reason", reason).Msg("remote connection closed")

	c.sendControl(c.browser, wire.NewProxyDisconnected(string(c.conference), code, reason))
	_ = c.browser.Close()
}

func (c *Connection) handleBrowserClose(err error) {
	log.Info().Err(err).Str("module", "relay").Str("client", c.id).Str("conference", string(c.conference)).Msg("browser client disconnected")
}

func (c *Connection) sendControl(conn *websocket.Conn, frame wire.Control) {
	if err := c.write(conn, websocket.TextMessage, frame.Encode()); err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("client", c.id).Str("type", frame.Type).Msg("control frame not delivered")
	}
}

func (c *Connection) write(conn *websocket.Conn, msgType int, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(msgType, data)
}
