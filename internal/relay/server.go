// Package relay bridges unauthenticated browser websockets to the remote
// authenticated webhook-events endpoint, one upstream connection per browser,
// multiplexed by conference.
package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dialport/hookbridge/internal/domain"
)

// userAgent identifies the relay on the upstream handshake.
const userAgent = "hookbridge-relay/1.0"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server terminates browser websocket upgrades and runs one bridge per
// connection. It holds the credentials browsers cannot present themselves.
type Server struct {
	upstreamURL      string
	sharedSecret     string
	tenant           domain.Tenant
	handshakeTimeout time.Duration
}

func NewServer(upstreamURL, sharedSecret string, tenant domain.Tenant, handshakeTimeout time.Duration) *Server {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &Server{
		upstreamURL:      upstreamURL,
		sharedSecret:     sharedSecret,
		tenant:           tenant,
		handshakeTimeout: handshakeTimeout,
	}
}

// Handle upgrades the inbound request and owns the bridge end-to-end. The
// conference comes from the query string; a missing value falls back to the
// sentinel room so the connection still gets typed error frames.
func (s *Server) Handle(ctx context.Context, c *gin.Context) {
	// Dashboards connect with ?conference=; the session kit encodes the
	// room in its ?room= connect parameter. Either names the conference.
	conference := domain.RoomName(c.Query("conference"))
	if conference == "" {
		conference = domain.RoomName(c.Query("room"))
	}
	if conference == "" {
		conference = domain.DefaultRoom
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("ws upgrade")
		return
	}

	conn := newConnection(s, ws, conference)
	log.Info().
		Str("module", "relay").
		Str("client", conn.id).
		Str("conference", string(conference)).
		Msg("browser client connected")

	go conn.run(ctx)
}

func clientID() string {
	return uuid.NewString()[:8]
}
