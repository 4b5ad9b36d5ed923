package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dialport/hookbridge/internal/config"
	"github.com/dialport/hookbridge/internal/relay"
	"github.com/dialport/hookbridge/internal/token"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware tags each browser with a stable id so relay logs can
// be correlated across reconnects.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		t, _ := c.Cookie("ct")
		if t == "" {
			t = genClientToken()
			c.SetCookie("ct", t, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", t)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, rs *relay.Server) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions("HookbridgeSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	// Sanitized configuration for the dashboard; secrets never leave here.
	api.GET("/config", func(c *gin.Context) {
		relayURL := "ws://" + c.Request.Host + "/webhook-proxy"
		c.JSON(http.StatusOK, cfg.ForClient(relayURL))
	})

	api.POST("/token", func(c *gin.Context) {
		var req struct {
			DisplayName string          `json:"displayName"`
			Exp         string          `json:"exp"`
			Room        string          `json:"room"`
			Moderator   bool            `json:"moderator"`
			Visitor     bool            `json:"visitor"`
			Permissions map[string]bool `json:"permissions"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		t, err := token.Generate(token.Options{
			DisplayName: req.DisplayName,
			Exp:         req.Exp,
			Room:        req.Room,
			Moderator:   req.Moderator,
			Visitor:     req.Visitor,
			Permissions: req.Permissions,
			KeyID:       cfg.Kid,
			PrivateKey:  cfg.PrivateKey,
		})
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("token generation failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"jwt":     t.JWT,
			"payload": t.Payload,
			"headers": t.Headers,
			"link":    token.ConferenceLink(cfg.Domain, cfg.Tenant, req.Room, t.JWT, nil),
		})
	})

	// The browser cannot attach auth headers on a websocket handshake, so it
	// connects here and the relay dials the upstream with credentials.
	r.GET("/webhook-proxy", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("webhook proxy endpoint hit")
		rs.Handle(ctx, c)
	})

	return r
}
