package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredm/internal/auth"
	"github.com/vovakirdan/wiredm/internal/config"
	"github.com/vovakirdan/wiredm/internal/core"
	"github.com/vovakirdan/wiredm/internal/metrics"
	"github.com/vovakirdan/wiredm/internal/presence"
	"github.com/vovakirdan/wiredm/internal/store"
)

// Gateway is the part of the session gateway the transport drives.
type Gateway interface {
	RegisterClient(ctx context.Context, c *core.Client)
	UnregisterClient(ctx context.Context, c *core.Client)

	History(ctx context.Context, userID, peerID string) ([]*store.Message, error)
	SendMessage(ctx context.Context, senderID, peerID, text, clientID string) (*store.Message, error)
	Conversations(ctx context.Context, userID string) ([]store.Conversation, error)
	ClearForMe(ctx context.Context, userID, peerID string) (int64, error)
	Presence() presence.Snapshot
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type serverOptions struct {
	pinger   Pinger
	gatherer prometheus.Gatherer
	metrics  *metrics.Gateway
}

// ServerOption configures NewServer.
type ServerOption func(*serverOptions)

// WithHealthCheck makes /health ping p.
func WithHealthCheck(p Pinger) ServerOption {
	return func(o *serverOptions) { o.pinger = p }
}

// WithMetrics exposes g on /metrics and counts transport errors on m.
func WithMetrics(g prometheus.Gatherer, m *metrics.Gateway) ServerOption {
	return func(o *serverOptions) {
		o.gatherer = g
		o.metrics = m
	}
}

// NewServer builds the HTTP server: REST API, WebSocket gateway, health and metrics.
func NewServer(hub Gateway, verifier auth.Verifier, cfg *config.Config, logger *zerolog.Logger, opts ...ServerOption) *http.Server {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	limiter := newLimiterPool(cfg.RateLimitRPS, cfg.RateLimitBurst)

	router.GET("/health", healthHandler(o.pinger))
	if o.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})))
	}
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, verifier, cfg, limiter, o.metrics, logger)))

	api := NewAPIHandlers(hub, logger)
	group := router.Group("/api")
	group.Use(AuthMiddleware(verifier, logger), RateLimitMiddleware(limiter))
	{
		group.GET("/messages/:otherUserId", api.History)
		group.POST("/messages", api.Send)
		group.GET("/conversations", api.Conversations)
		group.POST("/chats/clear-for-me", api.ClearForMe)
		group.GET("/presence", api.Presence)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	srv.RegisterOnShutdown(limiter.Close)
	return srv
}

func healthHandler(p Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "database unavailable"})
				return
			}
		}
		c.String(http.StatusOK, "ok")
	}
}
