package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredm/internal/auth"
	"github.com/vovakirdan/wiredm/internal/config"
	"github.com/vovakirdan/wiredm/internal/core"
	wlog "github.com/vovakirdan/wiredm/internal/log"
	"github.com/vovakirdan/wiredm/internal/metrics"
	"github.com/vovakirdan/wiredm/internal/presence"
	"github.com/vovakirdan/wiredm/internal/store"
	"github.com/vovakirdan/wiredm/internal/store/sqlstore"
	transporthttp "github.com/vovakirdan/wiredm/internal/transport/http"
)

// App wires together storage, the session gateway and the HTTP transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	redis           *redis.Client
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlstore.New(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.DatabaseDriver).Msg("database initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	var mirror presence.Mirror = presence.NopMirror{}
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rm := presence.NewRedisMirror(a.redis)
		// A fresh process holds no sessions; drop whatever a previous one left online.
		if err := rm.Reset(ctx); err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init presence mirror: %w", err)
		}
		mirror = rm
		logger.Info().Str("addr", cfg.RedisAddr).Msg("presence mirror enabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gatewayMetrics := metrics.NewGateway(reg)

	a.hub = core.NewHub(st,
		core.WithLogger(wlog.Component(logger, "gateway")),
		core.WithMirror(mirror),
		core.WithMetrics(gatewayMetrics),
		core.WithMaxTextLength(cfg.MaxTextLength),
	)

	verifier := auth.NewJWTVerifier(&auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	a.server = transporthttp.NewServer(a.hub, verifier, cfg, wlog.Component(logger, "http"),
		transporthttp.WithHealthCheck(st),
		transporthttp.WithMetrics(reg, gatewayMetrics),
	)
	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopHub()
		a.hub.Shutdown()
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Ending sessions first lets the hijacked WebSocket handlers return.
		a.hub.Shutdown()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
