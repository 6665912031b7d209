package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiredm/internal/app"
	"github.com/vovakirdan/wiredm/internal/config"
	wlog "github.com/vovakirdan/wiredm/internal/log"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat gateway",
		RunE:  runServe,
	}

	def := config.Default()
	f := cmd.Flags()
	f.String("addr", def.Addr, "HTTP listen address")
	f.Duration("read-header-timeout", def.ReadHeaderTimeout, "HTTP read header timeout")
	f.Duration("shutdown-timeout", def.ShutdownTimeout, "graceful shutdown timeout")
	f.String("log-level", def.LogLevel, "log level (debug, info, warn, error)")
	f.String("log-format", def.LogFormat, "log format (console, json)")
	f.String("database-driver", def.DatabaseDriver, "database driver (sqlite3, postgres)")
	f.String("database-dsn", def.DatabaseDSN, "database DSN or sqlite file path")
	f.String("jwt-secret", def.JWTSecret, "shared secret for bearer tokens")
	f.Duration("auth-timeout", def.AuthTimeout, "time allowed to authenticate an upgraded socket")
	f.Int("max-text-length", def.MaxTextLength, "maximum message length in characters")
	f.String("redis-addr", "", "redis address for the presence mirror (disabled when empty)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	bootLog := wlog.New("info", "console")
	cfg, resolved, err := config.Load(bootLog, configPath, cmd.Flags())
	if err != nil {
		return err
	}

	logger := wlog.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info().Str("config", resolved).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting wiredm server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
