package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiredm/internal/config"
	"github.com/vovakirdan/wiredm/internal/presence"
)

func newPresenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presence",
		Short: "Print the presence state mirrored to redis",
		Long: `Read the online set and last-seen stamps a running gateway mirrors to
redis. Requires redis_addr in the configuration or --redis-addr.`,
		RunE: runPresence,
	}
	cmd.Flags().String("redis-addr", "", "redis address (overrides config)")
	return cmd
}

func runPresence(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, _, err := config.Load(nil, configPath, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.RedisAddr == "" {
		return errors.New("presence mirror is disabled: set redis_addr or --redis-addr")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	snap, err := presence.NewRedisMirror(rdb).Load(ctx)
	if err != nil {
		return err
	}
	printSnapshot(cmd.OutOrStdout(), snap)
	return nil
}

func printSnapshot(out io.Writer, snap presence.Snapshot) {
	fmt.Fprintf(out, "online (%d):\n", len(snap.Online))
	for _, id := range snap.Online {
		fmt.Fprintf(out, "  %s\n", id)
	}

	ids := make([]string, 0, len(snap.LastSeen))
	for id := range snap.LastSeen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fmt.Fprintf(out, "last seen (%d):\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(out, "  %s %s\n", id, snap.LastSeen[id].Format(time.RFC3339))
	}
}
