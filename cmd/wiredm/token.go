package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiredm/internal/auth"
	"github.com/vovakirdan/wiredm/internal/config"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with the configured secret",
		Long: `Issue a bearer token for local testing. Production tokens come from
the identity provider that shares the gateway's secret.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			user, _ := cmd.Flags().GetString("user")
			name, _ := cmd.Flags().GetString("name")

			cfg, _, err := config.Load(nil, configPath, nil)
			if err != nil {
				return err
			}
			token, err := auth.GenerateToken(&auth.JWTConfig{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				TTL:      cfg.JWTTTL,
			}, user, name)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("user", "", "user id to put in the token subject")
	cmd.Flags().String("name", "", "display name claim")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
