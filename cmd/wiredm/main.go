package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wiredm",
		Short: "Presence-aware direct messaging gateway",
		Long: `wiredm runs a two-party chat gateway over WebSocket with presence,
delivery receipts and per-user message deletion.`,
		SilenceUsage: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringP("config", "c", "", "config file path (default is ./config.yaml or $WIREDM_CONFIG_DEFAULT_PATH)")

	root.AddCommand(newServeCmd(), newTokenCmd(), newChatCmd(), newPresenceCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
