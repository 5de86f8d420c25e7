// Package cmd implements the CLI commands for the streaming relay gateway.
package cmd

import (
	"fmt"

	"github.com/jmylchreest/streamgate/internal/version"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "streamgate",
	Short:   "IPTV streaming relay gateway",
	Version: version.Short(),
	Long: `streamgate authenticates Xtream-style clients, tracks per-user and
per-provider connection entitlements, and relays or fans out live/VOD
streams to upstream providers - serving a fallback clip whenever a
channel, provider, or user's connection budget is exhausted.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}
