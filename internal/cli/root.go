// Package cli implements the authctl command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	jsonOutput bool
	verbose    bool

	stdout io.Writer = os.Stdout
)

var rootCmd = &cobra.Command{
	Use:   "authctl",
	Short: "Session and authorization client for the church API",
	Long: `authctl signs in against the church API, keeps the bearer token in a
local credential database and exposes the session, role and church selection
operations of the client library.

Configuration is read from an optional YAML file and AUTHCLIENT_* environment
variables.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log requests and state changes")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(passwordCmd)
	rootCmd.AddCommand(rolesCmd)
	rootCmd.AddCommand(churchesCmd)
	rootCmd.AddCommand(mockServerCmd)
}

func printf(format string, args ...any) {
	fmt.Fprintf(stdout, format, args...)
}
