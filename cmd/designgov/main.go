// Package main implements the designgov CLI: offline plan checks, governed
// runs against the target tool servers, and the read-only audit surfaces.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath overrides ~/.config/designgov/config.yaml
	configPath string
	// version information
	version = "dev"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, ee.msg)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "designgov",
	Short: "Governance engine for agent-driven design model edits",
	Long: `designgov drives agent sessions through plan, dry run, validation,
approval and commit, enforcing per-agent grants, rate limits and the
constitution, and writes every decision to the audit log.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/designgov/config.yaml)")
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
}
