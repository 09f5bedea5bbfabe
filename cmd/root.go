// Package cmd wires the CLI commands. All application logic lives in
// internal packages; this package only parses flags and dispatches.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "nexusflow",
	Short: "NexusFlow - retrieval-augmented code planning backend",
	Long: `NexusFlow indexes a project's source files into a vector store,
answers semantic search queries against the index, and generates
structured implementation plans grounded in the retrieved code.

Run "nexusflow serve" to start the HTTP API server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
