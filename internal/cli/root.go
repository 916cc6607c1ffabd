// Package cli provides the chartyapctl command-line interface.
package cli

import (
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chartyapctl",
		Short: "chartyap - chart recommendations from the command line",
		Long: `chartyapctl sends a dataset and an optional style image to the analysis
service and writes a Vega-Lite spec (and optionally a PNG) for every chart it
recommends.`,
		Version:       Version + " (" + GitCommit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		NewGenerateCommand(),
		NewValidateCommand(),
	)
	return rootCmd
}
