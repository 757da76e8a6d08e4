// Switchboard is a unified front door for multiple LLM providers: one API
// with routing, resilience, context persistence, and cost accounting.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "switchboard",
		Short:         "Unified LLM front door",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/switchboard.toml", "path to config file")

	root.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newToolsCmd(),
		newConfigCmd(),
		newMobileKeyCmd(),
		newMigrationsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
