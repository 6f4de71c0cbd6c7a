package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "weather-dashboard",
		Short:         "Weather dashboard API server and lookup tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config-dir", "", "directory containing config/{ENV_NAME}.yaml (default: working directory)")
	root.AddCommand(serveCommand(), lookupCommand())
	return root
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
