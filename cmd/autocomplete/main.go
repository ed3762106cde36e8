package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

// --- Global Command Variables ---
var (
	configPath  string
	port        string
	storeType   string
	redisURL    string
	environment string

	rootCmd = &cobra.Command{
		Use:   "autocomplete",
		Short: "Replicated prefix autocomplete service",
		Long: `autocomplete serves ranked phrase suggestions from an in-memory radix
tree and keeps every replica in sync through a shared counter store.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Bootstrap from the counter store and serve the HTTP API",
		RunE:  runServe, // Defined in serve.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "autocomplete %s\n", version)
		},
	}
)

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML settings file")
	serveCmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides config and PORT)")
	serveCmd.Flags().StringVar(&storeType, "store", "", "Counter store backend: memory, redis or badger")
	serveCmd.Flags().StringVar(&redisURL, "redis-url", "", "Redis URL for the redis backend")
	serveCmd.Flags().StringVar(&environment, "env", "", "Environment: dev, staging or prod")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
