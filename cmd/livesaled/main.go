package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	ConfigPath string
}

func newRootCommand(logger *log.Logger) *cobra.Command {
	opts := &rootOptions{}

	serve := newServeCommand(opts, logger)
	cmd := &cobra.Command{
		Use:   "livesaled",
		Short: "Live sale claim allocator",
		Long:  "Turns live-stream comments into first-come-first-served claims on numbered inventory slots.",
		// Running the bare binary starts the server.
		RunE:          serve.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml" // Default path for local development
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", defaultPath, "path to the YAML config file")

	cmd.AddCommand(serve)
	cmd.AddCommand(newMigrateCommand(opts, logger))
	cmd.AddCommand(newParseCommand())
	return cmd
}

func main() {
	logger := log.New(os.Stdout, "livesale ", log.LstdFlags)

	if err := newRootCommand(logger).Execute(); err != nil {
		logger.Fatalf("%v", err)
	}
}
