package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stiffinWanjohi/streampool/internal/app"
	"github.com/stiffinWanjohi/streampool/internal/config"
	"github.com/stiffinWanjohi/streampool/internal/logging"
)

var log = logging.Component("cli")

var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "streampool",
		Short:         "Redis stream consumer pool",
		Long:          "streampool runs a pool of consumers that move messages from a source stream to a target stream, and reports throughput.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to YAML config file (or "+config.ConfigFileEnv+")")

	rootCmd.AddCommand(
		consumersCmd(),
		monitorCmd(),
		publishCmd(),
		allCmd(),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig reads configuration, applies the optional consumer count
// argument and configures logging.
func loadConfig(args []string) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return nil, err
	}
	if len(args) > 0 {
		if cfg, err = cfg.WithConsumers(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "invalid consumer count: %v\n", err)
			return nil, err
		}
	}
	app.InitLogging(cfg)
	return cfg, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "streampool version %s\n", app.Version)
		},
	}
}
