package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/abramin/codegraph/internal/config"
	"github.com/abramin/codegraph/internal/telemetry"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config

	shutdownTelemetry func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "codegraph",
	Short: "codegraph - Build a code knowledge graph from exported syntax trees",
	Long: `codegraph turns per-file syntax trees exported by a C/C++ front end
into a knowledge graph of code entities (files, functions, classes, structs,
methods, fields, variables, types) and their relationships.

The graph is written as a flat list of text records ready for a GraphRAG
indexer, persisted to a local SQLite store, and optionally exported to Neo4j.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		tcfg := telemetry.DefaultConfig()
		tcfg.ServiceVersion = version
		tcfg.TraceExporter = cfg.Telemetry.TraceExporter
		tcfg.MetricExporter = cfg.Telemetry.MetricExporter
		tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
		shutdownTelemetry, err = telemetry.Init(cmd.Context(), tcfg)
		if err != nil {
			return fmt.Errorf("failed to init telemetry: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdownTelemetry == nil {
			return nil
		}
		return shutdownTelemetry(context.Background())
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./codegraph.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return cfg
}
