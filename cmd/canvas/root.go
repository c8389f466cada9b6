package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bert-systems/canvas/internal/cli"
	"github.com/bert-systems/canvas/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "canvas",
	Short:         "Creator Canvas is a node-graph engine for creative generation pipelines",
	Long:          `Canvas wires story, fashion and moodboard generators into a typed graph, validates it and runs each node as a remote generation job.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringP("board", "b", "", "Board seed file to load into the session")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("board") {
		cfg.Board, _ = cmd.Flags().GetString("board")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format, _ = cmd.Flags().GetString("log-format")
	}
	return cfg, cfg.Validate()
}

// openBoard builds an offline session holding the board named by --board.
func openBoard(cmd *cobra.Command) (*cli.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Board == "" {
		return nil, fmt.Errorf("no board given, use --board or set CANVAS_BOARD")
	}
	// Offline commands never reach remote services or shared stores.
	cfg.Redis = config.RedisConfig{}
	cfg.SQLite = config.SQLiteConfig{}
	return cli.NewApp(cmd.Context(), cfg, cli.Options{Simulate: true, LogOutput: os.Stderr})
}

func closeApp(app *cli.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Close(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "close:", err)
	}
}
