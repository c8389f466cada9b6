package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bert-systems/canvas"
	"github.com/bert-systems/canvas/internal/cli"
	"github.com/bert-systems/canvas/internal/presentation/tui"
	httpAdapter "github.com/bert-systems/canvas/pkg/adapters/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts a canvas session and serves it over HTTP: a JSON API for the board,
live notifications over SSE (/events) and WebSocket (/ws), and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
		}
		simulate, _ := cmd.Flags().GetBool("simulate")
		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
			tui.PrintBanner(os.Stderr, canvas.Version)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := cli.NewApp(ctx, cfg, cli.Options{Simulate: simulate, LogOutput: os.Stderr})
		if err != nil {
			return err
		}
		defer closeApp(app)

		handler, err := httpAdapter.NewHandler(app.Session,
			httpAdapter.WithLogger(app.Logger.With("component", "http")),
			httpAdapter.WithMetrics(app.Metrics.Handler()),
			httpAdapter.WithAllowOrigin(cfg.Server.AllowOrigin),
		)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			app.Logger.Info("canvas server listening", "addr", srv.Addr, "simulate", simulate)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			app.Logger.Info("shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				app.Logger.Warn("graceful shutdown did not complete", "err", err)
				return srv.Close()
			}
			app.Logger.Info("canvas server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
	serveCmd.Flags().Bool("simulate", false, "Run jobs and node sync in-process instead of calling remote services")
	serveCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
}
