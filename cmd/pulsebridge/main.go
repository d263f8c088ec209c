// Package main provides the PulseBridge server entry point. PulseBridge is
// the cloud side of a heart-rate band monitoring setup: it receives telemetry
// from the local uploader, fans the live stream out to viewers, and answers
// questions about the data through a tool-calling chat endpoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pulsebridge/internal/agent"
	"pulsebridge/internal/analytics"
	"pulsebridge/internal/config"
	"pulsebridge/internal/logger"
	"pulsebridge/internal/server"
	"pulsebridge/internal/store"
)

var (
	logLevel string
	logFile  string
	version  = "0.1.0" // set at build time
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pulsebridge",
	Short: "PulseBridge - heart-rate telemetry hub",
	Long: `PulseBridge collects live heart-rate and window-usage telemetry from a
local uploader, keeps bounded in-memory history with periodic persistence,
streams the live feed to any number of viewers, and exposes the history to a
tool-calling chat assistant.`,
	Run: runServe,
}

// serveCmd represents the serve command (explicit version of default behavior)
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the telemetry hub server",
	Run:   runServe,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("PulseBridge v%s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")

	if err := viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-file flag: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg := config.Load()

	if err := logger.Configure(logLevel, logFile, cfg.Debug); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting PulseBridge", "version", version, "addr", cfg.Addr())

	st := store.New(cfg.HRCapacity, cfg.WindowCapacity)
	persistor := store.NewPersistor(st, cfg.DataDir, cfg.SaveInterval, logger.NewStyledLogger("Persistor"))
	persistor.Load()

	tools := analytics.NewService(st).Tools()
	ag := agent.New(cfg.APIKey, cfg.BaseURL, cfg.Model, tools, logger.NewStyledLogger("Agent"))
	if ag.IsConfigured() {
		logger.Info("Reasoning engine configured", "model", cfg.Model)
	} else {
		logger.Warn("Reasoning engine not configured, chat will report the misconfiguration", "env", "PULSE_API_KEY")
	}

	srv := server.New(st, persistor, ag)
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		persistor.Run(ctx)
	}()

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", "error", err)
		}
	}()
	logger.Info("Listening", "addr", cfg.Addr(), "data_dir", cfg.DataDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info("Shutting down")

	// Stop the stream loops first so Shutdown is not held open by
	// long-lived SSE connections, then stop the persistor (final flush).
	srv.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}

	cancel()
	wg.Wait()
	logger.Info("Stopped")
}
