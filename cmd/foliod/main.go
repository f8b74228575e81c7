// Foliod mirrors a GitHub account's repositories into a local cache,
// enriches each repository with an LLM-generated summary, and serves
// the result over HTTP.
//
// Configuration comes from environment variables (optionally a .env
// file) layered over an optional YAML config file. See internal/config
// for the full list.
//
// Usage:
//
//	# Start with defaults
//	GITHUB_TOKEN=... OPENROUTER_API_KEY=... foliod
//
//	# Override the listen address
//	foliod --host 127.0.0.1 --port 8080
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/folio/internal/cache"
	"github.com/fyrsmithlabs/folio/internal/config"
	"github.com/fyrsmithlabs/folio/internal/corpus"
	"github.com/fyrsmithlabs/folio/internal/enrich"
	"github.com/fyrsmithlabs/folio/internal/github"
	"github.com/fyrsmithlabs/folio/internal/logging"
	"github.com/fyrsmithlabs/folio/internal/refresh"
	"github.com/fyrsmithlabs/folio/internal/server"
	"github.com/fyrsmithlabs/folio/internal/site"
	"github.com/fyrsmithlabs/folio/internal/summarize"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	flagConfig string
	flagHost   string
	flagPort   int
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:          "foliod",
	Short:        "Personal portfolio backend",
	Long:         "foliod caches GitHub repository metadata and READMEs, generates short LLM summaries in the background, and serves everything to a frontend.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Start the HTTP server",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("foliod\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "listen host (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "listen port (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command) error {
	// A local .env is a convenience for development; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = flagHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = flagPort
	}
	if flagDebug {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.New(cfg.Cache.Dir, logger)
	if err != nil {
		return err
	}
	store.LoadSummaries()

	gh, err := github.NewClient(ctx, cfg.GitHub, logger)
	if err != nil {
		return err
	}
	summarizer, err := summarize.New(cfg.OpenRouter, logger)
	if err != nil {
		return err
	}
	builder := corpus.NewBuilder(gh, cfg.Corpus.TokenLimit, logger)
	worker := enrich.NewWorker(store, summarizer, builder, gh, logger)
	orch := refresh.New(store, gh, worker, cfg.Cache.TTL.Duration(), logger)

	profile, err := site.LoadProfile(filepath.Join(cfg.Cache.Dir, "profile.yaml"))
	if err != nil {
		return err
	}
	thesis, err := site.LoadThesis(filepath.Join(cfg.Cache.Dir, "thesis.yaml"))
	if err != nil {
		return err
	}

	srv, err := server.NewServer(store, worker, profile, thesis, logger, &server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	if err := orch.LoadOrRefresh(ctx); err != nil {
		return err
	}
	orch.SweepMissing()

	wg.Add(1)
	go func() {
		defer wg.Done()
		orch.RunPeriodic(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}

	stop()
	wg.Wait()

	// Flush state so the next start can adopt it.
	if err := store.Save(); err != nil {
		logger.Warn("failed to flush snapshot", zap.Error(err))
	}
	if err := store.SaveSummaries(); err != nil {
		logger.Warn("failed to flush summaries", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}
