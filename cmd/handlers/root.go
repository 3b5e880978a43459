// Package handlers wires the newsroom pipeline stages into cobra
// subcommands. Each command loads configuration, builds only the
// components its stage needs, and exits 1 on unrecoverable errors.
package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"newsroom/internal/cache"
	"newsroom/internal/config"
	"newsroom/internal/logger"
	"newsroom/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "newsroom",
	Short: "Local-news ingestion, extraction, and summarization pipeline",
	Long: `newsroom fetches local publications on a schedule, extracts canonical
articles from cached pages, summarizes them with an LLM, and keeps the
analytics and search indexes in step.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadSettings reads configuration and initializes logging; configuration
// errors are fatal.
func loadSettings() (*config.Settings, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(settings.LogLevel, settings.LogPretty)
	return settings, nil
}

// openStore connects to the article store.
func openStore(ctx context.Context, settings *config.Settings) (*store.Store, error) {
	st, err := store.New(ctx, settings.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// openCache connects to the object cache.
func openCache(ctx context.Context, settings *config.Settings) (*cache.Cache, error) {
	return cache.New(ctx, settings.MinioEndpoint, settings.MinioAccessKey,
		settings.MinioSecretKey, settings.MinioBucket)
}
