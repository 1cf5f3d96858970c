// Package cmd implements the tessera command line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/app"
	"github.com/tessera-ai/tessera/internal/config"
	"github.com/tessera-ai/tessera/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "tessera",
	Short: "Tessera - adaptive retrieval-augmented question answering",
	Long: `Tessera answers questions over your local documents.

Index files with "tessera index", then ask questions with "tessera ask".
Retrieval parameters adapt to each query, and the answer cites the
documents it drew from.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// setupApp loads configuration and assembles the application. The returned
// cleanup must run before process exit to flush traces and close the pool.
func setupApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if closeErr := a.Close(shutdownCtx); closeErr != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %v\n", closeErr)
		}
	}
	return a, cleanup, nil
}
