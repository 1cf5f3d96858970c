package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/ingest"
)

var indexCmd = &cobra.Command{
	Use:   "index [path...]",
	Short: "Index files or directories into the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIndex,
}

var indexRemoveCmd = &cobra.Command{
	Use:   "remove [path...]",
	Short: "Remove previously indexed files from the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIndexRemove,
}

func init() {
	indexCmd.AddCommand(indexRemoveCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndex(_ *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	total := ingest.Result{}
	for _, path := range args {
		info, statErr := os.Stat(path)
		if statErr != nil {
			return fmt.Errorf("stat %s: %w", path, statErr)
		}

		if info.IsDir() {
			result, dirErr := a.Ingester.AddDirectory(ctx, path)
			if dirErr != nil {
				return fmt.Errorf("index directory %s: %w", path, dirErr)
			}
			total.FilesAdded += result.FilesAdded
			total.FilesSkipped += result.FilesSkipped
			total.FilesFailed += result.FilesFailed
			total.ChunksIndexed += result.ChunksIndexed
			total.TotalSize += result.TotalSize
			total.Duration += result.Duration
			continue
		}

		if fileErr := a.Ingester.AddFile(ctx, path); fileErr != nil {
			return fmt.Errorf("index file %s: %w", path, fileErr)
		}
		total.FilesAdded++
		total.TotalSize += info.Size()
	}

	fmt.Printf("Indexed %d file(s), %d chunk(s), %d byte(s)\n",
		total.FilesAdded, total.ChunksIndexed, total.TotalSize)
	if total.FilesSkipped > 0 {
		fmt.Printf("Skipped %d file(s)\n", total.FilesSkipped)
	}
	if total.FilesFailed > 0 {
		fmt.Printf("Failed %d file(s), see log for details\n", total.FilesFailed)
	}
	return nil
}

func runIndexRemove(_ *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	removed := 0
	for _, path := range args {
		n, removeErr := a.Ingester.RemoveDocument(ctx, ingest.DocumentID(path))
		if removeErr != nil {
			return fmt.Errorf("remove %s: %w", path, removeErr)
		}
		if n == 0 {
			fmt.Printf("%s: not indexed\n", path)
			continue
		}
		removed += n
	}

	fmt.Printf("Removed %d chunk(s)\n", removed)
	return nil
}
