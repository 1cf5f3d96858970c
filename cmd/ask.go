package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/pipeline"
)

var (
	askStream bool
	askModel  string
	askFolder string
	askTag    string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question over the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print answer tokens as they arrive")
	askCmd.Flags().StringVar(&askModel, "model", "", "override the generation model for this query")
	askCmd.Flags().StringVar(&askFolder, "folder", "", "restrict retrieval to one folder")
	askCmd.Flags().StringVar(&askTag, "tag", "", "restrict retrieval to one tag")
	rootCmd.AddCommand(askCmd)
}

func runAsk(_ *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	req := pipeline.Request{
		Text:            strings.Join(args, " "),
		MetadataFilters: askFilters(),
	}
	if askModel != "" {
		req.Model = "googleai/" + askModel
	}

	var resp pipeline.Response
	if askStream {
		resp, err = a.Pipeline.QueryStream(ctx, req, func(_ context.Context, chunk string) error {
			fmt.Print(chunk)
			return nil
		})
		fmt.Println()
	} else {
		resp, err = a.Pipeline.Query(ctx, req)
		if err == nil {
			fmt.Println(resp.Answer)
		}
	}
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	printSources(resp.Sources)
	return nil
}

func askFilters() map[string]any {
	filters := map[string]any{}
	if askFolder != "" {
		filters["folder"] = askFolder
	}
	if askTag != "" {
		filters["tags"] = []string{askTag}
	}
	if len(filters) == 0 {
		return nil
	}
	return filters
}

func printSources(sources []pipeline.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Println()
	fmt.Println("Sources:")
	for i, s := range sources {
		location := s.Filename
		if s.Folder != "" {
			location = s.Folder + "/" + s.Filename
		}
		fmt.Printf("  [%d] %s (relevance %.2f)\n", i+1, location, s.RelevanceScore)
	}
}
