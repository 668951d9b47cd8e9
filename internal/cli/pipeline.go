package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var pipelineAsk string

var pipelineCmd = &cobra.Command{
	Use:   "pipeline [path]",
	Short: "Ingest, embed and index in one run",
	Long: `Run ingest, embed and index back to back in one process. This is the only
way to use the memory storage driver, since nothing it holds outlives the
process. With --ask, a question is answered at the end.

Examples:
  newsrag pipeline ./articles
  newsrag pipeline ./articles --ask "What's new in renewable energy?"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.Flags().StringVar(&pipelineAsk, "ask", "", "question to answer once the index is built")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	imported, err := a.Ingest.Import(ctx, path)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	processed, err := a.Ingest.Process(ctx)
	if err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}
	embedded, err := a.Embed.Run(ctx, nil)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	n, err := a.Indexer.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("Pipeline complete:\n")
	fmt.Printf("  Articles imported: %d (+%d updated)\n", imported.ArticlesAdded, imported.ArticlesUpdated)
	fmt.Printf("  Articles chunked:  %d\n", processed)
	fmt.Printf("  Chunks embedded:   %d (%d failed batches)\n", embedded.Embedded, embedded.FailedBatches)
	fmt.Printf("  Indexed vectors:   %d\n", n)

	if pipelineAsk != "" {
		fmt.Println()
		printResponse(a.Synth.Ask(ctx, pipelineAsk, a.RetrieveOptions()))
	}
	return nil
}
