package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var ingestImportOnly bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Import, clean and chunk news articles",
	Long: `Import article files (JSON or YAML) from a file or directory, then clean,
language-tag and chunk every article that has not been processed yet.

Examples:
  newsrag ingest ./articles
  newsrag ingest feed.json --import-only`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVar(&ingestImportOnly, "import-only", false, "import articles without chunking them")
}

func runIngest(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("Importing articles from %s...\n", path)
	result, err := a.Ingest.Import(ctx, path)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("\nImport complete:\n")
	fmt.Printf("  Files read:        %d\n", result.FilesRead)
	fmt.Printf("  Articles added:    %d\n", result.ArticlesAdded)
	fmt.Printf("  Articles updated:  %d\n", result.ArticlesUpdated)
	fmt.Printf("  Articles unchanged: %d\n", result.ArticlesSkipped)
	if len(result.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	if ingestImportOnly {
		return nil
	}

	processed, err := a.Ingest.Process(ctx)
	if err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}
	chunks, err := a.Store.CountChunks(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\nProcessing complete:\n")
	fmt.Printf("  Articles chunked: %d\n", processed)
	fmt.Printf("  Total chunks:     %d\n", chunks)
	return nil
}
