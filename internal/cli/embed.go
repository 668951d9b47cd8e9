package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"newsrag/internal/domain"
)

var embedExtend bool

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Generate embeddings for chunks that have none",
	Long: `Embed every stored chunk that has no vector yet, in parallel batches.
Failed batches are reported and retried on the next run.

Examples:
  newsrag embed
  newsrag embed --extend   # also append the new vectors to the index`,
	Args: cobra.NoArgs,
	RunE: runEmbed,
}

func init() {
	rootCmd.AddCommand(embedCmd)
	embedCmd.Flags().BoolVar(&embedExtend, "extend", false, "append new vectors to the existing index")
}

func runEmbed(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	cfg := GetConfig()
	fmt.Printf("Embedding with %s (%s, dim %d)\n", cfg.Embedding.Model, cfg.Embedding.Provider, a.Embedder.Dimension())

	started := time.Now()
	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if bar == nil {
			bar = newProgressBar(total, "[cyan]Embedding[reset]")
		}
		bar.Set(done)
	}

	result, err := a.Embed.Run(ctx, progress)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	fmt.Printf("\nEmbedding complete in %s:\n", formatDuration(time.Since(started)))
	fmt.Printf("  Pending chunks:  %d\n", result.Pending)
	fmt.Printf("  Embedded:        %d\n", result.Embedded)
	if result.FailedBatches > 0 {
		fmt.Printf("  Failed batches:  %d (run 'newsrag embed' again to retry)\n", result.FailedBatches)
	}

	if !embedExtend || len(result.ChunkIDs) == 0 {
		return nil
	}

	if err := a.LoadIndex(); err != nil {
		if !errors.Is(err, domain.ErrPersistence) {
			return err
		}
		fmt.Println("No usable index found, rebuilding...")
		n, err := a.Indexer.Rebuild(ctx)
		if err != nil {
			return fmt.Errorf("index rebuild failed: %w", err)
		}
		fmt.Printf("  Indexed vectors: %d\n", n)
		return nil
	}

	n, err := a.Indexer.Extend(ctx, result.ChunkIDs)
	if err != nil {
		return fmt.Errorf("index extend failed: %w", err)
	}
	fmt.Printf("  Added to index:  %d\n", n)
	return nil
}
