package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the vector index from stored embeddings",
	Long: `Rebuild the vector index from every stored embedding and write the
index.vec / index.meta.json pair. The index kind (exact or hnsw) comes from
the config file.

Examples:
  newsrag index
  newsrag index --config prod.yaml`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	started := time.Now()
	n, err := a.Indexer.Rebuild(cmd.Context())
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	stats := a.Index.Stats()
	fmt.Printf("Index rebuilt in %s:\n", formatDuration(time.Since(started)))
	fmt.Printf("  Vectors:   %d\n", n)
	fmt.Printf("  Dimension: %d\n", stats.Dim)
	fmt.Printf("  Type:      %s\n", stats.Kind)
	if n == 0 {
		fmt.Println("\nThe index is empty. Run 'newsrag ingest' and 'newsrag embed' first.")
	}
	fmt.Printf("\nIndex stored at: %s\n", GetConfig().IndexDir(GetRootDir()))
	return nil
}
