package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"newsrag/internal/domain"
	"newsrag/internal/usecase"
)

var (
	queryText      string
	queryTopK      int
	queryThreshold float64
	querySource    string
	queryDate      string
	queryJSON      bool
	queryNoSources bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Retrieve the news chunks most similar to a query",
	Long: `Search the vector index and print the ranked chunks with their sources.

Examples:
  newsrag query -q "renewable energy"
  newsrag query -q "interest rates" --source reuters --date 2024-03 --json`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().Float64Var(&queryThreshold, "threshold", -1, "minimum similarity (default from config)")
	queryCmd.Flags().StringVar(&querySource, "source", "", "keep results whose source contains this text")
	queryCmd.Flags().StringVar(&queryDate, "date", "", "keep results whose publication date contains this text")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().BoolVar(&queryNoSources, "no-sources", false, "omit source metadata")
	queryCmd.MarkFlagRequired("query")
}

// retrieveOptions applies the common retrieval flags to the config defaults.
func retrieveOptions(topK int, threshold float64) usecase.RetrieveOptions {
	cfg := GetConfig()
	opts := usecase.RetrieveOptions{
		TopK:           cfg.Retrieve.TopK,
		ScoreThreshold: cfg.Retrieve.ScoreThreshold,
		IncludeSources: true,
	}
	if topK > 0 {
		opts.TopK = topK
	}
	if threshold >= 0 {
		opts.ScoreThreshold = threshold
	}
	return opts
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := retrieveOptions(queryTopK, queryThreshold)
	opts.IncludeSources = !queryNoSources

	var retrieval *domain.Retrieval
	if querySource != "" || queryDate != "" {
		filter := usecase.Filter{Source: querySource, Date: queryDate}
		retrieval, err = a.Retrieve.RetrieveFiltered(cmd.Context(), queryText, filter, opts)
	} else {
		retrieval, err = a.Retrieve.Retrieve(cmd.Context(), queryText, opts)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		return printJSON(retrieval)
	}

	if retrieval.TotalResults == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results for: %s (avg similarity %.3f)\n\n", retrieval.TotalResults, queryText, retrieval.AvgSimilarity)
	for _, r := range retrieval.Documents {
		fmt.Printf("--- [%d] %s - %s (similarity: %.3f) ---\n", r.Rank, r.Source, r.ArticleTitle, r.SimilarityScore)
		if r.URL != "" {
			fmt.Println(r.URL)
		}
		fmt.Println(preview(r.Content, 500))
		fmt.Println()
	}
	return nil
}
