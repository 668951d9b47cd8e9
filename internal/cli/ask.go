package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"newsrag/internal/domain"
)

var (
	askText      string
	askTopK      int
	askThreshold float64
	askJSON      bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question from the indexed news",
	Long: `Retrieve relevant chunks and synthesize a sourced answer. Without a
generation backend, or when it fails, an extractive answer is returned.

Examples:
  newsrag ask -q "What's new in renewable energy?"
  newsrag ask -q "How did markets react?" -k 5 --json`,
	Args: cobra.NoArgs,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askText, "query", "q", "", "question (required)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of documents (default from config)")
	askCmd.Flags().Float64Var(&askThreshold, "threshold", -1, "minimum similarity (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.MarkFlagRequired("query")
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	resp := a.Synth.Ask(cmd.Context(), askText, retrieveOptions(askTopK, askThreshold))
	if askJSON {
		return printJSON(resp)
	}
	printResponse(resp)
	return nil
}

func printResponse(resp domain.RAGResponse) {
	fmt.Println(resp.Answer)
	fmt.Println()
	fmt.Printf("Confidence: %.2f (%s)\n", resp.ConfidenceScore, resp.Path)
	if len(resp.Sources) > 0 {
		fmt.Println("Sources:")
		for _, s := range resp.Sources {
			fmt.Printf("  - %s\n", s)
		}
	}
	fmt.Println(strings.Repeat("-", 70))
}
