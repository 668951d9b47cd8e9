package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"newsrag/internal/adapter/langdetect"
	"newsrag/internal/domain"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus, embedding and index statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
}

type statsOutput struct {
	Corpus     domain.CorpusStats    `json:"corpus"`
	Embeddings domain.EmbeddingStats `json:"embeddings"`
	Index      domain.IndexStats     `json:"index"`
	Languages  languageOutput        `json:"languages"`
}

type languageOutput struct {
	Default  string   `json:"default"`
	Detected []string `json:"detected"`
}

// configuredLanguages names the detector's languages. An empty list means
// the detector considers every language it knows.
func configuredLanguages(defaultCode string, codes []string) languageOutput {
	out := languageOutput{Default: langdetect.LanguageName(defaultCode), Detected: []string{}}
	for _, c := range codes {
		out.Detected = append(out.Detected, langdetect.LanguageName(c))
	}
	return out
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	var out statsOutput

	out.Corpus, err = a.Store.CorpusStats(ctx)
	if err != nil {
		return err
	}
	out.Embeddings, err = a.Store.Stats(ctx)
	if err != nil {
		return err
	}
	if err := a.LoadIndex(); err != nil && !errors.Is(err, domain.ErrPersistence) {
		return err
	}
	out.Index = a.Index.Stats()
	out.Languages = configuredLanguages(a.Config.Language.Default, a.Config.Language.Languages)

	if statsJSON {
		return printJSON(out)
	}

	fmt.Printf("Corpus:\n")
	fmt.Printf("  Articles:   %d (%d processed)\n", out.Corpus.Articles, out.Corpus.Processed)
	fmt.Printf("  Chunks:     %d\n", out.Corpus.Chunks)
	fmt.Printf("\nEmbeddings:\n")
	fmt.Printf("  Total:      %d\n", out.Embeddings.Total)
	models := make([]string, 0, len(out.Embeddings.PerModel))
	for m := range out.Embeddings.PerModel {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		fmt.Printf("  %-10s  %d\n", m+":", out.Embeddings.PerModel[m])
	}
	fmt.Printf("  Dimensions: %v\n", out.Embeddings.Dims)
	fmt.Printf("\nIndex:\n")
	fmt.Printf("  Type:       %s\n", out.Index.Kind)
	fmt.Printf("  Vectors:    %d\n", out.Index.Count)
	fmt.Printf("  Metadata:   %d\n", out.Index.MetadataCount)
	fmt.Printf("  Dimension:  %d\n", out.Index.Dim)
	fmt.Printf("\nLanguages:\n")
	fmt.Printf("  Default:    %s\n", out.Languages.Default)
	if len(out.Languages.Detected) == 0 {
		fmt.Printf("  Detected:   all supported\n")
	} else {
		fmt.Printf("  Detected:   %s\n", strings.Join(out.Languages.Detected, ", "))
	}
	return nil
}
