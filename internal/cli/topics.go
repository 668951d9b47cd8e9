package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"newsrag/internal/usecase"
)

var (
	topicsJSON    bool
	summarizeType string
)

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "Summarize trending topics that have matching articles",
	Args:  cobra.NoArgs,
	RunE:  runTrending,
}

var briefingCmd = &cobra.Command{
	Use:   "briefing [topic...]",
	Short: "Summarize the latest developments for a list of topics",
	Long: `Answer "What are the latest developments in <topic>?" for each topic.
Without arguments a default set of business and technology topics is used.

Examples:
  newsrag briefing
  newsrag briefing "electric vehicles" "semiconductors"`,
	RunE: runBriefing,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize <topic>",
	Short: "Summarize one topic with a query template",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

func init() {
	rootCmd.AddCommand(trendingCmd, briefingCmd, summarizeCmd)
	for _, c := range []*cobra.Command{trendingCmd, briefingCmd, summarizeCmd} {
		c.Flags().BoolVar(&topicsJSON, "json", false, "output as JSON")
	}
	summarizeCmd.Flags().StringVarP(&summarizeType, "type", "t", "latest_developments",
		"query type: "+strings.Join(usecase.QueryTypes(), ", "))
}

func runTrending(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	topics := a.Trending.Trending(cmd.Context())
	if topicsJSON {
		return printJSON(topics)
	}
	if len(topics) == 0 {
		fmt.Println("No trending topics with matching articles.")
		return nil
	}

	for i, t := range topics {
		fmt.Printf("%d. %s (%d articles, confidence %.2f)\n", i+1, t.Topic, t.ArticleCount, t.Confidence)
		fmt.Printf("   %s\n", strings.ReplaceAll(t.Summary, "\n", " "))
		for _, s := range t.Sources {
			fmt.Printf("   - %s\n", s)
		}
		fmt.Println()
	}
	return nil
}

func runBriefing(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	items := a.Trending.Briefing(cmd.Context(), args)
	if topicsJSON {
		return printJSON(items)
	}
	for _, item := range items {
		fmt.Printf("## %s\n\n", item.Topic)
		printResponse(item.Response)
		fmt.Println()
	}
	return nil
}

func runSummarize(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	resp := a.Trending.SummarizeTopic(cmd.Context(), args[0], summarizeType)
	if topicsJSON {
		return printJSON(resp)
	}
	printResponse(resp)
	return nil
}
