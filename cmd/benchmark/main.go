package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"newsrag/config"
	"newsrag/internal/adapter/index"
	"newsrag/internal/app"
	"newsrag/internal/domain"
	"newsrag/internal/logger"
	"newsrag/internal/usecase"
)

func main() {
	rootPath := flag.String("root", ".", "Path to the newsrag data root")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run cmd/benchmark/main.go -root ./news -q \"query\"")
		fmt.Println("\nTests:")
		fmt.Println("  1. Embedding backend (model connection, stored vectors)")
		fmt.Println("  2. Exact vs HNSW search (overlap and latency)")
		fmt.Println("  3. Semantic similarity (query vs results)")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*rootPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Nop()
	a, err := app.New(cfg, *rootPath, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx := context.Background()
	stats, err := a.Store.Stats(ctx)
	if err != nil || stats.Total == 0 {
		fmt.Fprintln(os.Stderr, "No embeddings - run 'newsrag embed' first")
		os.Exit(1)
	}

	fmt.Println("NEWS SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Embeddings stored: %d\n", stats.Total)
	fmt.Printf("Model: %s (%s)\n", a.Embedder.ModelName(), cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", a.Embedder.Dimension())
	fmt.Println()

	exact, err := buildIndex(ctx, a, index.KindExact)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Exact index failed: %v\n", err)
		os.Exit(1)
	}
	approx, err := buildIndex(ctx, a, index.KindHNSW)
	if err != nil {
		fmt.Fprintf(os.Stderr, "HNSW index failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	queryVec, err := a.Embedder.Embed(ctx, []string{*query})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedding error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Query embedded: %d dimensions\n\n", len(queryVec[0]))

	start := time.Now()
	results := exact.Search(queryVec[0], *topK, nil)
	exactTime := time.Since(start)

	start = time.Now()
	approxResults := approx.Search(queryVec[0], *topK, nil)
	approxTime := time.Since(start)

	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}

	fmt.Printf("Top %d matches:\n\n", len(results))

	totalScore := 0.0
	for _, r := range results {
		preview := strings.ReplaceAll(r.Content, "\n", " ")
		if len([]rune(preview)) > 150 {
			preview = string([]rune(preview)[:150]) + "..."
		}

		similarity := r.SimilarityScore
		totalScore += similarity

		rating := "LOW"
		if similarity > 0.7 {
			rating = "HIGH"
		} else if similarity > 0.5 {
			rating = "GOOD"
		} else if similarity > 0.3 {
			rating = "OK"
		}

		fmt.Printf("%d. [%s %.3f] %s (%s)\n", r.Rank, rating, similarity, r.ArticleTitle, r.Source)
		fmt.Printf("   %s\n\n", preview)
	}

	avgScore := totalScore / float64(len(results))
	overlap := overlapRatio(results, approxResults)

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", results[0].SimilarityScore)
	fmt.Printf("  HNSW overlap@%d:    %.0f%%\n", *topK, overlap*100)
	fmt.Printf("  Exact search:       %s\n", exactTime)
	fmt.Printf("  HNSW search:        %s\n", approxTime)

	if avgScore > 0.5 {
		fmt.Println("  Status: GOOD - retrieval working well")
	} else if avgScore > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - may need better embeddings or re-embedding")
	}
	if overlap < 0.8 {
		fmt.Println("  HNSW recall is low - consider raising index.hnsw_ef_search")
	}
}

// buildIndex fills an in-memory index of the given kind from the store.
func buildIndex(ctx context.Context, a *app.App, kind string) (*index.Manager, error) {
	m, err := index.New(index.Options{
		Kind:         kind,
		Dimension:    a.Config.Embedding.Dimension,
		HNSWM:        a.Config.Index.HNSWM,
		HNSWEfSearch: a.Config.Index.HNSWEfSearch,
	}, a.Logger)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	n, err := usecase.NewIndexUseCase(a.Store, m, a.Logger).Rebuild(ctx)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Built %s index: %d vectors in %s\n", kind, n, time.Since(start))
	return m, nil
}

func overlapRatio(want, got []domain.RetrievalResult) float64 {
	if len(want) == 0 {
		return 1
	}
	ids := make(map[string]bool, len(got))
	for _, r := range got {
		ids[r.ChunkID] = true
	}
	hits := 0
	for _, r := range want {
		if ids[r.ChunkID] {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}
