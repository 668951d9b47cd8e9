//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"syscall/js"

	"newsrag/internal/adapter/chunker"
	"newsrag/internal/adapter/cleaner"
	"newsrag/internal/adapter/embedding"
	"newsrag/internal/adapter/fs"
	"newsrag/internal/adapter/index"
	"newsrag/internal/adapter/langdetect"
	"newsrag/internal/adapter/memstore"
	"newsrag/internal/adapter/store"
	"newsrag/internal/domain"
	"newsrag/internal/logger"
	"newsrag/internal/usecase"
)

const dimension = 512

var (
	st       *memstore.MemoryStore
	ingestUC *usecase.IngestUseCase
	embedUC  *usecase.EmbedUseCase
	indexUC  *usecase.IndexUseCase
	synthUC  *usecase.SynthesizeUseCase
)

// reset wires a fresh in-memory pipeline. Answers are always extractive.
func reset() {
	log := logger.Nop()
	st = memstore.NewMemoryStore(store.Options{Dimension: dimension})
	embedder := embedding.NewHashEmbedder(dimension)
	idx, _ := index.New(index.Options{Kind: index.KindExact, Dimension: dimension}, log)

	ingestUC = usecase.NewIngestUseCase(st, fs.NewWalker(nil, nil), cleaner.NewTextCleaner(),
		langdetect.NewDetector([]string{"en", "de", "fr", "es"}, "en", log),
		chunker.NewSentenceChunker(512, 50, 100), 50, log)
	embedUC = usecase.NewEmbedUseCase(st, embedder, 32, 1, log)
	indexUC = usecase.NewIndexUseCase(st, idx, log)
	retrieveUC := usecase.NewRetrieveUseCase(embedding.NewCachedEmbedder(embedder, 64, 0), idx, 0, log)
	synthUC = usecase.NewSynthesizeUseCase(retrieveUC, nil, 0, log)
}

func main() {
	reset()
	c := make(chan struct{})

	js.Global().Set("newsIndex", js.FuncOf(indexArticles))
	js.Global().Set("newsAsk", js.FuncOf(ask))
	js.Global().Set("newsClear", js.FuncOf(clearIndex))
	js.Global().Set("newsStats", js.FuncOf(getStats))

	<-c
}

// indexArticles takes a JSON array of articles and makes them searchable.
func indexArticles(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: newsIndex(articlesJSON)")
	}

	var articles []domain.Article
	if err := json.Unmarshal([]byte(args[0].String()), &articles); err != nil {
		return makeError("invalid articles: " + err.Error())
	}

	ctx := context.Background()
	for _, a := range articles {
		if a.ID == "" {
			a.ID = fs.ArticleID(a)
		}
		a.Processed = false
		if err := st.PutArticle(ctx, a); err != nil {
			return makeError("storing article failed: " + err.Error())
		}
	}

	processed, err := ingestUC.Process(ctx)
	if err != nil {
		return makeError("processing failed: " + err.Error())
	}
	if _, err := embedUC.Run(ctx, nil); err != nil {
		return makeError("embedding failed: " + err.Error())
	}
	n, err := indexUC.Rebuild(ctx)
	if err != nil {
		return makeError("indexing failed: " + err.Error())
	}

	return makeResult(map[string]interface{}{
		"success":   true,
		"processed": processed,
		"vectors":   n,
	})
}

func ask(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: newsAsk(query, [topK])")
	}

	query := args[0].String()
	topK := 3
	if len(args) > 1 {
		topK = args[1].Int()
	}

	resp := synthUC.Ask(context.Background(), query, usecase.RetrieveOptions{
		TopK:           topK,
		ScoreThreshold: 0.2,
		IncludeSources: true,
	})
	data, err := json.Marshal(resp)
	if err != nil {
		return makeError(err.Error())
	}
	return string(data)
}

func clearIndex(this js.Value, args []js.Value) interface{} {
	reset()
	return makeResult(map[string]interface{}{
		"success": true,
	})
}

func getStats(this js.Value, args []js.Value) interface{} {
	stats, _ := st.CorpusStats(context.Background())
	return makeResult(map[string]interface{}{
		"articles":  stats.Articles,
		"processed": stats.Processed,
		"chunks":    stats.Chunks,
	})
}

func makeError(msg string) interface{} {
	result, _ := json.Marshal(map[string]interface{}{
		"error": msg,
	})
	return string(result)
}

func makeResult(data map[string]interface{}) interface{} {
	result, _ := json.Marshal(data)
	return string(result)
}
