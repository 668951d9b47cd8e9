package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"newsrag/internal/domain"
	"newsrag/internal/port"
)

const noResultsAnswer = "I couldn't find any relevant news articles to answer your question. " +
	"Please try rephrasing your query or asking about a different topic."

const systemPrompt = `You are an expert news analyst and summarizer. Your task is to provide accurate, concise, and well-sourced answers about current events based on the provided news articles.

INSTRUCTIONS:
1. Answer the user's question using ONLY the information provided in the retrieved news articles
2. Provide a comprehensive but concise response (200-400 words)
3. Cite sources by mentioning the news outlet and article title
4. If the retrieved articles don't contain enough information to fully answer the question, state this clearly
5. Focus on factual information and avoid speculation
6. Maintain journalistic objectivity and present multiple perspectives when available

FORMAT YOUR RESPONSE AS:
**Summary:** [Main answer to the question]

**Key Points:**
- [Important detail 1]
- [Important detail 2]
- [Important detail 3]

**Sources:** [List the sources used]`

// fallbackConfidence is reported whenever the backend did not answer.
const fallbackConfidence = 0.5

// SynthesizeUseCase turns a retrieval into a sourced answer. It never fails:
// backend problems degrade to an extractive answer.
type SynthesizeUseCase struct {
	retriever *RetrieveUseCase
	generator port.Generator
	timeout   time.Duration
	logger    *slog.Logger
}

// NewSynthesizeUseCase creates a synthesizer. A nil generator always uses
// the extractive fallback.
func NewSynthesizeUseCase(retriever *RetrieveUseCase, generator port.Generator, timeout time.Duration, logger *slog.Logger) *SynthesizeUseCase {
	return &SynthesizeUseCase{
		retriever: retriever,
		generator: generator,
		timeout:   timeout,
		logger:    logger,
	}
}

// Synthesize answers from an existing retrieval.
func (u *SynthesizeUseCase) Synthesize(ctx context.Context, query string, retrieval *domain.Retrieval) domain.RAGResponse {
	if retrieval == nil || len(retrieval.Documents) == 0 {
		return domain.RAGResponse{
			Query:              query,
			Answer:             noResultsAnswer,
			Sources:            []string{},
			RetrievedDocuments: []domain.RetrievalResult{},
			ConfidenceScore:    0,
			Path:               domain.PathNoResults,
		}
	}

	resp := domain.RAGResponse{
		Query:              query,
		Sources:            retrieval.Sources,
		RetrievedDocuments: retrieval.Documents,
	}

	if u.generator == nil {
		resp.Answer = fallbackAnswer(query, retrieval.Documents)
		resp.ConfidenceScore = fallbackConfidence
		resp.Path = domain.PathFallback
		return resp
	}

	answer, err := u.generate(ctx, query, retrieval.Documents)
	if err != nil {
		u.logger.Warn("generation failed, using extractive answer", "err", err)
		resp.Answer = fallbackAnswer(query, retrieval.Documents)
		resp.ConfidenceScore = fallbackConfidence
		resp.Path = domain.PathFallback
		return resp
	}

	resp.Answer = answer
	resp.ConfidenceScore = min(retrieval.AvgSimilarity*2, 1)
	resp.Path = domain.PathGenerated
	return resp
}

// generate calls the backend. A panicking backend is reported as
// ErrBackend like any other failure.
func (u *SynthesizeUseCase) generate(ctx context.Context, query string, docs []domain.RetrievalResult) (answer string, err error) {
	defer func() {
		if r := recover(); r != nil {
			answer, err = "", fmt.Errorf("%w: generator panicked: %v", domain.ErrBackend, r)
		}
	}()

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	answer, err = u.generator.Generate(ctx, systemPrompt, userPrompt(query, docs))
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%w: empty answer", domain.ErrBackend)
	}
	return answer, nil
}

// Ask retrieves and synthesizes in one step. A retrieval failure becomes a
// zero-confidence response rather than an error.
func (u *SynthesizeUseCase) Ask(ctx context.Context, query string, opts RetrieveOptions) domain.RAGResponse {
	queryID := uuid.NewString()
	logger := u.logger.With("query_id", queryID)
	logger.Info("answering query", "query", truncate(query, 50), "top_k", opts.TopK)

	started := time.Now()
	retrieval, err := u.retriever.Retrieve(ctx, query, opts)
	if err != nil {
		logger.Error("retrieval failed", "err", err)
		return domain.RAGResponse{
			Query:              query,
			Answer:             fmt.Sprintf("I couldn't search the news archive for this question: %v", err),
			Sources:            []string{},
			RetrievedDocuments: []domain.RetrievalResult{},
			ConfidenceScore:    0,
			Path:               domain.PathNoResults,
		}
	}

	resp := u.Synthesize(ctx, query, retrieval)
	logger.Info("query answered",
		"path", resp.Path,
		"documents", len(resp.RetrievedDocuments),
		"confidence", resp.ConfidenceScore,
		"elapsed", time.Since(started))
	return resp
}

func userPrompt(query string, docs []domain.RetrievalResult) string {
	var sb strings.Builder
	sb.WriteString("RETRIEVED NEWS ARTICLES:\n")
	for i, doc := range docs {
		fmt.Fprintf(&sb, "\nArticle %d:\n", i+1)
		fmt.Fprintf(&sb, "Title: %s\n", orDefault(doc.ArticleTitle, "Unknown Title"))
		fmt.Fprintf(&sb, "Source: %s\n", orDefault(doc.Source, "Unknown Source"))
		fmt.Fprintf(&sb, "Content: %s...\n", truncate(doc.Content, 400))
		fmt.Fprintf(&sb, "Similarity Score: %.3f\n\n---\n", doc.SimilarityScore)
	}
	fmt.Fprintf(&sb, "\nUSER QUESTION: %s\n\n", query)
	sb.WriteString("Please provide a comprehensive answer based on the news articles above.")
	return sb.String()
}

// fallbackAnswer builds an extractive answer from the top documents.
func fallbackAnswer(query string, docs []domain.RetrievalResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Summary:** Based on the retrieved news articles, here's what I found regarding '%s':\n\n", query)
	sb.WriteString(truncate(docs[0].Content, 300))
	sb.WriteString("...\n\n**Key Points:**\n")

	for _, doc := range docs[:min(3, len(docs))] {
		title := truncate(orDefault(doc.ArticleTitle, "Unknown Article"), 60)
		fmt.Fprintf(&sb, "- %s... (Source: %s)\n", title, orDefault(doc.Source, "Unknown"))
	}

	var sources []string
	seen := make(map[string]bool)
	for _, doc := range docs {
		s := orDefault(doc.Source, "Unknown")
		if !seen[s] {
			seen[s] = true
			sources = append(sources, s)
		}
	}
	fmt.Fprintf(&sb, "\n**Sources:** %d relevant articles found from %s", len(docs), strings.Join(sources, ", "))
	return sb.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
