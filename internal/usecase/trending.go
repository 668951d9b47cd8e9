package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"newsrag/internal/domain"
)

var queryTemplates = map[string]string{
	"latest_developments": "What are the latest developments in %s?",
	"key_updates":         "What are the key updates about %s?",
	"current_status":      "What is the current status of %s?",
	"recent_news":         "What recent news is available about %s?",
	"market_impact":       "How is %s impacting the market or industry?",
	"technology_trends":   "What are the latest technology trends in %s?",
	"business_updates":    "What are the recent business updates regarding %s?",
}

var (
	trendingTopics = []string{
		"artificial intelligence",
		"technology innovation",
		"business trends",
		"market developments",
	}

	briefingTopics = []string{
		"artificial intelligence",
		"technology companies",
		"business developments",
		"market trends",
	}
)

const (
	topicTopK       = 4
	summaryLength   = 200
	trendingSources = 3
)

// TrendingUseCase answers canned topic questions over the corpus.
type TrendingUseCase struct {
	synth     *SynthesizeUseCase
	threshold float64
	logger    *slog.Logger
}

func NewTrendingUseCase(synth *SynthesizeUseCase, threshold float64, logger *slog.Logger) *TrendingUseCase {
	return &TrendingUseCase{
		synth:     synth,
		threshold: threshold,
		logger:    logger,
	}
}

// TopicQuery renders the question for topic. Unknown query types fall back
// to a generic question.
func TopicQuery(topic, queryType string) string {
	if tmpl, ok := queryTemplates[queryType]; ok {
		return fmt.Sprintf(tmpl, topic)
	}
	return fmt.Sprintf("What is the latest news about %s?", topic)
}

// QueryTypes lists the supported topic query types in sorted order.
func QueryTypes() []string {
	types := make([]string, 0, len(queryTemplates))
	for t := range queryTemplates {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (u *TrendingUseCase) SummarizeTopic(ctx context.Context, topic, queryType string) domain.RAGResponse {
	return u.synth.Ask(ctx, TopicQuery(topic, queryType), RetrieveOptions{
		TopK:           topicTopK,
		ScoreThreshold: u.threshold,
		IncludeSources: true,
	})
}

// Trending summarizes the fixed trending topics that have matching
// articles, most confident first.
func (u *TrendingUseCase) Trending(ctx context.Context) []domain.TrendingTopic {
	var topics []domain.TrendingTopic
	for _, topic := range trendingTopics {
		if ctx.Err() != nil {
			break
		}

		resp := u.SummarizeTopic(ctx, topic, "recent_news")
		if len(resp.RetrievedDocuments) == 0 {
			continue
		}

		summary := resp.Answer
		if len([]rune(summary)) > summaryLength {
			summary = truncate(summary, summaryLength) + "..."
		}
		sources := resp.Sources
		if len(sources) > trendingSources {
			sources = sources[:trendingSources]
		}

		topics = append(topics, domain.TrendingTopic{
			Topic:        topic,
			Summary:      summary,
			ArticleCount: len(resp.RetrievedDocuments),
			Confidence:   resp.ConfidenceScore,
			Sources:      sources,
		})
	}

	sort.SliceStable(topics, func(i, j int) bool {
		if topics[i].Confidence != topics[j].Confidence {
			return topics[i].Confidence > topics[j].Confidence
		}
		return topics[i].ArticleCount > topics[j].ArticleCount
	})

	u.logger.Info("trending topics", "topics", len(topics))
	return topics
}

// BriefingItem is one topic of a briefing.
type BriefingItem struct {
	Topic    string             `json:"topic"`
	Response domain.RAGResponse `json:"response"`
}

// Briefing answers the latest developments for each topic, in the given
// order. With no topics a default set is used.
func (u *TrendingUseCase) Briefing(ctx context.Context, topics []string) []BriefingItem {
	if len(topics) == 0 {
		topics = briefingTopics
	}

	items := make([]BriefingItem, 0, len(topics))
	for _, topic := range topics {
		if ctx.Err() != nil {
			u.logger.Warn("briefing interrupted", "err", ctx.Err())
			break
		}
		items = append(items, BriefingItem{
			Topic:    topic,
			Response: u.SummarizeTopic(ctx, topic, "latest_developments"),
		})
	}
	return items
}
