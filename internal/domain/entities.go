package domain

// Article is an already-acquired news article. Acquisition itself happens
// outside this module; articles arrive as files or store records.
type Article struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	URL         string `json:"url" yaml:"url"`
	Content     string `json:"content" yaml:"content"`
	Summary     string `json:"summary,omitempty" yaml:"summary"`
	Source      string `json:"source" yaml:"source"`
	PublishedAt string `json:"published_at" yaml:"published_at"`
	Language    string `json:"language,omitempty" yaml:"language"`
	Processed   bool   `json:"processed,omitempty" yaml:"-"`
}

// FullText is the text that gets cleaned and chunked for an article.
func (a Article) FullText() string {
	if a.Summary != "" {
		return a.Title + "\n\n" + a.Content + "\n\n" + a.Summary
	}
	return a.Title + "\n\n" + a.Content
}

// Chunk is a bounded contiguous passage of an article, the unit of retrieval.
// StartPos and EndPos are byte offsets into the text that was chunked.
type Chunk struct {
	ID                 string  `json:"chunk_id"`
	ArticleID          string  `json:"article_id"`
	Content            string  `json:"content"`
	Index              int     `json:"chunk_index"`
	StartPos           int     `json:"start_pos"`
	EndPos             int     `json:"end_pos"`
	WordCount          int     `json:"word_count"`
	CharCount          int     `json:"char_count"`
	LanguageCode       string  `json:"language_code,omitempty"`
	LanguageConfidence float64 `json:"language_confidence"`
}

// Embedding is the current vector for a chunk.
type Embedding struct {
	ChunkID string
	Vector  []float32
	Dim     int
	ModelID string
}

// IndexEntry is the display metadata stored positionally parallel to the
// vectors of an index snapshot.
type IndexEntry struct {
	ChunkID     string `json:"chunk_id"`
	ArticleID   string `json:"article_id,omitempty"`
	Content     string `json:"content"`
	ChunkIndex  int    `json:"chunk_index"`
	Title       string `json:"article_title,omitempty"`
	Source      string `json:"source,omitempty"`
	URL         string `json:"url,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// RetrievalResult is one ranked hit. Rank is 1-based.
type RetrievalResult struct {
	Rank            int     `json:"rank"`
	ChunkID         string  `json:"chunk_id"`
	ArticleID       string  `json:"article_id,omitempty"`
	Content         string  `json:"content"`
	SimilarityScore float64 `json:"similarity_score"`
	Distance        float64 `json:"distance"`
	ArticleTitle    string  `json:"article_title"`
	Source          string  `json:"source"`
	URL             string  `json:"url,omitempty"`
	PublishedAt     string  `json:"published_at,omitempty"`
}

// Retrieval is the assembled output of a retrieval pass.
type Retrieval struct {
	Query          string            `json:"query"`
	Documents      []RetrievalResult `json:"retrieved_documents"`
	Sources        []string          `json:"sources"`
	ContextText    string            `json:"context_text"`
	TotalResults   int               `json:"total_results"`
	AvgSimilarity  float64           `json:"avg_similarity"`
	TopKRequested  int               `json:"top_k_requested"`
	ScoreThreshold float64           `json:"score_threshold"`
}

// SynthesisPath records which branch produced an answer.
type SynthesisPath string

const (
	PathNoResults SynthesisPath = "no_results"
	PathGenerated SynthesisPath = "generated"
	PathFallback  SynthesisPath = "fallback"
)

// RAGResponse is the final answer handed to the serving layer.
type RAGResponse struct {
	Query              string            `json:"query"`
	Answer             string            `json:"answer"`
	Sources            []string          `json:"sources"`
	RetrievedDocuments []RetrievalResult `json:"retrieved_documents"`
	ConfidenceScore    float64           `json:"confidence_score"`
	Path               SynthesisPath     `json:"path"`
}

type TrendingTopic struct {
	Topic        string   `json:"topic"`
	Summary      string   `json:"summary"`
	ArticleCount int      `json:"article_count"`
	Confidence   float64  `json:"confidence"`
	Sources      []string `json:"sources"`
}

type EmbeddingStats struct {
	Total    int            `json:"total_embeddings"`
	PerModel map[string]int `json:"model_distribution"`
	Dims     []int          `json:"embedding_dimensions"`
}

type IndexStats struct {
	Count         int    `json:"total_vectors"`
	Dim           int    `json:"embedding_dimension"`
	MetadataCount int    `json:"metadata_count"`
	Kind          string `json:"index_type"`
}

type CorpusStats struct {
	Articles  int `json:"articles"`
	Processed int `json:"processed"`
	Chunks    int `json:"chunks"`
}
