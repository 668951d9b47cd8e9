package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"newsrag/internal/domain"
)

var sentenceBoundary = regexp.MustCompile(`[.!?]+\s+`)

// SentenceChunker groups sentences into overlapping passages. Sizes are
// measured in characters.
type SentenceChunker struct {
	chunkSize int
	overlap   int
	minSize   int
}

func NewSentenceChunker(chunkSize, overlap, minSize int) *SentenceChunker {
	if overlap >= chunkSize {
		overlap = 0
	}
	return &SentenceChunker{
		chunkSize: chunkSize,
		overlap:   overlap,
		minSize:   minSize,
	}
}

// sentence is a trimmed span of the source text, including its terminator.
type sentence struct {
	text       string
	start, end int
}

// Chunk splits text into chunks whose StartPos/EndPos are byte offsets into
// text. When text has no usable sentence boundary it falls back to ChunkFixed.
func (c *SentenceChunker) Chunk(text, articleID string) []domain.Chunk {
	if runeLen(strings.TrimSpace(text)) < c.minSize {
		return nil
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	if len(sentences) == 1 && runeLen(sentences[0].text) > c.chunkSize {
		return c.ChunkFixed(text, articleID)
	}

	var chunks []domain.Chunk
	var current []sentence
	currentLen := 0

	for _, s := range sentences {
		added := runeLen(s.text)
		if len(current) > 0 {
			added++
		}

		if len(current) > 0 && currentLen+added > c.chunkSize {
			chunks = c.appendChunk(chunks, current, articleID)
			current = c.overlapTail(current)
			currentLen = joinedLen(current)

			added = runeLen(s.text)
			if len(current) > 0 {
				added++
			}
		}

		current = append(current, s)
		currentLen += added
	}

	if len(current) > 0 {
		chunks = c.appendChunk(chunks, current, articleID)
	}

	return chunks
}

// ChunkFixed slides a chunkSize window with stride chunkSize-overlap.
func (c *SentenceChunker) ChunkFixed(text, articleID string) []domain.Chunk {
	// offsets[i] is the byte offset of rune i; the last entry is len(text).
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	n := len(offsets)
	offsets = append(offsets, len(text))

	stride := c.chunkSize - c.overlap
	if stride <= 0 {
		stride = c.chunkSize
	}

	var chunks []domain.Chunk
	for start := 0; start < n; start += stride {
		end := min(start+c.chunkSize, n)

		lo, hi := offsets[start], offsets[end]
		raw := text[lo:hi]
		content := strings.TrimSpace(raw)
		if runeLen(content) >= c.minSize {
			lo += len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace))
			hi -= len(raw) - len(strings.TrimRightFunc(raw, unicode.IsSpace))
			chunks = append(chunks, newChunk(articleID, len(chunks), content, lo, hi))
		}

		if end == n {
			break
		}
	}

	return chunks
}

func (c *SentenceChunker) appendChunk(chunks []domain.Chunk, group []sentence, articleID string) []domain.Chunk {
	content := joinSentences(group)
	if runeLen(content) < c.minSize {
		return chunks
	}
	return append(chunks, newChunk(articleID, len(chunks), content, group[0].start, group[len(group)-1].end))
}

// overlapTail returns the trailing sentences of group whose combined length
// fits in the overlap budget.
func (c *SentenceChunker) overlapTail(group []sentence) []sentence {
	if c.overlap == 0 {
		return nil
	}

	total := 0
	i := len(group)
	for i > 0 {
		l := runeLen(group[i-1].text)
		if i < len(group) {
			l++
		}
		if total+l > c.overlap {
			break
		}
		total += l
		i--
	}

	tail := make([]sentence, len(group)-i)
	copy(tail, group[i:])
	return tail
}

func splitSentences(text string) []sentence {
	var out []sentence
	pos := 0
	for _, m := range sentenceBoundary.FindAllStringIndex(text, -1) {
		punctEnd := m[0] + len(strings.TrimRightFunc(text[m[0]:m[1]], unicode.IsSpace))
		out = appendSentence(out, text, pos, punctEnd)
		pos = m[1]
	}
	return appendSentence(out, text, pos, len(text))
}

func appendSentence(out []sentence, text string, start, end int) []sentence {
	raw := text[start:end]
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out
	}
	start += len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace))
	return append(out, sentence{text: trimmed, start: start, end: start + len(trimmed)})
}

func joinSentences(group []sentence) string {
	parts := make([]string, len(group))
	for i, s := range group {
		parts[i] = s.text
	}
	return strings.Join(parts, " ")
}

func joinedLen(group []sentence) int {
	if len(group) == 0 {
		return 0
	}
	n := len(group) - 1
	for _, s := range group {
		n += runeLen(s.text)
	}
	return n
}

func newChunk(articleID string, index int, content string, start, end int) domain.Chunk {
	return domain.Chunk{
		ID:        ChunkID(articleID, index),
		ArticleID: articleID,
		Content:   content,
		Index:     index,
		StartPos:  start,
		EndPos:    end,
		WordCount: len(strings.Fields(content)),
		CharCount: runeLen(content),
	}
}

// ChunkID is the deterministic identity of the index-th chunk of an article.
func ChunkID(articleID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", articleID, index)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
