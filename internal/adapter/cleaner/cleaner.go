package cleaner

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	htmlTagPattern   = regexp.MustCompile(`<[^>]+>`)
	urlPattern       = regexp.MustCompile(`https?://\S+`)
	emailPattern     = regexp.MustCompile(`\S+@\S+`)
	bylinePattern    = regexp.MustCompile(`(?m)^By\s+[A-Za-z\s]+?\s*[-–]\s*`)
	timestampPattern = regexp.MustCompile(`\b\d{1,2}:\d{2}\s*(?:AM|PM|am|pm)`)
	copyrightPattern = regexp.MustCompile(`(?m)©.*?\d{4}.*$`)
	whitespace       = regexp.MustCompile(`\s+`)
)

// TextCleaner normalizes raw article text for chunking.
type TextCleaner struct{}

func NewTextCleaner() *TextCleaner {
	return &TextCleaner{}
}

// Clean decodes entities, strips markup and news boilerplate, normalizes
// Unicode (NFKC) and collapses whitespace. Clean(Clean(x)) == Clean(x).
func (c *TextCleaner) Clean(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	// Stripping one pattern can expose another (an entity decoding into a
	// tag), so passes repeat until nothing changes. After the first pass a
	// changing pass only decodes entities or removes text.
	out := cleanOnce(text)
	for {
		next := cleanOnce(out)
		if next == out {
			return out
		}
		out = next
	}
}

func cleanOnce(text string) string {
	text = html.UnescapeString(text)

	text = htmlTagPattern.ReplaceAllString(text, " ")

	text = urlPattern.ReplaceAllString(text, " ")
	text = emailPattern.ReplaceAllString(text, " ")

	// Boilerplate patterns are line-anchored, so they run before whitespace
	// is collapsed.
	text = bylinePattern.ReplaceAllString(text, "")
	text = timestampPattern.ReplaceAllString(text, "")
	text = copyrightPattern.ReplaceAllString(text, "")

	text = norm.NFKC.String(text)

	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
