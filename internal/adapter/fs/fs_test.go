package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsrag/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestWalkerIncludesAndExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "top.json"), "[]")
	writeFile(t, filepath.Join(root, "feeds", "bbc.yaml"), "[]")
	writeFile(t, filepath.Join(root, "feeds", "notes.txt"), "")
	writeFile(t, filepath.Join(root, ".newsrag", "config.yaml"), "")

	w := NewWalker([]string{"**/*.json", "**/*.yaml"}, []string{"**/.newsrag/**"})
	files, err := w.Walk(root)
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(root, f.Path)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.ElementsMatch(t, []string{"top.json", "feeds/bbc.yaml"}, rel)
}

func TestWalkerSingleFileRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.json")
	writeFile(t, path, "[]")

	files, err := NewWalker(nil, nil).Walk(path)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, path, files[0].Path)
}

func TestLoadArticlesJSONShapes(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"list", `[{"id":"a1","title":"Solar","content":"Body"},{"title":"Wind","url":"https://x/w","content":"Body"}]`, 2},
		{"wrapped", `{"articles":[{"id":"a1","title":"Solar","content":"Body"}]}`, 1},
		{"single", `{"id":"a1","title":"Solar","content":"Body"}`, 1},
		{"empty record skipped", `[{"id":"a1"},{"id":"a2","title":"Kept"}]`, 1},
		{"empty file", ``, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			writeFile(t, path, tt.content)

			articles, err := LoadArticles(path)
			require.NoError(t, err)
			assert.Len(t, articles, tt.want)
			for _, a := range articles {
				assert.NotEmpty(t, a.ID)
			}
		})
	}
}

func TestLoadArticlesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.yaml")
	writeFile(t, path, `
articles:
  - title: Offshore wind record
    url: https://news.example/wind
    content: Turbines produced more power than ever.
    source: Example Wire
    published_at: "2024-05-02"
`)

	articles, err := LoadArticles(path)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Offshore wind record", articles[0].Title)
	assert.Equal(t, "Example Wire", articles[0].Source)
	assert.Equal(t, "2024-05-02", articles[0].PublishedAt)
	assert.Equal(t, ArticleID(articles[0]), articles[0].ID)
}

func TestLoadArticlesErrors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	writeFile(t, bad, `{"title": `)
	_, err := LoadArticles(bad)
	assert.Error(t, err)

	txt := filepath.Join(dir, "feed.txt")
	writeFile(t, txt, "hello")
	_, err = LoadArticles(txt)
	assert.Error(t, err)
}

func TestArticleIDStable(t *testing.T) {
	a := ArticleID(domain.Article{URL: "https://news.example/a", Title: "A"})
	assert.Equal(t, a, ArticleID(domain.Article{URL: "https://news.example/a", Title: "A, updated"}))
	assert.NotEqual(t, a, ArticleID(domain.Article{URL: "https://news.example/b"}))
	assert.NotEqual(t, ArticleID(domain.Article{Title: "A"}), ArticleID(domain.Article{Title: "B"}))
}
