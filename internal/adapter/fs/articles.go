package fs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"newsrag/internal/domain"
)

// articleFile accepts both a bare list and {"articles": [...]}.
type articleFile struct {
	Articles []domain.Article `json:"articles" yaml:"articles"`
}

// LoadArticles reads article records from a JSON or YAML file. A file may
// hold a single article, a list, or an object with an "articles" list.
// Articles without an id get a stable one derived from their URL, or from
// title and publication date when there is no URL.
func LoadArticles(path string) ([]domain.Article, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var articles []domain.Article
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		articles, err = decodeJSON(data)
	case ".yaml", ".yml":
		articles, err = decodeYAML(data)
	default:
		return nil, fmt.Errorf("unsupported article file type: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	out := articles[:0]
	for _, a := range articles {
		if strings.TrimSpace(a.Title) == "" && strings.TrimSpace(a.Content) == "" {
			continue
		}
		if a.ID == "" {
			a.ID = ArticleID(a)
		}
		out = append(out, a)
	}
	return out, nil
}

// ArticleID derives a deterministic UUIDv5 for an article.
func ArticleID(a domain.Article) string {
	name := a.URL
	if name == "" {
		name = a.Source + "\x00" + a.Title + "\x00" + a.PublishedAt
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func decodeJSON(data []byte) ([]domain.Article, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var list []domain.Article
		err := json.Unmarshal(trimmed, &list)
		return list, err
	}

	var wrapped articleFile
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Articles != nil {
		return wrapped.Articles, nil
	}

	var single domain.Article
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, err
	}
	return []domain.Article{single}, nil
}

func decodeYAML(data []byte) ([]domain.Article, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	doc := node.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		var list []domain.Article
		err := doc.Decode(&list)
		return list, err
	case yaml.MappingNode:
		var wrapped articleFile
		if err := doc.Decode(&wrapped); err != nil {
			return nil, err
		}
		if wrapped.Articles != nil {
			return wrapped.Articles, nil
		}
		var single domain.Article
		if err := doc.Decode(&single); err != nil {
			return nil, err
		}
		return []domain.Article{single}, nil
	default:
		return nil, fmt.Errorf("unexpected yaml document kind %d", doc.Kind)
	}
}
