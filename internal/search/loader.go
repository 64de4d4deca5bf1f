package search

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Page is a results page as stored on disk.
type Page struct {
	Query   string  `json:"query,omitempty" toml:"query,omitempty"`
	Results Results `json:"results" toml:"results"`
}

// LoadResults reads a results page from a .json or .toml file. JSON files
// may hold either a page object or a bare array of results.
func LoadResults(path string) (*Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return ParseTOML(data)
	case ".json", "":
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("unsupported results format %q", filepath.Ext(path))
	}
}

func ParseJSON(data []byte) (*Page, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var results Results
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return nil, fmt.Errorf("decoding results: %w", err)
		}
		return validate(&Page{Results: results})
	}

	var page Page
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("decoding results page: %w", err)
	}
	return validate(&page)
}

func ParseTOML(data []byte) (*Page, error) {
	var page Page
	if err := toml.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decoding results page: %w", err)
	}
	return validate(&page)
}

func validate(page *Page) (*Page, error) {
	seen := make(map[string]int, len(page.Results))
	for i, r := range page.Results {
		if r.PrefixedText == "" {
			return nil, fmt.Errorf("result %d has no title", i)
		}
		if j, dup := seen[r.PrefixedText]; dup {
			return nil, fmt.Errorf("result %d duplicates title %q of result %d", i, r.PrefixedText, j)
		}
		seen[r.PrefixedText] = i
	}
	return page, nil
}
