// Package search holds the search results a results page was rendered with.
package search

import (
	"github.com/pders01/searchpreview/internal/api"
	"github.com/pders01/searchpreview/internal/snippet"
)

// Result is one search hit as rendered on the results page.
type Result struct {
	// PrefixedText is the namespaced page title and identifies the result.
	PrefixedText string `json:"prefixedText" toml:"prefixed_text"`
	// Text is the snippet, with highlight markup.
	Text string `json:"text" toml:"text"`
	// SnippetField is the search field the snippet was taken from.
	SnippetField string         `json:"snippetField,omitempty" toml:"snippet_field,omitempty"`
	Thumbnail    *api.Thumbnail `json:"thumbnail,omitempty" toml:"thumbnail,omitempty"`
}

// Field returns the base field name to request the full text of.
func (r Result) Field() string {
	return snippet.FieldFromSnippetField(r.SnippetField)
}

// Results is the ordered result list of a results page.
type Results []Result

// IndexOf returns the index of the result titled title, or -1.
func (rs Results) IndexOf(title string) int {
	for i, r := range rs {
		if r.PrefixedText == title {
			return i
		}
	}
	return -1
}

// At returns the result at i.
func (rs Results) At(i int) (Result, bool) {
	if i < 0 || i >= len(rs) {
		return Result{}, false
	}
	return rs[i], true
}
