package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/searchpreview/internal/search"
)

func TestLocation_QuickView(t *testing.T) {
	loc, err := NewLocation("?search=cat&fulltext=1")
	require.NoError(t, err)

	loc.PushQuickView("Cat food")
	assert.Equal(t, "Cat food", loc.QuickView())
	assert.Equal(t, "?fulltext=1&quickView=Cat+food&search=cat", loc.Search())

	loc.PushQuickView("Dog")
	assert.Equal(t, "Dog", loc.QuickView())

	loc.RemoveQuickView()
	assert.Equal(t, "", loc.QuickView())
	assert.Equal(t, "?fulltext=1&search=cat", loc.Search())

	assert.Equal(t, []string{
		"?fulltext=1&quickView=Cat+food&search=cat",
		"?fulltext=1&quickView=Dog&search=cat",
		"?fulltext=1&search=cat",
	}, loc.History())
}

func TestLocation_InvalidQuery(t *testing.T) {
	_, err := NewLocation("%zz")
	assert.Error(t, err)
}

func TestDocument_Classes(t *testing.T) {
	doc := NewDocument(search.Results{{PrefixedText: "A", Text: "a"}, {PrefixedText: "B", Text: "b"}})

	doc.Open("A")
	assert.True(t, doc.BodyOpen())
	assert.Equal(t, []string{"A"}, doc.OpenRows())

	doc.Close()
	assert.False(t, doc.BodyOpen())
	assert.Empty(t, doc.OpenRows())

	doc.Open("missing")
	assert.True(t, doc.BodyOpen())
	assert.Empty(t, doc.OpenRows())
}

func TestDocument_Snippets(t *testing.T) {
	doc := NewDocument(search.Results{{PrefixedText: "A", Text: "original"}})

	got, ok := doc.Snippet("A")
	require.True(t, ok)
	assert.Equal(t, "original", got)

	doc.SetSnippet("A", "expanded...")
	got, _ = doc.Snippet("A")
	assert.Equal(t, "expanded...", got)

	doc.SetSnippet("A", "")
	got, _ = doc.Snippet("A")
	assert.Equal(t, "expanded...", got)

	doc.SetSnippet("missing", "x")
	_, ok = doc.Snippet("missing")
	assert.False(t, ok)
}
