package snippet

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hl(s string) string {
	return `<span class="searchmatch">` + s + `</span>`
}

func TestExpand_WindowReachesStart(t *testing.T) {
	full := "a b c d e"
	got, ok := Expander{Extra: 4}.Expand("c", full, false)
	require.True(t, ok)

	assert.Equal(t, "a b c d e", got.Text)
	assert.True(t, got.AtStart)
}

func TestExpand_InteriorWindowGetsBothEllipses(t *testing.T) {
	got, ok := Expander{Extra: 1}.Expand("c", "a b c d e", false)
	require.True(t, ok)

	assert.Equal(t, "...c...", got.Text)
	assert.False(t, got.AtStart)
}

func TestExpand_MobileNeverExpandsBackward(t *testing.T) {
	got, ok := Expander{Extra: 1}.Expand("c", "a b c d e", true)
	require.True(t, ok)

	assert.Equal(t, "c...", got.Text)
	assert.False(t, got.AtStart)
}

func TestExpand_TrimsPartialWords(t *testing.T) {
	full := "alpha bravo charlie delta echo foxtrot golf hotel india"

	got, ok := Expander{Extra: 10}.Expand("delta", full, false)
	require.True(t, ok)
	assert.Equal(t, "...charlie delta echo...", got.Text)

	got, ok = Expander{Extra: 10}.Expand("delta", full, true)
	require.True(t, ok)
	assert.Equal(t, "delta echo...", got.Text)
}

func TestExpand_NothingToExpand(t *testing.T) {
	tests := []struct {
		name    string
		excerpt string
		full    string
	}{
		{"empty excerpt", "", "some text"},
		{"markup only", hl(""), "some text"},
		{"not found", "missing", "some text"},
		{"same as source", "some " + hl("text"), "some text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Expand(tt.excerpt, tt.full, false)
			assert.False(t, ok)
		})
	}
}

func TestExpand_ReappliesHighlights(t *testing.T) {
	full := "A Cat walked. The category of the cat sat on the mat, cat."
	excerpt := "the " + hl("cat") + " sat"

	got, ok := Expand(excerpt, full, false)
	require.True(t, ok)

	want := "A " + hl("Cat") + " walked. The category of the " + hl("cat") + " sat on the mat, " + hl("cat") + "."
	assert.Equal(t, want, got.Text)
	assert.True(t, got.AtStart)
	assert.NotContains(t, got.Text, hl("cat")+"egory")
}

func TestExpand_NonLatinHighlights(t *testing.T) {
	full := "Москва — столица России. Москва большая."
	excerpt := hl("Москва") + " большая"

	got, ok := Expand(excerpt, full, false)
	require.True(t, ok)

	want := hl("Москва") + " — столица России. " + hl("Москва") + " большая."
	assert.Equal(t, want, got.Text)
}

func TestExpand_ScriptWithoutSpaces(t *testing.T) {
	full := strings.Repeat("日本語の文章です", 30) + "猫が好き" + strings.Repeat("東京は大きな都市です", 30)
	excerpt := hl("猫") + "が好き"

	got, ok := Expand(excerpt, full, false)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(got.Text, "..."))
	require.True(t, strings.HasSuffix(got.Text, "..."))
	inner := StripHighlights(got.Text[3 : len(got.Text)-3])
	assert.Equal(t, 101+4+101, utf8.RuneCountInString(inner))
	assert.Contains(t, full, inner)
	assert.Contains(t, inner, "猫が好き")
	assert.False(t, got.AtStart)

	got, ok = Expand(excerpt, full, true)
	require.True(t, ok)
	inner = strings.TrimSuffix(StripHighlights(got.Text), "...")
	assert.Equal(t, 4+101, utf8.RuneCountInString(inner))
	assert.True(t, strings.HasPrefix(inner, "猫が好き"))
}

func TestExpand_TrimsAtBoundaryNextToPhrase(t *testing.T) {
	got, ok := Expander{Extra: 3}.Expand("x", "abcd x efgh", false)
	require.True(t, ok)
	assert.Equal(t, "...x...", got.Text)

	// a word running into the phrase has no boundary to trim at
	got, ok = Expander{Extra: 3}.Expand("x", "abcdx efgh", false)
	require.True(t, ok)
	assert.Equal(t, "abcdx...", got.Text)
	assert.True(t, got.AtStart)
}

func TestExpand_DefaultWindowAddsEllipses(t *testing.T) {
	filler := ""
	for i := 0; i < 30; i++ {
		filler += "lorem ipsum "
	}
	full := filler + "needle in the haystack " + filler

	got, ok := Expand(hl("needle"), full, false)
	require.True(t, ok)

	assert.True(t, len(got.Text) > len("needle"))
	assert.Contains(t, got.Text, hl("needle"))
	assert.Equal(t, "...", got.Text[:3])
	assert.Equal(t, "...", got.Text[len(got.Text)-3:])
	assert.False(t, got.AtStart)
}

func TestHighlights(t *testing.T) {
	s := hl("Cat") + " and " + hl("cat") + " chased the " + hl("Dog")
	assert.Equal(t, []string{"cat", "dog"}, Highlights(s))
	assert.Empty(t, Highlights("plain text"))
}

func TestHighlight_IgnoresPartialMatches(t *testing.T) {
	got := Highlight("category cat, concat (cat)", []string{"cat"})
	assert.Equal(t, "category "+hl("cat")+", concat ("+hl("cat")+")", got)
}

func TestHighlight_DoesNotMatchInsideMarkup(t *testing.T) {
	got := Highlight("span and class", []string{"span", "class"})
	assert.Equal(t, hl("span")+" and "+hl("class"), got)
}

func TestStripHighlights(t *testing.T) {
	assert.Equal(t, "the cat sat", StripHighlights("the "+hl("cat")+" sat"))
}

func TestFieldFromSnippetField(t *testing.T) {
	tests := map[string]string{
		"":                  "text",
		"text":              "text",
		"source_text.plain": "source_text",
		"auxiliary_text":    "auxiliary_text",
		".plain":            "text",
	}
	for in, want := range tests {
		assert.Equal(t, want, FieldFromSnippetField(in), "field %q", in)
	}
}
