// Package snippet grows a short highlighted search excerpt into a longer
// excerpt taken from the full source text of the matching field.
package snippet

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// DefaultExtra is how many characters are added on each side of the excerpt.
	DefaultExtra = 100
	// DefaultEllipsis marks text that continues beyond the expanded excerpt.
	DefaultEllipsis = "..."
	// DefaultField is the search field used when a result does not name one.
	DefaultField = "text"

	highlightOpen  = `<span class="searchmatch">`
	highlightClose = `</span>`
)

var highlightPattern = regexp.MustCompile(`<span class="searchmatch">(.+?)</span>`)

// Expansion is the result of growing an excerpt.
type Expansion struct {
	// Text is the expanded excerpt with ellipses and highlight markup.
	Text string
	// AtStart is true when Text begins at the very start of the source text.
	AtStart bool
}

// Expander expands excerpts using a configurable window.
type Expander struct {
	Extra    int
	Ellipsis string
}

// Default returns an Expander using DefaultExtra and DefaultEllipsis.
func Default() Expander {
	return Expander{Extra: DefaultExtra, Ellipsis: DefaultEllipsis}
}

// Expand runs the default Expander.
func Expand(excerpt, fullText string, isMobile bool) (Expansion, bool) {
	return Default().Expand(excerpt, fullText, isMobile)
}

// Expand locates the raw phrase of excerpt inside fullText and grows it by
// e.Extra characters on both sides (forward only on mobile). It reports false
// when there is nothing to expand.
func (e Expander) Expand(excerpt, fullText string, isMobile bool) (Expansion, bool) {
	phrase := StripHighlights(excerpt)
	if phrase == "" || fullText == phrase {
		return Expansion{}, false
	}

	at := strings.Index(fullText, phrase)
	if at < 0 {
		return Expansion{}, false
	}

	extra := e.Extra
	if extra <= 0 {
		extra = DefaultExtra
	}

	// Work on runes so a window edge never lands inside a multi-byte character.
	text := []rune(fullText)
	pos := utf8.RuneCountInString(fullText[:at])
	size := utf8.RuneCountInString(phrase)

	// One character is over-fetched on each side to tell whether the edge
	// character starts or ends a word.
	start := pos
	if !isMobile {
		start = max(0, pos-extra-1)
	}
	end := min(len(text), pos+size+extra+1)

	lead := text[start:pos]
	tail := text[pos+size : end]
	phraseRunes := []rune(phrase)
	if len(lead) > extra {
		lead = lead[trimLead(lead, phraseRunes[0]):]
	}
	if len(tail) > extra {
		tail = tail[:len(tail)-trimTail(tail, phraseRunes[len(phraseRunes)-1])]
	}

	expanded := strings.TrimSpace(string(lead) + phrase + string(tail))
	atStart := strings.HasPrefix(fullText, expanded)

	var b strings.Builder
	if !isMobile && !atStart {
		b.WriteString(e.ellipsis())
	}
	b.WriteString(expanded)
	if !strings.HasSuffix(fullText, expanded) {
		b.WriteString(e.ellipsis())
	}

	return Expansion{
		Text:    Highlight(b.String(), Highlights(excerpt)),
		AtStart: atStart,
	}, true
}

func (e Expander) ellipsis() string {
	if e.Ellipsis == "" {
		return DefaultEllipsis
	}
	return e.Ellipsis
}

// trimLead returns how many leading runes belong to a partial word: the
// shortest prefix, with the spaces after it, that ends on a word boundary.
// next is the rune following lead. Without any boundary, as in scripts
// written without spaces, nothing is trimmed.
func trimLead(lead []rune, next rune) int {
	at := func(q int) rune {
		if q == len(lead) {
			return next
		}
		return lead[q]
	}
	for i := 1; i <= len(lead); i++ {
		k := i
		for k < len(lead) && unicode.IsSpace(lead[k]) {
			k++
		}
		for q := k; q >= i; q-- {
			if isBoundary(lead[q-1], at(q)) {
				return q
			}
		}
	}
	return 0
}

// trimTail returns how many trailing runes belong to a partial word: all
// runes after the last word boundary. prev is the rune preceding tail.
// Without any boundary nothing is trimmed.
func trimTail(tail []rune, prev rune) int {
	for p := len(tail) - 1; p >= 0; p-- {
		before := prev
		if p > 0 {
			before = tail[p-1]
		}
		if isBoundary(before, tail[p]) {
			return len(tail) - p
		}
	}
	return 0
}

func isBoundary(a, b rune) bool {
	return isWord(a) != isWord(b)
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// isSeparator reports whether r may delimit a highlighted term. Letters of
// any script are never separators, unlike an ASCII \b boundary.
func isSeparator(r rune) bool {
	return unicode.In(r, unicode.P, unicode.Z, unicode.C, unicode.S)
}

// StripHighlights removes highlight markup and keeps the highlighted text.
func StripHighlights(s string) string {
	return highlightPattern.ReplaceAllString(s, "$1")
}

// Highlights returns the distinct lower-cased terms highlighted in s, in
// order of first appearance.
func Highlights(s string) []string {
	lower := cases.Lower(language.Und)
	seen := make(map[string]bool)
	var terms []string
	for _, m := range highlightPattern.FindAllStringSubmatch(s, -1) {
		term := lower.String(m[1])
		if seen[term] {
			continue
		}
		seen[term] = true
		terms = append(terms, term)
	}
	return terms
}

type span struct {
	start, end int
}

// Highlight wraps every whole-word, case-insensitive occurrence of terms in
// s with highlight markup.
func Highlight(s string, terms []string) string {
	var spans []span
	for _, term := range terms {
		if term == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(term))
		if err != nil {
			continue
		}
		for _, loc := range re.FindAllStringIndex(s, -1) {
			if bounded(s, loc[0], loc[1]) {
				spans = append(spans, span{start: loc[0], end: loc[1]})
			}
		}
	}
	if len(spans) == 0 {
		return s
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start == spans[j].start {
			return spans[i].end > spans[j].end
		}
		return spans[i].start < spans[j].start
	})

	var b strings.Builder
	last := 0
	for _, sp := range spans {
		if sp.start < last {
			continue
		}
		b.WriteString(s[last:sp.start])
		b.WriteString(highlightOpen)
		b.WriteString(s[sp.start:sp.end])
		b.WriteString(highlightClose)
		last = sp.end
	}
	b.WriteString(s[last:])
	return b.String()
}

func bounded(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if !isSeparator(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if !isSeparator(r) {
			return false
		}
	}
	return true
}

// FieldFromSnippetField returns the base search field a snippet came from,
// dropping sub-field suffixes such as ".plain".
func FieldFromSnippetField(field string) string {
	base, _, _ := strings.Cut(field, ".")
	if base == "" {
		return DefaultField
	}
	return base
}
