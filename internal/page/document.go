package page

import (
	"sort"
	"sync"

	"github.com/pders01/searchpreview/internal/search"
)

const (
	// OpenBodyClass is set on the body while a preview is open.
	OpenBodyClass = "search-preview-open"
	// OpenRowClass marks the result row whose preview is open.
	OpenRowClass = "searchresult-with-quickview--open"
)

type row struct {
	snippet string
	classes map[string]bool
}

// Document holds the body classes and the rendered result rows, keyed by
// result title.
type Document struct {
	mu   sync.Mutex
	body map[string]bool
	rows map[string]*row
}

func NewDocument(results search.Results) *Document {
	d := &Document{
		body: make(map[string]bool),
		rows: make(map[string]*row, len(results)),
	}
	for _, r := range results {
		d.rows[r.PrefixedText] = &row{snippet: r.Text, classes: make(map[string]bool)}
	}
	return d
}

// Open marks the body and the row of title as open. An unknown row only
// affects the body.
func (d *Document) Open(title string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.body[OpenBodyClass] = true
	if r, ok := d.rows[title]; ok {
		r.classes[OpenRowClass] = true
	}
}

// Close removes the open markers from the body and every row.
func (d *Document) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.body, OpenBodyClass)
	for _, r := range d.rows {
		delete(r.classes, OpenRowClass)
	}
}

// SetSnippet replaces the rendered snippet of a row. Rows that do not exist
// are left alone.
func (d *Document) SetSnippet(title, html string) {
	if title == "" || html == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.rows[title]; ok {
		r.snippet = html
	}
}

func (d *Document) Snippet(title string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rows[title]
	if !ok {
		return "", false
	}
	return r.snippet, true
}

// BodyOpen reports whether the body carries OpenBodyClass.
func (d *Document) BodyOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.body[OpenBodyClass]
}

// OpenRows returns the titles of rows marked open, sorted.
func (d *Document) OpenRows() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var open []string
	for title, r := range d.rows {
		if r.classes[OpenRowClass] {
			open = append(open, title)
		}
	}
	sort.Strings(open)
	return open
}
