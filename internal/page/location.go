// Package page models the parts of the results page the preview touches:
// the browser location with its history stack and the rendered result rows.
package page

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// QuickViewParam is the query parameter holding the previewed title.
const QuickViewParam = "quickView"

// Location is an in-memory browser location. Every change pushes a new
// history entry, as history.pushState would, without reloading anything.
type Location struct {
	mu      sync.Mutex
	query   url.Values
	history []string
}

// NewLocation starts from the query string of the results page.
func NewLocation(rawQuery string) (*Location, error) {
	q, err := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	if err != nil {
		return nil, fmt.Errorf("parsing query: %w", err)
	}
	return &Location{query: q}, nil
}

// PushQuickView sets the quickView parameter to title.
func (l *Location) PushQuickView(title string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.query.Set(QuickViewParam, title)
	l.pushLocked()
}

// RemoveQuickView deletes the quickView parameter.
func (l *Location) RemoveQuickView() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.query.Del(QuickViewParam)
	l.pushLocked()
}

func (l *Location) pushLocked() {
	l.history = append(l.history, "?"+l.query.Encode())
}

// QuickView returns the previewed title, if any.
func (l *Location) QuickView() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query.Get(QuickViewParam)
}

// Search returns the current query string with its leading "?".
func (l *Location) Search() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return "?" + l.query.Encode()
}

// History returns the pushed query strings, oldest first.
func (l *Location) History() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.history...)
}
