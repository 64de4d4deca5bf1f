// Package query fetches the page information shown in the preview of the
// selected search result.
package query

import (
	"context"
	"sync"

	"github.com/pders01/searchpreview/internal/api"
	"github.com/pders01/searchpreview/internal/debuglog"
	"github.com/pders01/searchpreview/internal/search"
	"github.com/pders01/searchpreview/internal/snippet"
	"github.com/pders01/searchpreview/internal/status"
	"github.com/pders01/searchpreview/internal/task"
)

// Fetcher loads page information for a title.
type Fetcher interface {
	PageInfo(ctx context.Context, title, field string) (*api.Page, error)
}

// MediaFetcher starts the follow-up media fetch for a page.
type MediaFetcher interface {
	Fetch(page *api.Page, isMobile bool) *task.Handle
}

// SnippetSink replaces the snippet rendered for a result row.
type SnippetSink interface {
	SetSnippet(title, html string)
}

// PageInfo is the page information of the selected result. Empty values mean
// absent.
type PageInfo struct {
	Thumbnail       *api.Thumbnail
	Description     string
	Sections        []string
	ExpandedSnippet string
}

type Option func(*Coordinator)

func WithExpander(e snippet.Expander) Option {
	return func(c *Coordinator) { c.expander = e }
}

// WithTimer measures each fetch from its start until its page information
// is done.
func WithTimer(t *status.Timer) Option {
	return func(c *Coordinator) { c.timer = t }
}

// Coordinator runs at most one relevant page-info fetch at a time. A fetch
// that was aborted or superseded never changes PageInfo, the query status or
// the result rows.
type Coordinator struct {
	fetcher  Fetcher
	status   *status.Tracker
	media    MediaFetcher
	rows     SnippetSink
	expander snippet.Expander
	timer    *status.Timer

	mu         sync.Mutex
	info       PageInfo
	generation uint64
	current    *task.Handle

	log *debuglog.FieldLogger
}

// New creates a Coordinator. media and rows may be nil.
func New(fetcher Fetcher, tracker *status.Tracker, media MediaFetcher, rows SnippetSink, opts ...Option) *Coordinator {
	c := &Coordinator{
		fetcher:  fetcher,
		status:   tracker,
		media:    media,
		rows:     rows,
		expander: snippet.Default(),
		info:     PageInfo{Sections: []string{}},
		log:      debuglog.WithFields(map[string]any{"component": "query"}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch loads the page information of results[selectedIndex]. It does
// nothing and returns nil without a title, a selection or results.
func (c *Coordinator) Fetch(title string, selectedIndex int, results search.Results, isMobile bool) *task.Handle {
	result, ok := results.At(selectedIndex)
	if title == "" || !ok {
		return nil
	}
	field := result.Field()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.current.Cancel()
	c.generation++
	gen := c.generation
	c.status.SetStatus(status.Query, status.InProgress)
	c.timer.Start()

	c.current = task.Start(context.Background(), func(ctx context.Context) {
		page, err := c.fetcher.PageInfo(ctx, title, field)
		c.complete(gen, title, result, field, isMobile, page, err)
	})
	return c.current
}

func (c *Coordinator) complete(gen uint64, title string, result search.Result, field string, isMobile bool, page *api.Page, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.log.With("title", title)
	if gen != c.generation {
		log.Debugf("discarding stale page info")
		return
	}

	if err != nil {
		log.Warnf("fetching page info: %v", err)
		c.info = PageInfo{Sections: []string{}}
		c.status.SetStatus(status.Query, status.Error)
		c.timer.Reset()
		return
	}
	if page == nil {
		c.status.SetStatus(status.Query, status.Done)
		c.timer.Complete()
		return
	}

	thumbnail := page.Thumbnail.Clone()
	if thumbnail != nil && page.PageImage != "" {
		thumbnail.Alt = page.PageImage
	}

	if c.media != nil {
		c.media.Fetch(page, isMobile)
	}

	expanded, atStart := c.expand(page, result, field, isMobile)
	if isMobile && c.rows != nil && expanded != "" {
		c.rows.SetSnippet(title, expanded)
	}

	c.info = PageInfo{
		Thumbnail:       thumbnail,
		Description:     description(page, atStart && field == snippet.DefaultField, isMobile),
		Sections:        page.Sections(),
		ExpandedSnippet: expanded,
	}
	c.status.SetStatus(status.Query, status.Done)
	c.timer.Complete()
	log.Debugf("page info done")
}

// expand grows the result snippet using the full text of field. List fields
// use the first entry containing the raw snippet.
func (c *Coordinator) expand(page *api.Page, result search.Result, field string, isMobile bool) (string, bool) {
	value, ok := page.Field(field)
	if !ok {
		return "", false
	}
	content, ok := value.Content(snippet.StripHighlights(result.Text))
	if !ok {
		return "", false
	}
	exp, ok := c.expander.Expand(result.Text, content, isMobile)
	if !ok {
		return "", false
	}
	return exp.Text, exp.AtStart
}

// description picks the short description, then the linked data
// description, then on desktop the page extract unless the expanded snippet
// already shows the beginning of the text.
func description(page *api.Page, snippetAtStart, isMobile bool) string {
	if d := page.ShortDescription(); d != "" {
		return d
	}
	if d := page.TermDescription(); d != "" {
		return d
	}
	if !isMobile && !snippetAtStart && page.Extract != "" {
		return string(page.Extract)
	}
	return ""
}

// SetThumbnail seeds the thumbnail before the fetch completes.
func (c *Coordinator) SetThumbnail(t *api.Thumbnail) {
	c.mu.Lock()
	c.info.Thumbnail = t.Clone()
	c.mu.Unlock()
}

// Info returns a copy of the current page information.
func (c *Coordinator) Info() PageInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := c.info
	info.Thumbnail = c.info.Thumbnail.Clone()
	info.Sections = append([]string{}, c.info.Sections...)
	return info
}

// Reset restores the original snippet of current on mobile and clears the
// page information. The original snippet is rendered with a trailing
// ellipsis.
func (c *Coordinator) Reset(current *search.Result, isMobile bool) {
	if current != nil && isMobile && c.rows != nil && current.Text != "" {
		c.rows.SetSnippet(current.PrefixedText, current.Text+c.ellipsis())
	}
	c.mu.Lock()
	c.info = PageInfo{Sections: []string{}}
	c.mu.Unlock()
}

func (c *Coordinator) ellipsis() string {
	if c.expander.Ellipsis == "" {
		return snippet.DefaultEllipsis
	}
	return c.expander.Ellipsis
}

// Abort cancels the in-flight fetch, if any. Its response is discarded.
func (c *Coordinator) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.current.Cancel()
	c.current = nil
	c.timer.Reset()
}

// Wait blocks until the latest fetch has settled.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	h := c.current
	c.mu.Unlock()
	return h.Wait(ctx)
}
