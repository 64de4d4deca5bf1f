// Package selection drives the preview panel: which result is open, the
// fetches and events that follow a change and the mobile transition between
// two previews.
package selection

import (
	"context"
	"fmt"
	"sync"

	"github.com/pders01/searchpreview/internal/api"
	"github.com/pders01/searchpreview/internal/debuglog"
	"github.com/pders01/searchpreview/internal/event"
	"github.com/pders01/searchpreview/internal/media"
	"github.com/pders01/searchpreview/internal/query"
	"github.com/pders01/searchpreview/internal/search"
	"github.com/pders01/searchpreview/internal/status"
	"github.com/pders01/searchpreview/internal/task"
)

const (
	// DesktopDestination is where the panel renders on desktop.
	DesktopDestination = ".searchresults"

	DirectionNext     = "next"
	DirectionPrevious = "previous"
)

// QueryCoordinator is the page-info side of a preview.
type QueryCoordinator interface {
	Fetch(title string, selectedIndex int, results search.Results, isMobile bool) *task.Handle
	SetThumbnail(t *api.Thumbnail)
	Reset(current *search.Result, isMobile bool)
	Abort()
	Info() query.PageInfo
}

// MediaCoordinator is the media side of a preview.
type MediaCoordinator interface {
	Reset()
	Abort()
	Info() media.Info
}

// EventLogger records preview interactions.
type EventLogger interface {
	EnsureSession(ctx context.Context) error
	LogEvent(ctx context.Context, action string, selectedIndex int)
}

// History keeps the previewed title in the page location.
type History interface {
	PushQuickView(title string)
	RemoveQuickView()
	QuickView() string
}

// DOM toggles the open markers of the results page.
type DOM interface {
	Open(row string)
	Close()
}

// Deps are the collaborators of a Controller. Events may be nil.
type Deps struct {
	Query   QueryCoordinator
	Media   MediaCoordinator
	Status  *status.Tracker
	Events  EventLogger
	History History
	DOM     DOM
}

// State is a snapshot of the selection.
type State struct {
	Title string
	// SelectedIndex is -1 without a selection.
	SelectedIndex int
	// NextTitle is the title waiting for the mobile close transition.
	NextTitle string
	// Destination identifies where the panel renders; "" means nowhere.
	Destination    string
	IsMobile       bool
	ComponentReady bool
}

// Current is the selected result merged with its page information and
// media. Page information and media win over the result's own fields.
type Current struct {
	PrefixedText    string
	Text            string
	SnippetField    string
	Thumbnail       *api.Thumbnail
	Description     string
	Sections        []string
	ExpandedSnippet string
	Images          []api.Image
	HasMoreImages   bool
	SearchLink      string
	Links           []api.InterwikiLink
}

type toggleOptions struct {
	element string
	force   bool
}

type ToggleOption func(*toggleOptions)

// WithElement names the result row to mark open. It defaults to the title.
func WithElement(row string) ToggleOption {
	return func(o *toggleOptions) { o.element = row }
}

// WithForce switches previews immediately, even on mobile.
func WithForce() ToggleOption {
	return func(o *toggleOptions) { o.force = true }
}

// Controller owns the selection state of one results page.
type Controller struct {
	deps    Deps
	results search.Results

	mu    sync.Mutex
	state State

	log *debuglog.FieldLogger
}

func New(deps Deps, results search.Results, isMobile bool) *Controller {
	platform := "desktop"
	if isMobile {
		platform = "mobile"
	}
	return &Controller{
		deps:    deps,
		results: results,
		state: State{
			SelectedIndex: -1,
			IsMobile:      isMobile,
		},
		log: debuglog.WithFields(map[string]any{"component": "selection", "platform": platform}),
	}
}

// Init is called once the results page is shown. It extends or starts the
// event session and reopens the preview named in the location, if any.
func (c *Controller) Init(ctx context.Context) error {
	if c.deps.Events != nil {
		if err := c.deps.Events.EnsureSession(ctx); err != nil {
			c.log.Warnf("ensuring session: %v", err)
		}
	}
	title := c.deps.History.QuickView()
	if title == "" {
		return nil
	}
	if c.results.IndexOf(title) < 0 {
		return fmt.Errorf("quick view %q is not a result", title)
	}
	c.ToggleVisibility(ctx, title, WithForce())
	return nil
}

// ToggleVisibility opens the preview of title, or closes it when it is
// already open. On mobile, switching from one preview to another is deferred
// until FinishTransition unless WithForce is given.
func (c *Controller) ToggleVisibility(ctx context.Context, title string, opts ...ToggleOption) {
	var o toggleOptions
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	destination := DesktopDestination
	if c.state.IsMobile {
		selector := rowSelector(title)
		switch {
		case o.force:
			destination = ""
			if title != "" {
				destination = selector
			}
			c.state.NextTitle = ""
		case c.state.Title == "":
			destination = selector
		case c.state.Title != title:
			c.state.NextTitle = title
			c.state.ComponentReady = false
			c.log.Debugf("deferring %q until the transition ends", title)
			return
		}
	}
	c.state.Destination = destination

	c.handleTitleChangeLocked(ctx, title, o.element)
}

// FinishTransition opens the deferred title once the mobile close
// transition has ended.
func (c *Controller) FinishTransition(ctx context.Context) {
	c.mu.Lock()
	next := c.state.NextTitle
	c.mu.Unlock()
	if next == "" {
		return
	}
	c.ToggleVisibility(ctx, next, WithForce())
}

// HandleTitleChange closes the open preview and, when title differs from
// it, opens the preview of title. Selecting the open title again closes it.
func (c *Controller) HandleTitleChange(ctx context.Context, title string, opts ...ToggleOption) {
	var o toggleOptions
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.handleTitleChangeLocked(ctx, title, o.element)
}

func (c *Controller) handleTitleChangeLocked(ctx context.Context, title, element string) {
	if title == "" {
		return
	}

	previous := c.state.Title
	c.closeLocked(ctx)
	if previous == title {
		return
	}

	index := c.results.IndexOf(title)
	if index < 0 {
		c.log.Warnf("no result titled %q", title)
		return
	}
	result := c.results[index]

	c.deps.Query.SetThumbnail(result.Thumbnail)
	c.deps.Query.Fetch(title, index, c.results, c.state.IsMobile)

	c.state.Title = title
	c.state.ComponentReady = true
	c.deps.History.PushQuickView(title)
	if element == "" {
		element = title
	}
	c.deps.DOM.Open(element)
	c.state.SelectedIndex = index

	c.logEvent(ctx, event.ActionOpen, index)
	c.log.With("title", title).Debugf("opened preview at %d", index)
}

// CloseQuickView closes the preview. Closing without an open preview only
// resets state.
func (c *Controller) CloseQuickView(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked(ctx)
}

func (c *Controller) closeLocked(ctx context.Context) {
	if c.state.Title != "" {
		c.logEvent(ctx, event.ActionClose, c.state.SelectedIndex)
	}

	// Abort the query first: once it is aborted it can no longer start a
	// media fetch or write page information.
	c.deps.Query.Abort()
	c.deps.Media.Abort()

	if result, ok := c.results.At(c.state.SelectedIndex); ok {
		c.deps.Query.Reset(&result, c.state.IsMobile)
	} else {
		c.deps.Query.Reset(nil, c.state.IsMobile)
	}

	c.state.Title = ""
	c.state.SelectedIndex = -1
	c.state.ComponentReady = false
	c.deps.History.RemoveQuickView()
	c.deps.Status.Reset()
	c.deps.Media.Reset()
	c.deps.DOM.Close()
}

// OnPageClose logs the close of an open preview when the page goes away.
// It never waits for the event to be submitted.
func (c *Controller) OnPageClose(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.SelectedIndex != -1 {
		c.logEvent(ctx, event.ActionClose, c.state.SelectedIndex)
	}
}

// Navigate moves the selection to the next or previous result. Unknown
// directions and moves past either end are ignored.
//
// Only the title and index change: nothing is fetched, pushed to the
// history or logged. Callers that want the full open sequence use
// HandleTitleChange.
func (c *Controller) Navigate(direction string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var index int
	switch direction {
	case DirectionNext:
		index = c.state.SelectedIndex + 1
	case DirectionPrevious:
		index = c.state.SelectedIndex - 1
	default:
		return
	}

	result, ok := c.results.At(index)
	if !ok {
		return
	}
	c.state.Title = result.PrefixedText
	c.state.SelectedIndex = index
}

func (c *Controller) logEvent(ctx context.Context, action string, index int) {
	if c.deps.Events == nil {
		return
	}
	c.deps.Events.LogEvent(ctx, action, index)
}

// State returns a snapshot of the selection.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Visible reports whether a preview is open.
func (c *Controller) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Title != ""
}

// CurrentResult returns the selected result with its page information and
// media. It reports false without a valid selection.
func (c *Controller) CurrentResult() (Current, bool) {
	c.mu.Lock()
	result, ok := c.results.At(c.state.SelectedIndex)
	c.mu.Unlock()
	if !ok {
		return Current{}, false
	}

	info := c.deps.Query.Info()
	m := c.deps.Media.Info()
	return Current{
		PrefixedText:    result.PrefixedText,
		Text:            result.Text,
		SnippetField:    result.SnippetField,
		Thumbnail:       info.Thumbnail,
		Description:     info.Description,
		Sections:        info.Sections,
		ExpandedSnippet: info.ExpandedSnippet,
		Images:          m.Images,
		HasMoreImages:   m.HasMoreImages,
		SearchLink:      m.SearchLink,
		Links:           m.Links,
	}, true
}

// PageInfoAvailable reports whether the selected result has a description,
// sections or a thumbnail to show.
func (c *Controller) PageInfoAvailable() bool {
	cur, ok := c.CurrentResult()
	if !ok {
		return false
	}
	return cur.Description != "" || len(cur.Sections) > 0 || cur.Thumbnail != nil
}

// ShowOnMobile reports whether the mobile panel has anything to render.
func (c *Controller) ShowOnMobile() bool {
	return c.PageInfoAvailable()
}

// Loading reports whether page information or media is being fetched.
func (c *Controller) Loading() bool {
	return c.deps.Status.IsLoading()
}

func rowSelector(title string) string {
	return fmt.Sprintf(`[data-prefixedtext="%s"]`, title)
}
