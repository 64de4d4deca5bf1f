// Package media fetches the related images and interwiki links of the
// previewed page.
package media

import (
	"context"
	"sort"
	"sync"

	"github.com/pders01/searchpreview/internal/api"
	"github.com/pders01/searchpreview/internal/debuglog"
	"github.com/pders01/searchpreview/internal/status"
	"github.com/pders01/searchpreview/internal/task"
)

const (
	DesktopImageLimit = 7
	MobileImageLimit  = 3
)

// Fetcher loads media and links for a linked data item.
type Fetcher interface {
	Media(ctx context.Context, entityID string) (*api.MediaResponse, error)
}

// Info is the media shown for the previewed page.
type Info struct {
	Images        []api.Image
	HasMoreImages bool
	SearchLink    string
	Links         []api.InterwikiLink
}

type Option func(*Coordinator)

// WithLanguage sets the language interwiki site names are given in.
func WithLanguage(lang string) Option {
	return func(c *Coordinator) { c.language = lang }
}

// Coordinator runs at most one relevant media fetch at a time. A fetch that
// was aborted or superseded never changes Info or the media status.
type Coordinator struct {
	fetcher  Fetcher
	status   *status.Tracker
	language string

	mu         sync.Mutex
	info       Info
	generation uint64
	current    *task.Handle

	log *debuglog.FieldLogger
}

func New(fetcher Fetcher, tracker *status.Tracker, opts ...Option) *Coordinator {
	c := &Coordinator{
		fetcher:  fetcher,
		status:   tracker,
		language: "en",
		log:      debuglog.WithFields(map[string]any{"component": "media"}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch loads media for page. Without a linked data item the in-flight fetch
// is dropped, the media state is reset and nil is returned.
func (c *Coordinator) Fetch(page *api.Page, isMobile bool) *task.Handle {
	entityID := page.EntityID()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.current.Cancel()
	c.generation++
	gen := c.generation

	if entityID == "" {
		if c.current != nil && c.status.Status(status.Media) == status.InProgress {
			c.status.SetStatus(status.Media, status.NotStarted)
		}
		c.current = nil
		c.info = Info{}
		return nil
	}
	c.status.SetStatus(status.Media, status.InProgress)

	leadImage := page.LeadImageURL()
	c.current = task.Start(context.Background(), func(ctx context.Context) {
		resp, err := c.fetcher.Media(ctx, entityID)
		c.complete(gen, entityID, leadImage, isMobile, resp, err)
	})
	return c.current
}

func (c *Coordinator) complete(gen uint64, entityID, leadImage string, isMobile bool, resp *api.MediaResponse, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.log.With("entity", entityID)
	if gen != c.generation {
		log.Debugf("discarding stale media response")
		return
	}

	if err != nil {
		log.Warnf("fetching media: %v", err)
		c.info = Info{}
		c.status.SetStatus(status.Media, status.Error)
		return
	}

	info := Info{}
	if !resp.Empty() {
		if images := resp.Media.Images(); len(images) > 0 {
			info.Images, info.HasMoreImages = selectImages(images, leadImage, isMobile, resp.Media.HasMore())
			info.SearchLink = resp.Media.SearchLink
		}
		info.Links = formatLinks(resp.Links, c.language)
	}
	c.info = info
	c.status.SetStatus(status.Media, status.Done)
	log.Debugf("media done: %d images, %d links", len(info.Images), len(info.Links))
}

// selectImages orders images by index, drops the page's own lead image and
// caps the list for the device.
func selectImages(images []api.Image, leadImage string, isMobile, hasContinue bool) ([]api.Image, bool) {
	sorted := make([]api.Image, len(images))
	copy(sorted, images)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	kept := sorted[:0]
	for _, img := range sorted {
		if leadImage != "" && img.URL() == leadImage {
			continue
		}
		kept = append(kept, img)
	}

	limit := DesktopImageLimit
	if isMobile {
		limit = MobileImageLimit
	}
	hasMore := len(kept) > limit || hasContinue
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept, hasMore
}

// Info returns a copy of the current media state.
func (c *Coordinator) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := c.info
	info.Images = append([]api.Image(nil), c.info.Images...)
	info.Links = append([]api.InterwikiLink(nil), c.info.Links...)
	return info
}

// Reset clears the media state.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.info = Info{}
	c.mu.Unlock()
}

// Abort cancels the in-flight fetch, if any. Its response is discarded.
func (c *Coordinator) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.current.Cancel()
	c.current = nil
}

// Wait blocks until the latest fetch has settled.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	h := c.current
	c.mu.Unlock()
	return h.Wait(ctx)
}
