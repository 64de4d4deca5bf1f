package media

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/searchpreview/internal/api"
	"github.com/pders01/searchpreview/internal/status"
)

type fetchFunc func(ctx context.Context, entityID string) (*api.MediaResponse, error)

func (f fetchFunc) Media(ctx context.Context, entityID string) (*api.MediaResponse, error) {
	return f(ctx, entityID)
}

func pageWithItem(qid, lead string) *api.Page {
	p := &api.Page{Title: "Cat", PageProps: &api.PageProps{WikibaseItem: qid}}
	if lead != "" {
		p.Original = &api.Original{Source: lead}
	}
	return p
}

func image(index int, url string) api.Image {
	return api.Image{NS: 6, Title: url, Index: index, ImageInfo: []api.ImageInfo{{URL: url}}}
}

func response(cont bool, images ...api.Image) *api.MediaResponse {
	pages := make(map[string]api.Image, len(images))
	for i, img := range images {
		pages[string(rune('a'+i))] = img
	}
	search := &api.MediaSearch{Query: &api.MediaQuery{Pages: pages}, SearchLink: "https://commons.example/search"}
	if cont {
		search.Continue = json.RawMessage(`{"gsroffset":7}`)
	}
	return &api.MediaResponse{Media: search}
}

func waitFor(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func indexes(images []api.Image) []int {
	var out []int
	for _, img := range images {
		out = append(out, img.Index)
	}
	return out
}

func TestFetch_SortsImagesAndKeepsContinuation(t *testing.T) {
	resp := response(true,
		image(4, "u4"), image(6, "u6"), image(2, "u2"),
		image(1, "u1"), image(3, "u3"), image(5, "u5"),
	)
	tracker := status.NewTracker()
	c := New(fetchFunc(func(context.Context, string) (*api.MediaResponse, error) { return resp, nil }), tracker)

	h := c.Fetch(pageWithItem("Q146", ""), false)
	require.NotNil(t, h)
	waitFor(t, c)

	info := c.Info()
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, indexes(info.Images))
	assert.True(t, info.HasMoreImages)
	assert.Equal(t, "https://commons.example/search", info.SearchLink)
	assert.Equal(t, status.Done, tracker.Status(status.Media))
}

func TestFetch_NoContinuationNoOverflow(t *testing.T) {
	resp := response(false, image(2, "u2"), image(1, "u1"))
	c := New(fetchFunc(func(context.Context, string) (*api.MediaResponse, error) { return resp, nil }), status.NewTracker())

	c.Fetch(pageWithItem("Q1", ""), false)
	waitFor(t, c)

	assert.False(t, c.Info().HasMoreImages)
}

func TestFetch_MobileCapAndLeadImage(t *testing.T) {
	resp := response(false,
		image(1, "lead"), image(2, "u2"), image(3, "u3"), image(4, "u4"), image(5, "u5"),
	)
	c := New(fetchFunc(func(context.Context, string) (*api.MediaResponse, error) { return resp, nil }), status.NewTracker())

	c.Fetch(pageWithItem("Q1", "lead"), true)
	waitFor(t, c)

	info := c.Info()
	assert.Equal(t, []int{2, 3, 4}, indexes(info.Images))
	assert.True(t, info.HasMoreImages, "overflow after capping means more images")
}

func TestFetch_DesktopCap(t *testing.T) {
	var images []api.Image
	for i := 8; i >= 1; i-- {
		images = append(images, image(i, "u"+string(rune('0'+i))))
	}
	resp := response(false, images...)
	c := New(fetchFunc(func(context.Context, string) (*api.MediaResponse, error) { return resp, nil }), status.NewTracker())

	c.Fetch(pageWithItem("Q1", ""), false)
	waitFor(t, c)

	info := c.Info()
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, indexes(info.Images))
	assert.True(t, info.HasMoreImages)
}

func TestFetch_WithoutEntityResets(t *testing.T) {
	calls := 0
	tracker := status.NewTracker()
	c := New(fetchFunc(func(context.Context, string) (*api.MediaResponse, error) {
		calls++
		return response(false, image(1, "u1")), nil
	}), tracker)

	c.Fetch(pageWithItem("Q1", ""), false)
	waitFor(t, c)
	require.Len(t, c.Info().Images, 1)

	h := c.Fetch(&api.Page{Title: "No item"}, false)
	assert.Nil(t, h)
	assert.Empty(t, c.Info().Images)
	assert.Equal(t, 1, calls)
	assert.Equal(t, status.Done, tracker.Status(status.Media))
}

func TestFetch_WithoutEntityDropsInFlight(t *testing.T) {
	release := make(chan struct{})
	tracker := status.NewTracker()
	c := New(fetchFunc(func(ctx context.Context, entityID string) (*api.MediaResponse, error) {
		<-release
		return response(false, image(1, "a")), nil
	}), tracker)

	inFlight := c.Fetch(pageWithItem("QA", ""), false)
	require.Equal(t, status.InProgress, tracker.Status(status.Media))

	assert.Nil(t, c.Fetch(&api.Page{Title: "No item"}, false))
	assert.True(t, inFlight.Cancelled())
	assert.Equal(t, status.NotStarted, tracker.Status(status.Media))

	close(release)
	require.NoError(t, inFlight.Wait(context.Background()))

	assert.Equal(t, Info{}, c.Info())
	assert.Equal(t, status.NotStarted, tracker.Status(status.Media))
}

func TestFetch_EmptyResponseIsDone(t *testing.T) {
	tracker := status.NewTracker()
	c := New(fetchFunc(func(context.Context, string) (*api.MediaResponse, error) {
		return &api.MediaResponse{}, nil
	}), tracker)

	c.Fetch(pageWithItem("Q1", ""), false)
	waitFor(t, c)

	assert.Equal(t, status.Done, tracker.Status(status.Media))
	assert.Equal(t, Info{}, c.Info())
}

func TestFetch_ErrorResets(t *testing.T) {
	fail := false
	tracker := status.NewTracker()
	c := New(fetchFunc(func(context.Context, string) (*api.MediaResponse, error) {
		if fail {
			return nil, errors.New("upstream down")
		}
		return response(false, image(1, "u1")), nil
	}), tracker)

	c.Fetch(pageWithItem("Q1", ""), false)
	waitFor(t, c)
	require.NotEmpty(t, c.Info().Images)

	fail = true
	c.Fetch(pageWithItem("Q2", ""), false)
	waitFor(t, c)

	assert.Empty(t, c.Info().Images)
	assert.Equal(t, status.Error, tracker.Status(status.Media))
}

func TestFetch_Links(t *testing.T) {
	resp := &api.MediaResponse{Links: api.Links{
		"frwiki": {Site: "frwiki", Title: "Chat", URL: "https://fr.wikipedia.org/wiki/Chat"},
		"dewikivoyage": {
			Site:          "dewikivoyage",
			Title:         "Katze",
			URL:           "https://de.wikivoyage.org/wiki/Katze",
			Icon:          "https://icons.example/voy.ico",
			LocalizedName: "Server name",
		},
	}}
	c := New(fetchFunc(func(context.Context, string) (*api.MediaResponse, error) { return resp, nil }), status.NewTracker())

	c.Fetch(pageWithItem("Q146", ""), false)
	waitFor(t, c)

	links := c.Info().Links
	require.Len(t, links, 2)
	assert.Equal(t, "dewikivoyage", links[0].Site)
	assert.Equal(t, "https://icons.example/voy.ico", links[0].Icon)
	assert.Equal(t, "Server name", links[0].LocalizedName)
	assert.Equal(t, "https://fr.wikipedia.org/favicon.ico", links[1].Icon)
	assert.Equal(t, "French Wikipedia", links[1].LocalizedName)
	assert.Empty(t, c.Info().Images)
}

func TestFetch_StaleResponseIgnored(t *testing.T) {
	release := make(chan struct{})
	tracker := status.NewTracker()
	c := New(fetchFunc(func(ctx context.Context, entityID string) (*api.MediaResponse, error) {
		if entityID == "QA" {
			<-release
			return response(false, image(1, "a")), nil
		}
		return response(false, image(1, "b"), image(2, "b2")), nil
	}), tracker)

	stale := c.Fetch(pageWithItem("QA", ""), false)
	c.Fetch(pageWithItem("QB", ""), false)
	waitFor(t, c)

	close(release)
	require.NoError(t, stale.Wait(context.Background()))

	assert.Len(t, c.Info().Images, 2)
	assert.Equal(t, status.Done, tracker.Status(status.Media))
}

func TestAbort_DiscardsInFlight(t *testing.T) {
	release := make(chan struct{})
	tracker := status.NewTracker()
	c := New(fetchFunc(func(ctx context.Context, entityID string) (*api.MediaResponse, error) {
		<-release
		return response(false, image(1, "a")), nil
	}), tracker)

	h := c.Fetch(pageWithItem("QA", ""), false)
	assert.Equal(t, status.InProgress, tracker.Status(status.Media))

	c.Abort()
	tracker.Reset()
	assert.True(t, h.Cancelled())

	close(release)
	require.NoError(t, h.Wait(context.Background()))

	assert.Empty(t, c.Info().Images)
	assert.Equal(t, status.NotStarted, tracker.Status(status.Media))
}

func TestIconURL(t *testing.T) {
	tests := map[string]string{
		"https://fr.wikipedia.org/wiki/Chat":  "https://fr.wikipedia.org/favicon.ico",
		"//de.wiktionary.org/wiki/Katze":      "https://de.wiktionary.org/favicon.ico",
		"http://localhost:8080/wiki/Main":     "http://localhost:8080/favicon.ico",
		"/wiki/Relative":                      "",
		"":                                    "",
		"https://www.wikidata.org/wiki/Q146?": "https://www.wikidata.org/favicon.ico",
	}
	for in, want := range tests {
		assert.Equal(t, want, IconURL(in), "IconURL(%q)", in)
	}
}

func TestLocalizedSiteName(t *testing.T) {
	tests := []struct {
		site, lang, want string
	}{
		{"frwiki", "en", "French Wikipedia"},
		{"dewiktionary", "en", "German Wiktionary"},
		{"eswikivoyage", "en", "Spanish Wikivoyage"},
		{"wikidatawiki", "en", "Wikidata"},
		{"specieswiki", "en", "Wikispecies"},
		{"frwiki", "de", "Französisch Wikipedia"},
		{"somethingelse", "en", "somethingelse"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LocalizedSiteName(tt.site, tt.lang), "site %s in %s", tt.site, tt.lang)
	}
}
