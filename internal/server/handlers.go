package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/pders01/searchpreview/internal/api"
	"github.com/pders01/searchpreview/internal/media"
	"github.com/pders01/searchpreview/internal/snippet"
)

const (
	thumbnailSize = 400
	imageLimit    = media.DesktopImageLimit
	fileNamespace = 6
)

var qidPattern = regexp.MustCompile(`^Q[1-9][0-9]*$`)

// sisterSites are the sites sitelinks are requested for; %s is the wiki
// language. The media repository is left out, its images come from the
// media search.
var sisterSites = []string{
	"%swiki",
	"%swiktionary",
	"%swikiquote",
	"%swikinews",
	"%swikisource",
	"%swikibooks",
	"%swikiversity",
	"%swikivoyage",
	"wikidatawiki",
	"specieswiki",
}

// pageInfoHandler answers with the single page object of an action API
// query, or null when the API returned no page.
func (s *Server) pageInfoHandler(w http.ResponseWriter, r *http.Request) {
	if s.cfg.ActionAPI == "" {
		writeError(w, http.StatusNotFound, "page info is not configured")
		return
	}

	title, err := pathParam(r, "title")
	if err != nil || title == "" {
		writeError(w, http.StatusBadRequest, "invalid title")
		return
	}
	field := snippet.FieldFromSnippetField(chi.URLParam(r, "field"))

	params := url.Values{
		"action":      {"query"},
		"titles":      {title},
		"prop":        {"pageimages|pageprops|cirrusdoc|extracts|pageterms"},
		"pithumbsize": {fmt.Sprint(thumbnailSize)},
		"pilicense":   {"free"},
		"piprop":      {"thumbnail|name|original"},
		"cdincludes":  {"heading|" + field},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"exsentences": {"2"},
		"wbptterms":   {"description"},
	}

	var resp struct {
		Query struct {
			Pages map[string]json.RawMessage `json:"pages"`
		} `json:"query"`
	}
	if err := s.upstream.get(r.Context(), s.cfg.ActionAPI, params, &resp); err != nil {
		s.log.With("title", title).Warnf("page info: %v", err)
		writeError(w, http.StatusBadGateway, "page info unavailable")
		return
	}

	page := firstValue(resp.Query.Pages)
	if page == nil {
		page = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, page)
}

// mediaHandler combines the media search and the sitelinks of an item. A
// part whose upstream is not configured is left out of the answer.
func (s *Server) mediaHandler(w http.ResponseWriter, r *http.Request) {
	qid := strings.ToUpper(chi.URLParam(r, "qid"))
	if !qidPattern.MatchString(qid) {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var (
		mediaPart map[string]json.RawMessage
		linksPart map[string]api.InterwikiLink
	)
	wantMedia := s.cfg.MediaRepositoryAPI != "" && s.cfg.SearchFilterForQID != "" && s.cfg.MediaRepositorySearchURI != ""
	wantLinks := s.cfg.DataRepositoryAPI != ""

	g, ctx := errgroup.WithContext(r.Context())
	if wantMedia {
		g.Go(func() error {
			term := fmt.Sprintf(s.cfg.SearchFilterForQID, qid)
			params := url.Values{
				"action":       {"query"},
				"generator":    {"search"},
				"gsrsearch":    {"filetype:bitmap|drawing -fileres:0 " + term},
				"gsrnamespace": {fmt.Sprint(fileNamespace)},
				"gsrlimit":     {fmt.Sprint(imageLimit)},
				"prop":         {"imageinfo"},
				"iiprop":       {"url"},
				"iiurlwidth":   {fmt.Sprint(thumbnailSize)},
			}
			var data map[string]json.RawMessage
			if err := s.upstream.get(ctx, s.cfg.MediaRepositoryAPI, params, &data); err != nil {
				return fmt.Errorf("media search: %w", err)
			}
			if data == nil {
				data = make(map[string]json.RawMessage)
			}
			link, _ := json.Marshal(fmt.Sprintf(s.cfg.MediaRepositorySearchURI, url.QueryEscape(term)))
			data["searchlink"] = link
			mediaPart = data
			return nil
		})
	}
	if wantLinks {
		g.Go(func() error {
			params := url.Values{
				"action":     {"wbgetentities"},
				"ids":        {qid},
				"props":      {"sitelinks/urls"},
				"sitefilter": {strings.Join(filteredSites(s.language, s.wikiID), "|")},
			}
			var data struct {
				Entities map[string]struct {
					Sitelinks map[string]api.InterwikiLink `json:"sitelinks"`
				} `json:"entities"`
			}
			if err := s.upstream.get(ctx, s.cfg.DataRepositoryAPI, params, &data); err != nil {
				return fmt.Errorf("sitelinks: %w", err)
			}
			linksPart = s.formatLinks(data.Entities[firstKey(data.Entities)].Sitelinks)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.With("qid", qid).Warnf("media: %v", err)
		writeError(w, http.StatusBadGateway, "media unavailable")
		return
	}

	out := make(map[string]any, 2)
	if wantMedia {
		out["media"] = mediaPart
	}
	if wantLinks {
		out["links"] = linksPart
	}
	writeJSON(w, http.StatusOK, out)
}

// pathParam returns a decoded path parameter. chi matches on the escaped
// path only when it differs from the decoded one.
func pathParam(r *http.Request, key string) (string, error) {
	value := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return value, nil
	}
	return url.PathUnescape(value)
}

// filteredSites expands sisterSites for language and drops the wiki itself.
func filteredSites(language, wikiID string) []string {
	sites := make([]string, 0, len(sisterSites))
	for _, pattern := range sisterSites {
		site := pattern
		if strings.Contains(pattern, "%s") {
			site = fmt.Sprintf(pattern, language)
		}
		if site == wikiID {
			continue
		}
		sites = append(sites, site)
	}
	return sites
}

// formatLinks adds a favicon and a localized site name to every link.
func (s *Server) formatLinks(links map[string]api.InterwikiLink) map[string]api.InterwikiLink {
	out := make(map[string]api.InterwikiLink, len(links))
	for key, link := range links {
		if link.Site == "" {
			link.Site = key
		}
		if link.Badges == nil {
			link.Badges = []string{}
		}
		link.Icon = media.IconURL(link.URL)
		link.LocalizedName = media.LocalizedSiteName(link.Site, s.language)
		out[key] = link
	}
	return out
}

func firstKey[V any](m map[string]V) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}

func firstValue(m map[string]json.RawMessage) json.RawMessage {
	if len(m) == 0 {
		return nil
	}
	return m[firstKey(m)]
}
