package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type Thumbnail struct {
	Source string `json:"source,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Alt    string `json:"alt,omitempty"`
}

// Clone returns a copy of t, or nil.
func (t *Thumbnail) Clone() *Thumbnail {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

type Original struct {
	Source string `json:"source"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type PageProps struct {
	ShortDescription string `json:"wikibase-shortdesc,omitempty"`
	WikibaseItem     string `json:"wikibase_item,omitempty"`
}

type Terms struct {
	Description []string `json:"description,omitempty"`
}

// Page is the page-info response for a single title.
type Page struct {
	PageID    int         `json:"pageid,omitempty"`
	NS        int         `json:"ns"`
	Title     string      `json:"title,omitempty"`
	Thumbnail *Thumbnail  `json:"thumbnail,omitempty"`
	Original  *Original   `json:"original,omitempty"`
	PageImage string      `json:"pageimage,omitempty"`
	PageProps *PageProps  `json:"pageprops,omitempty"`
	Terms     *Terms      `json:"terms,omitempty"`
	Extract   Extract     `json:"extract,omitempty"`
	CirrusDoc []CirrusDoc `json:"cirrusdoc,omitempty"`
}

// EntityID returns the linked data item id (QID) of the page, if any.
func (p *Page) EntityID() string {
	if p == nil || p.PageProps == nil {
		return ""
	}
	return p.PageProps.WikibaseItem
}

func (p *Page) ShortDescription() string {
	if p == nil || p.PageProps == nil {
		return ""
	}
	return p.PageProps.ShortDescription
}

// TermDescription returns the first linked data description.
func (p *Page) TermDescription() string {
	if p == nil || p.Terms == nil || len(p.Terms.Description) == 0 {
		return ""
	}
	return p.Terms.Description[0]
}

// LeadImageURL returns the original url of the page image.
func (p *Page) LeadImageURL() string {
	if p == nil || p.Original == nil {
		return ""
	}
	return p.Original.Source
}

// Sections returns the headings of the indexed document.
func (p *Page) Sections() []string {
	if p == nil || len(p.CirrusDoc) == 0 {
		return []string{}
	}
	if h := p.CirrusDoc[0].Source.Heading; h != nil {
		return h
	}
	return []string{}
}

// Field returns an indexed source field of the page.
func (p *Page) Field(name string) (FieldValue, bool) {
	if p == nil || len(p.CirrusDoc) == 0 {
		return FieldValue{}, false
	}
	v, ok := p.CirrusDoc[0].Source.Fields[name]
	if !ok || len(v.Values) == 0 {
		return FieldValue{}, false
	}
	return v, true
}

// Extract is a plain-text page extract. The upstream API returns either a
// string or an object of the form {"*": "..."}.
type Extract string

func (e *Extract) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*e = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = Extract(s)
		return nil
	}
	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decoding extract: %w", err)
	}
	*e = Extract(obj["*"])
	return nil
}

type CirrusDoc struct {
	ID     string       `json:"id,omitempty"`
	Source CirrusSource `json:"source"`
}

// CirrusSource holds the indexed fields of a document. Only string and
// string-array fields are kept; heading is exposed separately.
type CirrusSource struct {
	Heading []string
	Fields  map[string]FieldValue
}

func (s *CirrusSource) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding cirrus source: %w", err)
	}
	s.Fields = make(map[string]FieldValue, len(raw))
	for name, value := range raw {
		if name == "heading" {
			if err := json.Unmarshal(value, &s.Heading); err != nil {
				return fmt.Errorf("decoding headings: %w", err)
			}
			continue
		}
		var fv FieldValue
		if err := json.Unmarshal(value, &fv); err != nil {
			// numeric and nested fields are of no use for snippets
			continue
		}
		s.Fields[name] = fv
	}
	return nil
}

func (s CirrusSource) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Fields)+1)
	for name, fv := range s.Fields {
		out[name] = fv
	}
	if s.Heading != nil {
		out["heading"] = s.Heading
	}
	return json.Marshal(out)
}

// FieldValue is an indexed field that is either a single string or a list
// of strings (for example auxiliary_text).
type FieldValue struct {
	Values []string
	IsList bool
}

func (f *FieldValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.Values = []string{s}
		f.IsList = false
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("field is neither a string nor a list of strings")
	}
	f.Values = list
	f.IsList = true
	return nil
}

func (f FieldValue) MarshalJSON() ([]byte, error) {
	if f.IsList {
		return json.Marshal(f.Values)
	}
	if len(f.Values) == 0 {
		return []byte(`""`), nil
	}
	return json.Marshal(f.Values[0])
}

// Content returns the text to expand a snippet from. For list fields it is
// the first entry containing phrase.
func (f FieldValue) Content(phrase string) (string, bool) {
	if !f.IsList {
		if len(f.Values) == 0 || f.Values[0] == "" {
			return "", false
		}
		return f.Values[0], true
	}
	for _, v := range f.Values {
		if phrase != "" && strings.Contains(v, phrase) {
			return v, true
		}
	}
	return "", false
}

// MediaResponse is the combined media and interwiki links response.
type MediaResponse struct {
	Media *MediaSearch `json:"media,omitempty"`
	Links Links        `json:"links,omitempty"`
}

// Empty reports whether neither media nor links were returned.
func (r *MediaResponse) Empty() bool {
	return r == nil || (r.Media == nil && len(r.Links) == 0)
}

type MediaSearch struct {
	Continue   json.RawMessage `json:"continue,omitempty"`
	Query      *MediaQuery     `json:"query,omitempty"`
	SearchLink string          `json:"searchlink,omitempty"`
}

// HasMore reports whether the media repository has further results.
func (m *MediaSearch) HasMore() bool {
	if m == nil {
		return false
	}
	c := bytes.TrimSpace(m.Continue)
	return len(c) > 0 && !bytes.Equal(c, []byte("null")) && !bytes.Equal(c, []byte("false"))
}

// Images returns the result pages in no particular order.
func (m *MediaSearch) Images() []Image {
	if m == nil || m.Query == nil {
		return nil
	}
	images := make([]Image, 0, len(m.Query.Pages))
	for _, img := range m.Query.Pages {
		images = append(images, img)
	}
	return images
}

type MediaQuery struct {
	Pages map[string]Image `json:"pages"`
}

type Image struct {
	PageID    int         `json:"pageid,omitempty"`
	NS        int         `json:"ns"`
	Title     string      `json:"title"`
	Index     int         `json:"index"`
	ImageInfo []ImageInfo `json:"imageinfo,omitempty"`
}

// URL returns the url of the first image revision.
func (i Image) URL() string {
	if len(i.ImageInfo) == 0 {
		return ""
	}
	return i.ImageInfo[0].URL
}

type ImageInfo struct {
	URL            string `json:"url"`
	DescriptionURL string `json:"descriptionurl,omitempty"`
	ThumbURL       string `json:"thumburl,omitempty"`
	ThumbWidth     int    `json:"thumbwidth,omitempty"`
	ThumbHeight    int    `json:"thumbheight,omitempty"`
}

type InterwikiLink struct {
	Site          string   `json:"site"`
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Badges        []string `json:"badges"`
	Icon          string   `json:"icon,omitempty"`
	LocalizedName string   `json:"localizedName,omitempty"`
}

// Links are interwiki links keyed by site id. An empty JSON array decodes to
// an empty map.
type Links map[string]InterwikiLink

func (l *Links) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []InterwikiLink
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("decoding links: %w", err)
		}
		m := make(Links, len(list))
		for _, link := range list {
			m[link.Site] = link
		}
		*l = m
		return nil
	}
	m := map[string]InterwikiLink{}
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return fmt.Errorf("decoding links: %w", err)
	}
	*l = m
	return nil
}

// Sorted returns the links ordered by site id.
func (l Links) Sorted() []InterwikiLink {
	out := make([]InterwikiLink, 0, len(l))
	for _, link := range l {
		out = append(out, link)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Site < out[j].Site })
	return out
}
