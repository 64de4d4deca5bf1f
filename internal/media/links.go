package media

import (
	"net/url"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/pders01/searchpreview/internal/api"
)

// IconURL returns the default favicon location of the site hosting rawURL,
// or "" when it has no host. Protocol-relative URLs are taken as https.
func IconURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "//") {
		rawURL = "https:" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || u.Scheme == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/favicon.ico"
}

var projectNames = map[string]string{
	"wiki":        "Wikipedia",
	"wiktionary":  "Wiktionary",
	"wikiquote":   "Wikiquote",
	"wikinews":    "Wikinews",
	"wikisource":  "Wikisource",
	"wikibooks":   "Wikibooks",
	"wikiversity": "Wikiversity",
	"wikivoyage":  "Wikivoyage",
}

var sharedSites = map[string]string{
	"wikidatawiki": "Wikidata",
	"specieswiki":  "Wikispecies",
	"commonswiki":  "Wikimedia Commons",
	"metawiki":     "Meta-Wiki",
}

// suffixes are ordered so that "wiki" is tried last.
var suffixes = []string{
	"wiktionary", "wikiquote", "wikinews", "wikisource",
	"wikibooks", "wikiversity", "wikivoyage", "wiki",
}

// LocalizedSiteName names a site id such as "frwiktionary" in the language
// uiLang, for example "French Wiktionary". Unknown ids are returned as is.
func LocalizedSiteName(site, uiLang string) string {
	if name, ok := sharedSites[site]; ok {
		return name
	}

	for _, suffix := range suffixes {
		code, ok := strings.CutSuffix(site, suffix)
		if !ok || code == "" {
			continue
		}
		return languageName(code, uiLang) + " " + projectNames[suffix]
	}
	return site
}

func languageName(code, uiLang string) string {
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return code
	}
	ui, err := language.Parse(uiLang)
	if err != nil {
		ui = language.English
	}
	if name := display.Tags(ui).Name(tag); name != "" {
		return name
	}
	return code
}

// formatLinks orders links by site and fills in icons and localized names
// the server left out.
func formatLinks(links api.Links, uiLang string) []api.InterwikiLink {
	if len(links) == 0 {
		return nil
	}
	out := links.Sorted()
	for i := range out {
		if out[i].Icon == "" {
			out[i].Icon = IconURL(out[i].URL)
		}
		if out[i].LocalizedName == "" {
			out[i].LocalizedName = LocalizedSiteName(out[i].Site, uiLang)
		}
	}
	return out
}
