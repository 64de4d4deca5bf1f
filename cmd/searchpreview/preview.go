package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pders01/searchpreview/internal/api"
	"github.com/pders01/searchpreview/internal/config"
	"github.com/pders01/searchpreview/internal/debuglog"
	"github.com/pders01/searchpreview/internal/event"
	"github.com/pders01/searchpreview/internal/media"
	"github.com/pders01/searchpreview/internal/page"
	"github.com/pders01/searchpreview/internal/query"
	"github.com/pders01/searchpreview/internal/search"
	"github.com/pders01/searchpreview/internal/selection"
	"github.com/pders01/searchpreview/internal/status"
	"github.com/pders01/searchpreview/internal/storage"
)

type previewOptions struct {
	resultsPath string
	title       string
	mobile      bool
	asJSON      bool
}

var previewFlags previewOptions

var previewCmd = &cobra.Command{
	Use:   "preview <results-file> <title>",
	Short: "Open the preview of one result of a saved results page",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer debuglog.Close()

		opts := previewFlags
		opts.resultsPath = args[0]
		opts.title = args[1]
		if cmd.Flags().Changed("mobile") {
			cfg.Wiki.Mobile = opts.mobile
		}
		return runPreview(cmd.Context(), cfg, opts, os.Stdout)
	},
}

func init() {
	previewCmd.Flags().BoolVar(&previewFlags.mobile, "mobile", false, "Preview as the mobile site would")
	previewCmd.Flags().BoolVar(&previewFlags.asJSON, "json", false, "Print the preview as JSON")
}

// runPreview opens the preview of opts.title the way the results page does
// and prints it once page info and media have arrived.
func runPreview(ctx context.Context, cfg *config.Config, opts previewOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	results, err := search.LoadResults(opts.resultsPath)
	if err != nil {
		return err
	}

	store, err := storage.NewStore(cfg.Session.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	var sink event.Sink = event.NopSink{}
	if cfg.Analytics.Enabled {
		sink = event.NewHTTPSink(cfg.Analytics.Endpoint, cfg.API.HTTPTimeout, cfg.API.UserAgent)
	}
	session := event.NewSession(store, event.StaticLoader(sink), event.Options{
		WikiID: cfg.Wiki.ID,
		Mobile: cfg.Wiki.Mobile,
		IsAnon: cfg.Wiki.Anon,
		Schema: cfg.Analytics.Schema,
		Stream: cfg.Analytics.Stream,
		Window: cfg.Session.Window,
	})
	defer session.Close()

	location, err := page.NewLocation(url.Values{"search": {results.Query}}.Encode())
	if err != nil {
		return err
	}
	doc := page.NewDocument(results.Results)

	client := api.NewClient(cfg.API.BaseURL, cfg.API.HTTPTimeout, cfg.API.UserAgent)
	tracker := status.NewTracker()
	mediaCoord := media.New(client, tracker, media.WithLanguage(cfg.Wiki.Language))
	queryCoord := query.New(client, tracker, mediaCoord, doc, query.WithTimer(status.NewTimer(nil)))

	ctrl := selection.New(selection.Deps{
		Query:   queryCoord,
		Media:   mediaCoord,
		Status:  tracker,
		Events:  session,
		History: location,
		DOM:     doc,
	}, results.Results, cfg.Wiki.Mobile)

	if err := ctrl.Init(ctx); err != nil {
		return err
	}
	if results.Results.IndexOf(opts.title) < 0 {
		return fmt.Errorf("no result titled %q", opts.title)
	}
	ctrl.ToggleVisibility(ctx, opts.title, selection.WithForce())

	if err := queryCoord.Wait(ctx); err != nil {
		return err
	}
	if err := mediaCoord.Wait(ctx); err != nil {
		return err
	}
	defer ctrl.OnPageClose(ctx)

	cur, ok := ctrl.CurrentResult()
	if !ok {
		return fmt.Errorf("no preview open for %q", opts.title)
	}
	if s := tracker.Status(status.Query); s == status.Error {
		debuglog.Warnf("page info for %q unavailable", opts.title)
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(previewJSON(cur, location.Search()))
	}
	fmt.Fprintln(out, renderPreview(cur, ctrl.ShowOnMobile() || !cfg.Wiki.Mobile))
	return nil
}

type previewOutput struct {
	Title           string              `json:"title"`
	Snippet         string              `json:"snippet"`
	ExpandedSnippet string              `json:"expandedSnippet,omitempty"`
	Description     string              `json:"description,omitempty"`
	Thumbnail       *api.Thumbnail      `json:"thumbnail,omitempty"`
	Sections        []string            `json:"sections"`
	Images          []string            `json:"images"`
	HasMoreImages   bool                `json:"hasMoreImages"`
	SearchLink      string              `json:"searchLink,omitempty"`
	Links           []api.InterwikiLink `json:"links"`
	Location        string              `json:"location"`
}

func previewJSON(cur selection.Current, location string) previewOutput {
	out := previewOutput{
		Title:           cur.PrefixedText,
		Snippet:         cur.Text,
		ExpandedSnippet: cur.ExpandedSnippet,
		Description:     cur.Description,
		Thumbnail:       cur.Thumbnail,
		Sections:        cur.Sections,
		Images:          make([]string, 0, len(cur.Images)),
		HasMoreImages:   cur.HasMoreImages,
		SearchLink:      cur.SearchLink,
		Links:           cur.Links,
		Location:        location,
	}
	for _, img := range cur.Images {
		out.Images = append(out.Images, img.URL())
	}
	if out.Sections == nil {
		out.Sections = []string{}
	}
	if out.Links == nil {
		out.Links = []api.InterwikiLink{}
	}
	return out
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#36C"))
	descStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#72777D"))
	headingStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func renderPreview(cur selection.Current, available bool) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(cur.PrefixedText))
	if cur.Description != "" {
		b.WriteString("\n" + descStyle.Render(cur.Description))
	}
	if !available {
		b.WriteString("\n(nothing to preview)")
		return panelStyle.Render(b.String())
	}

	snippetText := cur.ExpandedSnippet
	if snippetText == "" {
		snippetText = cur.Text
	}
	b.WriteString("\n\n" + highlightTerminal(snippetText))

	if len(cur.Sections) > 0 {
		b.WriteString("\n" + headingStyle.Render("Sections"))
		for _, s := range cur.Sections {
			b.WriteString("\n  " + s)
		}
	}
	if len(cur.Images) > 0 {
		b.WriteString("\n" + headingStyle.Render("Images"))
		for _, img := range cur.Images {
			b.WriteString("\n  " + img.URL())
		}
		if cur.HasMoreImages && cur.SearchLink != "" {
			b.WriteString("\n  more: " + cur.SearchLink)
		}
	}
	if len(cur.Links) > 0 {
		b.WriteString("\n" + headingStyle.Render("Elsewhere"))
		for _, l := range cur.Links {
			b.WriteString(fmt.Sprintf("\n  %s: %s", l.LocalizedName, l.URL))
		}
	}
	return panelStyle.Render(b.String())
}

var matchStyle = lipgloss.NewStyle().Bold(true).Underline(true)

// highlightTerminal turns highlight markup into terminal styling.
func highlightTerminal(html string) string {
	const openTag, closeTag = `<span class="searchmatch">`, `</span>`
	var b strings.Builder
	for {
		start := strings.Index(html, openTag)
		if start < 0 {
			break
		}
		end := strings.Index(html[start:], closeTag)
		if end < 0 {
			break
		}
		b.WriteString(html[:start])
		b.WriteString(matchStyle.Render(html[start+len(openTag) : start+end]))
		html = html[start+end+len(closeTag):]
	}
	b.WriteString(html)
	return b.String()
}
