// Package api talks to the preview REST endpoints that supply page info and
// related media for a selected search result.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultUserAgent = "searchpreview/1.0 (https://github.com/pders01/searchpreview)"
	defaultTimeout   = 30 * time.Second
	maxBodySize      = 4 << 20

	pagePath  = "/searchvue/v0/page/"
	mediaPath = "/searchvue/v0/media/"
)

// ErrNotFound is returned when the endpoint answers 404.
var ErrNotFound = errors.New("not found")

// HTTPError is returned for any other non-2xx answer.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: %d (%s)", e.StatusCode, e.URL)
}

type Client struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// NewClient creates a client for the REST root at baseURL (for example
// https://en.wikipedia.org/w/rest.php).
func NewClient(baseURL string, timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// PageInfo fetches thumbnail, descriptions, headings and the full content of
// field for title. A JSON null answer yields a nil page and no error.
func (c *Client) PageInfo(ctx context.Context, title, field string) (*Page, error) {
	path := pagePath + url.PathEscape(title) + "/" + url.PathEscape(field)
	var page *Page
	if err := c.getJSON(ctx, path, &page); err != nil {
		return nil, fmt.Errorf("fetching page info for %q: %w", title, err)
	}
	return page, nil
}

// Media fetches related images and interwiki links for an entity id.
func (c *Client) Media(ctx context.Context, entityID string) (*MediaResponse, error) {
	var resp *MediaResponse
	if err := c.getJSON(ctx, mediaPath+url.PathEscape(entityID), &resp); err != nil {
		return nil, fmt.Errorf("fetching media for %s: %w", entityID, err)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return &HTTPError{StatusCode: resp.StatusCode, URL: req.URL.String()}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
