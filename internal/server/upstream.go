package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const maxUpstreamBody = 8 << 20

// upstream issues GET requests against MediaWiki action API endpoints.
type upstream struct {
	client    *http.Client
	userAgent string
}

func newUpstream(timeout time.Duration, userAgent string) *upstream {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &upstream{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// apiError is the error object the action API returns with a 200 status.
type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Info)
}

// get calls endpoint with params and decodes the JSON answer into v.
func (u *upstream) get(ctx context.Context, endpoint string, params url.Values, v any) error {
	params.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if u.userAgent != "" {
		req.Header.Set("User-Agent", u.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("upstream %s answered %d", req.URL.Host, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var envelope struct {
		Error *apiError `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
		return envelope.Error
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
