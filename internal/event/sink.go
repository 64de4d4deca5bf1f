package event

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Sink submits events to an analytics pipeline.
type Sink interface {
	Submit(ctx context.Context, stream string, ev Event) error
}

// Loader resolves the sink. It is called at most once per Session, the
// first time an event is submitted.
type Loader func(ctx context.Context) (Sink, error)

// StaticLoader returns a Loader resolving to sink.
func StaticLoader(sink Sink) Loader {
	return func(context.Context) (Sink, error) { return sink, nil }
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Submit(context.Context, string, Event) error { return nil }

// HTTPSink posts events as JSON to an event intake endpoint.
type HTTPSink struct {
	endpoint  string
	client    *http.Client
	userAgent string
}

func NewHTTPSink(endpoint string, timeout time.Duration, userAgent string) *HTTPSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSink{
		endpoint:  endpoint,
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

type envelope struct {
	Event
	Meta meta `json:"meta"`
}

type meta struct {
	Stream string `json:"stream"`
	ID     string `json:"id"`
	DT     string `json:"dt"`
}

func (s *HTTPSink) Submit(ctx context.Context, stream string, ev Event) error {
	body, err := json.Marshal(envelope{
		Event: ev,
		Meta: meta{
			Stream: stream,
			ID:     uuid.NewString(),
			DT:     time.Now().UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("event intake returned HTTP %d", resp.StatusCode)
	}
	return nil
}
