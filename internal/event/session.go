// Package event keeps the analytics session of a results page and submits
// usage events for it.
package event

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pders01/searchpreview/internal/debuglog"
	"github.com/pders01/searchpreview/internal/storage"
)

const (
	// SessionKey is the store key of the session id.
	SessionKey = "searchvue-session-id"

	DefaultWindow = 10 * time.Minute
	DefaultSchema = "/analytics/mediawiki/searchpreview/3.0.0"
	DefaultStream = "mediawiki.searchpreview"

	ActionNewSession = "new-session"
	ActionOpen       = "open-searchpreview"
	ActionClose      = "close-searchpreview"

	queueSize     = 64
	submitTimeout = 10 * time.Second
)

// Event is a single analytics event.
type Event struct {
	Schema                string `json:"$schema"`
	Action                string `json:"action"`
	ResultDisplayPosition int    `json:"result_display_position"`
	WikiID                string `json:"wiki_id"`
	Platform              string `json:"platform"`
	IsAnon                bool   `json:"is_anon"`
	SessionID             string `json:"session_id"`
}

// Store persists the session id with an expiry.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string, ttl time.Duration) error
	Touch(key string, ttl time.Duration) error
}

type Options struct {
	WikiID string
	Mobile bool
	IsAnon bool
	Schema string
	Stream string
	Window time.Duration
}

// Session is the analytics session of one results page.
type Session struct {
	store  Store
	loader Loader

	schema   string
	stream   string
	wikiID   string
	platform string
	isAnon   bool
	window   time.Duration

	mu        sync.Mutex
	sessionID string
	group     singleflight.Group
	newID     func() string

	sinkOnce sync.Once
	sink     Sink
	sinkErr  error

	workerOnce sync.Once
	closeOnce  sync.Once
	queue      chan Event
	pending    sync.WaitGroup

	log *debuglog.FieldLogger
}

// NewSession picks up a session id left in store by an earlier page.
func NewSession(store Store, loader Loader, opts Options) *Session {
	s := &Session{
		store:    store,
		loader:   loader,
		schema:   opts.Schema,
		stream:   opts.Stream,
		wikiID:   opts.WikiID,
		platform: "desktop",
		isAnon:   opts.IsAnon,
		window:   opts.Window,
		newID:    randomToken,
		queue:    make(chan Event, queueSize),
		log:      debuglog.WithFields(map[string]any{"component": "event"}),
	}
	if opts.Mobile {
		s.platform = "mobile"
	}
	if s.schema == "" {
		s.schema = DefaultSchema
	}
	if s.stream == "" {
		s.stream = DefaultStream
	}
	if s.window <= 0 {
		s.window = DefaultWindow
	}
	if id, err := store.Get(SessionKey); err == nil {
		s.sessionID = id
	}
	return s
}

// randomToken joins a random component with the current time in base 36.
func randomToken() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	return random + strconv.FormatInt(time.Now().UnixMilli(), 36)
}

// SessionID returns the live session id, or "".
func (s *Session) SessionID() string {
	return s.liveID()
}

// liveID returns the in-memory id, discarding it when its persisted copy
// has expired.
func (s *Session) liveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID == "" {
		return ""
	}
	stored, err := s.store.Get(SessionKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.log.Debugf("session %s expired", s.sessionID)
		s.sessionID = ""
	case err != nil:
		s.log.Warnf("reading session: %v", err)
	case stored != s.sessionID:
		// another page started a session in the meantime
		s.sessionID = stored
	}
	return s.sessionID
}

// EnsureSession extends a live session by the session window, or starts a
// new one.
func (s *Session) EnsureSession(ctx context.Context) error {
	if id := s.liveID(); id != "" {
		err := s.store.Touch(SessionKey, s.window)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		s.mu.Lock()
		s.sessionID = ""
		s.mu.Unlock()
	}
	return s.StartSession(ctx)
}

// StartSession creates and persists a session id and emits a new-session
// event. Concurrent callers share one attempt, and a caller arriving after a
// session exists does nothing.
func (s *Session) StartSession(ctx context.Context) error {
	_, err, _ := s.group.Do("start", func() (any, error) {
		if s.liveID() != "" {
			return nil, nil
		}

		id := s.newID()
		var err error
		if err = s.store.Set(SessionKey, id, s.window); err != nil {
			s.log.Errorf("persisting session: %v", err)
		}

		s.mu.Lock()
		s.sessionID = id
		s.mu.Unlock()

		s.log.Debugf("started session %s", id)
		s.enqueue(ctx, s.event(id, ActionNewSession, -1))
		return nil, err
	})
	return err
}

// LogEvent emits action for the result at selectedIndex. Without a session
// one is started first and the event is logged once it exists.
func (s *Session) LogEvent(ctx context.Context, action string, selectedIndex int) {
	s.logEvent(ctx, action, selectedIndex, false)
}

func (s *Session) logEvent(ctx context.Context, action string, selectedIndex int, retried bool) {
	if action == "" {
		return
	}

	id := s.liveID()
	if id == "" {
		if retried {
			s.log.Warnf("dropping %s event: no session", action)
			return
		}
		if err := s.StartSession(ctx); err != nil {
			s.log.Warnf("starting session: %v", err)
		}
		s.logEvent(ctx, action, selectedIndex, true)
		return
	}

	s.enqueue(ctx, s.event(id, action, selectedIndex))
}

func (s *Session) event(id, action string, selectedIndex int) Event {
	return Event{
		Schema:                s.schema,
		Action:                action,
		ResultDisplayPosition: selectedIndex,
		WikiID:                s.wikiID,
		Platform:              s.platform,
		IsAnon:                s.isAnon,
		SessionID:             id,
	}
}

// enqueue hands ev to the submit worker without blocking. Events are
// submitted in the order they were logged.
func (s *Session) enqueue(ctx context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue == nil {
		s.log.Warnf("session closed, dropping %s", ev.Action)
		return
	}
	s.workerOnce.Do(func() {
		go s.run(context.WithoutCancel(ctx), s.queue)
	})

	s.pending.Add(1)
	select {
	case s.queue <- ev:
	default:
		s.pending.Done()
		s.log.Warnf("event queue full, dropping %s", ev.Action)
	}
}

func (s *Session) run(ctx context.Context, queue <-chan Event) {
	for ev := range queue {
		s.submit(ctx, ev)
		s.pending.Done()
	}
}

func (s *Session) submit(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	sink, err := s.resolveSink(ctx)
	if err != nil {
		s.log.Errorf("loading event sink: %v", err)
		return
	}
	if err := sink.Submit(ctx, s.stream, ev); err != nil {
		s.log.With("action", ev.Action).Errorf("submitting event: %v", err)
	}
}

func (s *Session) resolveSink(ctx context.Context) (Sink, error) {
	s.sinkOnce.Do(func() {
		if s.loader == nil {
			s.sink = NopSink{}
			return
		}
		s.sink, s.sinkErr = s.loader(ctx)
		if s.sink == nil && s.sinkErr == nil {
			s.sink = NopSink{}
		}
	})
	return s.sink, s.sinkErr
}

// Flush blocks until every logged event has been submitted or dropped.
func (s *Session) Flush() {
	s.pending.Wait()
}

// Close flushes pending events and stops the submit worker. Events logged
// after Close are dropped.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.Flush()
		s.mu.Lock()
		close(s.queue)
		s.queue = nil
		s.mu.Unlock()
	})
}
