package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/searchpreview/internal/storage"
)

type recordingSink struct {
	mu     sync.Mutex
	stream string
	events []Event
	err    error
}

func (r *recordingSink) Submit(_ context.Context, stream string, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stream = stream
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Action)
	}
	return out
}

func (r *recordingSink) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*storage.Store, *clock) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	c := &clock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	store.SetClock(c.now)
	return store, c
}

func newTestSession(t *testing.T, store Store, sink Sink) *Session {
	t.Helper()
	s := NewSession(store, StaticLoader(sink), Options{WikiID: "enwiki", IsAnon: true})
	t.Cleanup(s.Close)
	return s
}

func TestEnsureSession_StartsOnce(t *testing.T) {
	store, _ := newTestStore(t)
	sink := &recordingSink{}
	s := newTestSession(t, store, sink)

	require.NoError(t, s.EnsureSession(context.Background()))
	first := s.SessionID()
	require.NotEmpty(t, first)

	require.NoError(t, s.EnsureSession(context.Background()))
	s.Flush()

	assert.Equal(t, first, s.SessionID())
	assert.Equal(t, []string{ActionNewSession}, sink.actions())

	stored, err := store.Get(SessionKey)
	require.NoError(t, err)
	assert.Equal(t, first, stored)

	ev := sink.all()[0]
	assert.Equal(t, -1, ev.ResultDisplayPosition)
	assert.Equal(t, DefaultSchema, ev.Schema)
	assert.Equal(t, "desktop", ev.Platform)
	assert.Equal(t, DefaultStream, sink.stream)
}

func TestEnsureSession_ConcurrentCallsConverge(t *testing.T) {
	store, _ := newTestStore(t)
	sink := &recordingSink{}
	s := newTestSession(t, store, sink)

	var ids atomic.Int32
	s.newID = func() string {
		ids.Add(1)
		time.Sleep(10 * time.Millisecond)
		return "session-id"
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.EnsureSession(context.Background()))
		}()
	}
	wg.Wait()
	s.Flush()

	assert.Equal(t, int32(1), ids.Load())
	assert.Equal(t, []string{ActionNewSession}, sink.actions())
	assert.Equal(t, "session-id", s.SessionID())
}

func TestEnsureSession_RefreshesWindow(t *testing.T) {
	store, c := newTestStore(t)
	sink := &recordingSink{}
	s := newTestSession(t, store, sink)

	require.NoError(t, s.EnsureSession(context.Background()))
	id := s.SessionID()

	for i := 0; i < 3; i++ {
		c.advance(9 * time.Minute)
		require.NoError(t, s.EnsureSession(context.Background()))
	}
	s.Flush()

	assert.Equal(t, id, s.SessionID())
	assert.Equal(t, []string{ActionNewSession}, sink.actions())
}

func TestEnsureSession_ExpiredSessionIsReplaced(t *testing.T) {
	store, c := newTestStore(t)
	sink := &recordingSink{}
	s := newTestSession(t, store, sink)

	n := 0
	s.newID = func() string {
		n++
		return []string{"first", "second"}[n-1]
	}

	require.NoError(t, s.EnsureSession(context.Background()))
	c.advance(11 * time.Minute)
	require.NoError(t, s.EnsureSession(context.Background()))
	s.Flush()

	assert.Equal(t, "second", s.SessionID())
	assert.Equal(t, []string{ActionNewSession, ActionNewSession}, sink.actions())
}

func TestNewSession_ResumesStoredSession(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Set(SessionKey, "earlier-page", DefaultWindow))

	sink := &recordingSink{}
	s := newTestSession(t, store, sink)
	assert.Equal(t, "earlier-page", s.SessionID())

	require.NoError(t, s.EnsureSession(context.Background()))
	s.LogEvent(context.Background(), ActionOpen, 2)
	s.Flush()

	assert.Equal(t, []string{ActionOpen}, sink.actions())
	assert.Equal(t, "earlier-page", sink.all()[0].SessionID)
}

func TestStartSession_NoopWithLiveSession(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Set(SessionKey, "live", DefaultWindow))

	sink := &recordingSink{}
	s := newTestSession(t, store, sink)

	require.NoError(t, s.StartSession(context.Background()))
	s.Flush()

	assert.Empty(t, sink.actions())
	assert.Equal(t, "live", s.SessionID())
}

func TestLogEvent(t *testing.T) {
	store, _ := newTestStore(t)
	sink := &recordingSink{}
	s := NewSession(store, StaticLoader(sink), Options{WikiID: "dewiki", Mobile: true, IsAnon: false})
	t.Cleanup(s.Close)

	s.LogEvent(context.Background(), "", 3)
	s.Flush()
	assert.Empty(t, sink.actions(), "empty action must not start a session")

	s.LogEvent(context.Background(), "dummy-action", 10)
	s.Flush()

	events := sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, ActionNewSession, events[0].Action)

	ev := events[1]
	assert.Equal(t, "dummy-action", ev.Action)
	assert.Equal(t, 10, ev.ResultDisplayPosition)
	assert.Equal(t, "dewiki", ev.WikiID)
	assert.Equal(t, "mobile", ev.Platform)
	assert.False(t, ev.IsAnon)
	assert.Equal(t, events[0].SessionID, ev.SessionID)
}

func TestLogEvent_SinkFailureIsSwallowed(t *testing.T) {
	store, _ := newTestStore(t)
	sink := &recordingSink{err: errors.New("intake down")}
	s := newTestSession(t, store, sink)

	s.LogEvent(context.Background(), ActionOpen, 0)
	s.Flush()

	assert.Equal(t, []string{ActionNewSession, ActionOpen}, sink.actions())
}

func TestLoader_ResolvedOnce(t *testing.T) {
	store, _ := newTestStore(t)
	sink := &recordingSink{}

	var loads atomic.Int32
	loader := func(context.Context) (Sink, error) {
		loads.Add(1)
		return sink, nil
	}
	s := NewSession(store, loader, Options{})
	t.Cleanup(s.Close)

	s.LogEvent(context.Background(), ActionOpen, 0)
	s.LogEvent(context.Background(), ActionClose, 0)
	s.Flush()

	assert.Equal(t, int32(1), loads.Load())
	assert.Len(t, sink.actions(), 3)
}

func TestLoader_Error(t *testing.T) {
	store, _ := newTestStore(t)
	s := NewSession(store, func(context.Context) (Sink, error) {
		return nil, errors.New("module failed to load")
	}, Options{})
	t.Cleanup(s.Close)

	s.LogEvent(context.Background(), ActionOpen, 0)
	s.Flush()
	assert.NotEmpty(t, s.SessionID())
}

func TestClose_DropsLaterEvents(t *testing.T) {
	store, _ := newTestStore(t)
	sink := &recordingSink{}
	s := NewSession(store, StaticLoader(sink), Options{})

	s.LogEvent(context.Background(), ActionOpen, 1)
	s.Close()
	s.Close()
	s.LogEvent(context.Background(), ActionClose, 1)
	s.Flush()

	assert.Equal(t, []string{ActionNewSession, ActionOpen}, sink.actions())
}

func TestRandomToken(t *testing.T) {
	a, b := randomToken(), randomToken()
	assert.NotEqual(t, a, b)
	assert.Greater(t, len(a), 20)
	assert.NotContains(t, a, "-")
}

func TestHTTPSink(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "searchpreview-test", r.Header.Get("User-Agent"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, time.Second, "searchpreview-test")
	err := sink.Submit(context.Background(), DefaultStream, Event{
		Schema:                DefaultSchema,
		Action:                ActionOpen,
		ResultDisplayPosition: 4,
		WikiID:                "enwiki",
		Platform:              "desktop",
		IsAnon:                true,
		SessionID:             "abc",
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultSchema, got["$schema"])
	assert.Equal(t, ActionOpen, got["action"])
	assert.Equal(t, float64(4), got["result_display_position"])
	assert.Equal(t, "abc", got["session_id"])
	meta, ok := got["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, DefaultStream, meta["stream"])
	assert.NotEmpty(t, meta["id"])
}

func TestHTTPSink_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewHTTPSink(srv.URL, time.Second, "").Submit(context.Background(), DefaultStream, Event{})
	assert.Error(t, err)
}
