package status

import (
	"sync"
	"time"

	"github.com/pders01/searchpreview/internal/debuglog"
)

// LoadPreviewMetric names the time from opening a preview until its page
// information is shown.
const LoadPreviewMetric = "timing.SearchVue.LoadPreview"

// Timer measures one load at a time and reports it when it completes.
type Timer struct {
	mu      sync.Mutex
	started time.Time
	now     func() time.Time
	report  func(metric string, took time.Duration)
}

// NewTimer returns a Timer reporting through report. A nil report logs the
// measurement at info level.
func NewTimer(report func(metric string, took time.Duration)) *Timer {
	if report == nil {
		report = func(metric string, took time.Duration) {
			debuglog.WithFields(map[string]any{"metric": metric}).Infof("took %s", took)
		}
	}
	return &Timer{now: time.Now, report: report}
}

// SetClock replaces the time source.
func (t *Timer) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Start marks the beginning of a load, replacing any running one.
func (t *Timer) Start() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.started = t.now()
	t.mu.Unlock()
}

// Complete reports the running load and clears it. It does nothing and
// reports false when no load was started.
func (t *Timer) Complete() (time.Duration, bool) {
	if t == nil {
		return 0, false
	}
	t.mu.Lock()
	if t.started.IsZero() {
		t.mu.Unlock()
		return 0, false
	}
	took := t.now().Sub(t.started)
	t.started = time.Time{}
	report := t.report
	t.mu.Unlock()

	report(LoadPreviewMetric, took)
	return took, true
}

// Reset drops the running load without reporting it.
func (t *Timer) Reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.started = time.Time{}
	t.mu.Unlock()
}
