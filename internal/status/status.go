// Package status tracks the lifecycle of the preview's API requests.
package status

import "sync"

// Kind identifies a request type.
type Kind string

const (
	Query Kind = "query"
	Media Kind = "media"
)

// Status is the lifecycle state of one request kind.
type Status int

const (
	NotStarted Status = iota
	InProgress
	Done
	Error
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case NotStarted:
		return "Not started"
	case InProgress:
		return "In progress"
	case Done:
		return "Done"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Tracker is a passive status board shared by the coordinators.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[Kind]Status
}

// NewTracker returns a tracker with every known kind NotStarted.
func NewTracker() *Tracker {
	return &Tracker{
		statuses: map[Kind]Status{
			Query: NotStarted,
			Media: NotStarted,
		},
	}
}

// SetStatus records status for kind. Unknown kinds are ignored.
func (t *Tracker) SetStatus(kind Kind, status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.statuses[kind]; ok {
		t.statuses[kind] = status
	}
}

// Status returns the current status of kind.
func (t *Tracker) Status(kind Kind) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.statuses[kind]
}

// Reset returns every kind to NotStarted.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for kind := range t.statuses {
		t.statuses[kind] = NotStarted
	}
}

// IsLoading reports whether any request is in progress.
func (t *Tracker) IsLoading() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.statuses {
		if s == InProgress {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of all statuses.
func (t *Tracker) Snapshot() map[Kind]Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Kind]Status, len(t.statuses))
	for k, v := range t.statuses {
		out[k] = v
	}
	return out
}
