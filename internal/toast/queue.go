// Package toast holds the in-memory list of transient in-app notifications.
package toast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Type selects the visual treatment of a toast.
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// DefaultDuration applies when Add is called without an explicit duration.
const DefaultDuration = 5 * time.Second

// Sticky disables auto-expiry for an entry.
const Sticky time.Duration = -1

// ids is process-wide so toast ids never repeat, even across queues.
var ids atomic.Int64

// Options are the optional parts of a toast.
type Options struct {
	// Duration is the time until auto-removal. Zero means the queue default,
	// a negative value means the toast stays until dismissed.
	Duration time.Duration
	OnClick  func()
}

// Entry is a single visible toast.
type Entry struct {
	ID        int64
	Type      Type
	Title     string
	Message   string
	Duration  time.Duration
	CreatedAt time.Time
	OnClick   func()
}

// Queue owns the ordered collection of visible toasts, oldest first.
type Queue struct {
	mu              sync.Mutex
	clock           clockwork.Clock
	entries         []Entry
	timers          map[int64]clockwork.Timer
	defaultDuration time.Duration
	limit           int
}

// Option configures a Queue.
type Option func(*Queue)

// WithDefaultDuration overrides DefaultDuration.
func WithDefaultDuration(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.defaultDuration = d
		}
	}
}

// WithLimit caps the number of visible toasts. When the cap is reached the
// oldest entry is evicted. Zero or less means unbounded.
func WithLimit(n int) Option {
	return func(q *Queue) { q.limit = n }
}

// New creates an empty queue driven by clock.
func New(clock clockwork.Clock, opts ...Option) *Queue {
	q := &Queue{
		clock:           clock,
		timers:          make(map[int64]clockwork.Timer),
		defaultDuration: DefaultDuration,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add appends a toast and returns its id.
func (q *Queue) Add(typ Type, title, message string, opts Options) int64 {
	d := opts.Duration
	if d == 0 {
		d = q.defaultDuration
	}

	id := ids.Add(1)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.limit > 0 {
		for len(q.entries) >= q.limit {
			q.removeLocked(q.entries[0].ID)
		}
	}

	q.entries = append(q.entries, Entry{
		ID:        id,
		Type:      typ,
		Title:     title,
		Message:   message,
		Duration:  d,
		CreatedAt: q.clock.Now(),
		OnClick:   opts.OnClick,
	})

	if d > 0 {
		q.timers[id] = q.clock.AfterFunc(d, func() {
			q.Remove(id)
		})
	}

	return id
}

// Remove deletes the toast with the given id and cancels its expiry. It is
// a no-op when the id is absent.
func (q *Queue) Remove(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(id)
}

func (q *Queue) removeLocked(id int64) bool {
	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}
	for i, e := range q.entries {
		if e.ID == id {
			q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// ClearAll removes every toast.
func (q *Queue) ClearAll() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	q.entries = nil
}

// List returns a snapshot of the visible toasts, oldest first.
func (q *Queue) List() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.entries...)
}

// Len returns the number of visible toasts.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
