// Package presence tracks which participants of a workspace are typing.
package presence

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultWindow is how long a typing signal stays valid without a refresh.
const DefaultWindow = 3 * time.Second

// Tracker holds the set of users currently typing. Every entry carries an
// expiry; expired entries are invisible to readers even before Sweep
// evicts them.
type Tracker struct {
	clock  clockwork.Clock
	window time.Duration

	mu       sync.Mutex
	entries  map[string]time.Time
	onChange func(typers []string)
	closed   bool
	stop     chan struct{}
}

// NewTracker creates a tracker. A nil clock uses the real clock and a
// non-positive window uses DefaultWindow.
func NewTracker(clock clockwork.Clock, window time.Duration) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		clock:   clock,
		window:  window,
		entries: make(map[string]time.Time),
		stop:    make(chan struct{}),
	}
}

// Window returns the expiry window.
func (t *Tracker) Window() time.Duration {
	return t.window
}

// OnChange registers a callback fired when the visible set changes
// through a start, stop or sweep.
func (t *Tracker) OnChange(fn func(typers []string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// TypingStarted inserts or refreshes name with a fresh expiry.
func (t *Tracker) TypingStarted(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	expiry, ok := t.entries[name]
	changed := !ok || !now.Before(expiry)
	t.entries[name] = now.Add(t.window)
	t.mu.Unlock()

	if changed {
		t.notify()
	}
}

// TypingStopped removes name regardless of its expiry.
func (t *Tracker) TypingStopped(name string) {
	name = strings.TrimSpace(name)

	t.mu.Lock()
	expiry, ok := t.entries[name]
	delete(t.entries, name)
	visible := ok && t.clock.Now().Before(expiry)
	t.mu.Unlock()

	if visible {
		t.notify()
	}
}

// Typers returns the sorted names whose expiry has not passed.
func (t *Tracker) Typers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typersLocked(t.clock.Now())
}

func (t *Tracker) typersLocked(now time.Time) []string {
	typers := make([]string, 0, len(t.entries))
	for name, expiry := range t.entries {
		if now.Before(expiry) {
			typers = append(typers, name)
		}
	}
	slices.Sort(typers)
	return typers
}

// IsTyping reports whether name is currently visible as typing.
func (t *Tracker) IsTyping(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	expiry, ok := t.entries[name]
	return ok && t.clock.Now().Before(expiry)
}

// Sweep evicts expired entries and returns how many were removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	now := t.clock.Now()
	evicted := 0
	for name, expiry := range t.entries {
		if !now.Before(expiry) {
			delete(t.entries, name)
			evicted++
		}
	}
	t.mu.Unlock()

	if evicted > 0 {
		t.notify()
	}
	return evicted
}

// Run sweeps every half window until ctx is done or the tracker is closed.
func (t *Tracker) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.window / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.Chan():
			t.Sweep()
		}
	}
}

// Close stops the sweeper and clears the set. Safe to call more than once.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.entries = make(map[string]time.Time)
	t.onChange = nil
	close(t.stop)
}

func (t *Tracker) notify() {
	t.mu.Lock()
	fn := t.onChange
	var typers []string
	if fn != nil {
		typers = t.typersLocked(t.clock.Now())
	}
	t.mu.Unlock()

	if fn != nil {
		fn(typers)
	}
}
