package conn

import (
	"log/slog"
	"sync"

	"github.com/workspace-chat/backend/internal/model"
)

// Handler receives events of the kind it subscribed to.
type Handler func(ev model.Event)

type subscription struct {
	id uint64
	fn Handler
}

// Registry maps event kinds to ordered handler lists.
type Registry struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[model.EventKind][]subscription
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[model.EventKind][]subscription),
		logger:   logger,
	}
}

// Subscribe appends fn to the handlers of kind and returns a function that
// removes it again. The returned function may be called more than once.
func (r *Registry) Subscribe(kind model.EventKind, fn Handler) func() {
	if fn == nil {
		return func() {}
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.handlers[kind] = append(r.handlers[kind], subscription{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(kind, id) })
	}
}

func (r *Registry) remove(kind model.EventKind, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.handlers[kind]
	for i, s := range subs {
		if s.id == id {
			r.handlers[kind] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(r.handlers[kind]) == 0 {
		delete(r.handlers, kind)
	}
}

// Publish calls every handler of ev.Kind in subscription order. A panicking
// handler is logged and does not prevent the remaining handlers from running.
func (r *Registry) Publish(ev model.Event) {
	r.mu.RLock()
	subs := make([]subscription, len(r.handlers[ev.Kind]))
	copy(subs, r.handlers[ev.Kind])
	r.mu.RUnlock()

	for _, s := range subs {
		r.call(s.fn, ev)
	}
}

func (r *Registry) call(fn Handler, ev model.Event) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("event handler panicked", "event", ev.Kind, "panic", p)
		}
	}()
	fn(ev)
}

// Count returns the number of handlers subscribed to kind.
func (r *Registry) Count(kind model.EventKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[kind])
}
