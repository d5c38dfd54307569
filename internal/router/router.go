// Package router is the single dispatch point for decoded server frames:
// every event is fanned out to registered listeners, then applied to the
// read model through the reconciler.
package router

import (
	"sync"

	"github.com/lbarreto/chatsync/internal/protocol"
	"go.uber.org/zap"
)

// Listener receives every decoded event. Listeners run in registration
// order; a panicking listener is recovered and logged so it cannot block
// the others or the cache update.
type Listener func(protocol.Event)

// Applier consumes the event after listener fan-out, normally the cache
// reconciler.
type Applier interface {
	Apply(protocol.Event)
}

// Hooks are optional observation points for metrics. Observed fires
// once per routed event with the event type; Dropped fires once per
// malformed frame.
type Hooks struct {
	Observed func(eventType string)
	Dropped  func()
}

// Router decodes raw frames and dispatches the resulting events.
type Router struct {
	mu        sync.RWMutex
	listeners []entry
	nextID    int

	applier Applier
	logger  *zap.Logger
	hooks   Hooks
}

type entry struct {
	id int
	fn Listener
}

// New creates a router.
func New(applier Applier, logger *zap.Logger, hooks Hooks) *Router {
	return &Router{
		applier: applier,
		logger:  logger,
		hooks:   hooks,
	}
}

// AddListener registers a listener and returns a function that removes it.
func (r *Router) AddListener(fn Listener) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners = append(r.listeners, entry{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, e := range r.listeners {
			if e.id == id {
				r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
				return
			}
		}
	}
}

// Route decodes one raw frame and dispatches it. Malformed frames are
// logged and dropped; the connection stays up.
func (r *Router) Route(raw []byte) {
	evt, err := protocol.Decode(raw)
	if err != nil {
		r.logger.Warn("dropping malformed frame", zap.Error(err))
		if r.hooks.Dropped != nil {
			r.hooks.Dropped()
		}
		return
	}
	r.Dispatch(evt)
}

// Dispatch fans an already-decoded event out to listeners, then applies
// it to the caches. Events are processed strictly in call order; the
// single socket read loop is the only caller in production.
func (r *Router) Dispatch(evt protocol.Event) {
	if r.hooks.Observed != nil {
		r.hooks.Observed(evt.EventType())
	}

	r.mu.RLock()
	listeners := make([]entry, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()

	for _, e := range listeners {
		r.notify(e, evt)
	}

	if r.applier != nil {
		r.applier.Apply(evt)
	}
}

func (r *Router) notify(e entry, evt protocol.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("listener panicked",
				zap.Int("listener", e.id),
				zap.String("event", evt.EventType()),
				zap.Any("panic", rec))
		}
	}()
	e.fn(evt)
}
