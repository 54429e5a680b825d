// Package notify carries user-facing notifications (toasts) and cache
// invalidation events from the engine to connected browsers.
//
// Publishers never block: events go into a buffered channel drained by one
// consumer goroutine that fans them out to subscribers in order.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Handler processes an event. Implementations must be safe for concurrent
// calls from different goroutines.
type Handler interface {
	HandleEvent(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Publisher sends events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Bus is an in-process event bus with a single consumer goroutine.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]Handler
	order       []string
	events      chan Event
	done        chan struct{}
	log         *zap.Logger
	startOnce   sync.Once
	stopOnce    sync.Once
}

// NewBus creates a Bus with the given channel buffer size.
func NewBus(bufSize int, log *zap.Logger) *Bus {
	if bufSize < 1 {
		bufSize = 256
	}
	return &Bus{
		subscribers: make(map[string]Handler),
		events:      make(chan Event, bufSize),
		done:        make(chan struct{}),
		log:         log,
	}
}

// Subscribe registers a named handler, replacing any handler with the same
// name. Subscribers may come and go while the bus runs.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[name]; !ok {
		b.order = append(b.order, name)
	}
	b.subscribers[name] = h
}

// Unsubscribe removes a named handler.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[name]; !ok {
		return
	}
	delete(b.subscribers, name)
	for i, n := range b.order {
		if n == name {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish enqueues an event. If the buffer is full the event is dropped and
// a warning is logged.
func (b *Bus) Publish(_ context.Context, evt Event) {
	select {
	case b.events <- evt:
	default:
		b.log.Warn("notify: buffer full, dropping event", zap.String("type", string(evt.Type)))
	}
}

// Start begins the consumer goroutine. It runs until ctx is cancelled or
// Stop is called, draining queued events before exiting.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.run(ctx)
	})
}

func (b *Bus) run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case evt, ok := <-b.events:
			if !ok {
				return
			}
			b.dispatch(ctx, evt)
		case <-ctx.Done():
			for {
				select {
				case evt, ok := <-b.events:
					if !ok {
						return
					}
					b.dispatch(ctx, evt)
				default:
					return
				}
			}
		}
	}
}

// Stop closes the bus and waits for the consumer to finish. Publishing after
// Stop panics, so callers stop publishers first.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.events)
	})
	// A bus that never started has no consumer to wait for.
	b.startOnce.Do(func() { close(b.done) })
	<-b.done
}

func (b *Bus) dispatch(ctx context.Context, evt Event) {
	b.mu.RLock()
	subs := make([]Handler, 0, len(b.order))
	names := make([]string, 0, len(b.order))
	for _, n := range b.order {
		subs = append(subs, b.subscribers[n])
		names = append(names, n)
	}
	b.mu.RUnlock()

	for i, h := range subs {
		if err := h.HandleEvent(ctx, evt); err != nil {
			b.log.Warn("notify: handler error",
				zap.String("handler", names[i]),
				zap.String("type", string(evt.Type)),
				zap.Error(err))
		}
	}
}
