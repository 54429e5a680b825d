package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType distinguishes the payloads carried on the bus.
type EventType string

const (
	EventToast      EventType = "toast"
	EventInvalidate EventType = "invalidate"
)

// Level is a toast severity.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Toast is a transient message shown to the user.
type Toast struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Event is a single bus message. Exactly one of Toast or Keys is set,
// according to Type.
type Event struct {
	Type  EventType `json:"type"`
	Toast *Toast    `json:"toast,omitempty"`
	Keys  []string  `json:"keys,omitempty"`
}

// Notifier shows toasts. Form and table orchestrators depend on this rather
// than on the bus.
type Notifier interface {
	Success(ctx context.Context, msg string)
	Error(ctx context.Context, msg string)
}

// Toaster publishes toasts to the bus.
type Toaster struct {
	pub Publisher
	now func() time.Time
}

// NewToaster creates a Toaster publishing on pub.
func NewToaster(pub Publisher) *Toaster {
	return &Toaster{pub: pub, now: time.Now}
}

func (t *Toaster) Success(ctx context.Context, msg string) { t.send(ctx, LevelSuccess, msg) }
func (t *Toaster) Error(ctx context.Context, msg string)   { t.send(ctx, LevelError, msg) }

func (t *Toaster) send(ctx context.Context, level Level, msg string) {
	t.pub.Publish(ctx, Event{
		Type:  EventToast,
		Toast: &Toast{ID: uuid.NewString(), Level: level, Message: msg, At: t.now()},
	})
}

// Recorder is a Notifier that keeps every toast in memory. Intended for
// tests and for request-scoped collection in the UI server.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *Recorder) Success(_ context.Context, msg string) { r.add(LevelSuccess, msg) }
func (r *Recorder) Error(_ context.Context, msg string)   { r.add(LevelError, msg) }

func (r *Recorder) add(level Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, Toast{ID: uuid.NewString(), Level: level, Message: msg, At: time.Now()})
}

// Toasts returns a copy of the recorded toasts.
func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Toast, len(r.toasts))
	copy(out, r.toasts)
	return out
}

// Multi fans a toast out to several notifiers.
type Multi []Notifier

func (m Multi) Success(ctx context.Context, msg string) {
	for _, n := range m {
		n.Success(ctx, msg)
	}
}

func (m Multi) Error(ctx context.Context, msg string) {
	for _, n := range m {
		n.Error(ctx, msg)
	}
}
