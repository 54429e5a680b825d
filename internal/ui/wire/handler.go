package wire

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewbaird/erpui/internal/notify"
)

// outboxSize bounds the messages queued per connection. A connection that
// falls further behind loses pushes.
const outboxSize = 64

var errSlowConsumer = errors.New("websocket outbox full")

// Subscriber is the part of the notify bus a connection needs.
type Subscriber interface {
	Subscribe(name string, h notify.Handler)
	Unsubscribe(name string)
}

// Handler accepts WebSocket connections and forwards bus events to them.
type Handler struct {
	bus Subscriber
	log *zap.Logger
}

// NewHandler creates a push handler over bus.
func NewHandler(bus Subscriber, log *zap.Logger) *Handler {
	return &Handler{bus: bus, log: log}
}

// ServeHTTP upgrades to WebSocket, subscribes the connection to the bus and
// runs the read loop until the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn("websocket accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := uuid.NewString()
	out := make(chan ServerMessage, outboxSize)
	out <- ServerMessage{Type: "hello", Data: HelloData{ConnectionID: id}}

	name := "ws:" + id
	h.bus.Subscribe(name, notify.HandlerFunc(func(_ context.Context, evt notify.Event) error {
		msg, ok := FromEvent(evt)
		if !ok {
			return nil
		}
		select {
		case out <- msg:
			return nil
		default:
			return fmt.Errorf("%s: %w", name, errSlowConsumer)
		}
	}))
	defer h.bus.Unsubscribe(name)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, out)
		cancel()
	}()
	defer func() { <-writerDone }()

	h.log.Debug("websocket connected", zap.String("conn", id))
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				h.log.Debug("websocket closed", zap.String("conn", id), zap.Int("status", int(status)))
			}
			cancel()
			return
		}

		var reply ServerMessage
		switch msg.Type {
		case "ping":
			reply = ServerMessage{Type: "pong", RequestID: msg.ID}
		default:
			reply = ServerMessage{
				Type:      "error",
				RequestID: msg.ID,
				Data:      ErrorData{Code: "unknown_type", Message: "unknown message type: " + msg.Type},
			}
		}
		select {
		case out <- reply:
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop owns all writes to conn.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan ServerMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-out:
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				if ctx.Err() == nil {
					h.log.Warn("websocket write", zap.String("type", msg.Type), zap.Error(err))
				}
				return
			}
		}
	}
}
