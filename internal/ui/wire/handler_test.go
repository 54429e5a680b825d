package wire

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matthewbaird/erpui/internal/notify"
)

type received struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

func dial(t *testing.T, bus *notify.Bus) (context.Context, *websocket.Conn) {
	t.Helper()
	srv := httptest.NewServer(NewHandler(bus, zap.NewNop()))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return ctx, conn
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) received {
	t.Helper()
	var msg received
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func TestPushesBusEvents(t *testing.T) {
	bus := notify.NewBus(16, zap.NewNop())
	bus.Start(context.Background())
	defer bus.Stop()

	ctx, conn := dial(t, bus)
	hello := read(t, ctx, conn)
	require.Equal(t, "hello", hello.Type)

	notify.NewToaster(bus).Success(ctx, "Department created successfully")
	msg := read(t, ctx, conn)
	require.Equal(t, "toast", msg.Type)
	var toast notify.Toast
	require.NoError(t, json.Unmarshal(msg.Data, &toast))
	assert.Equal(t, notify.LevelSuccess, toast.Level)
	assert.Equal(t, "Department created successfully", toast.Message)

	bus.Publish(ctx, notify.Event{Type: notify.EventInvalidate, Keys: []string{"/api/hr/departments"}})
	msg = read(t, ctx, conn)
	require.Equal(t, "invalidate", msg.Type)
	assert.JSONEq(t, `{"keys":["/api/hr/departments"]}`, string(msg.Data))
}

func TestPingAndUnknown(t *testing.T) {
	bus := notify.NewBus(16, zap.NewNop())
	ctx, conn := dial(t, bus)
	read(t, ctx, conn)

	require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{Type: "ping", ID: "r1"}))
	msg := read(t, ctx, conn)
	assert.Equal(t, "pong", msg.Type)
	assert.Equal(t, "r1", msg.RequestID)

	require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{Type: "execute", ID: "r2"}))
	msg = read(t, ctx, conn)
	assert.Equal(t, "error", msg.Type)
	assert.JSONEq(t, `{"code":"unknown_type","message":"unknown message type: execute"}`, string(msg.Data))
}

func TestFromEvent(t *testing.T) {
	_, ok := FromEvent(notify.Event{Type: notify.EventToast})
	assert.False(t, ok, "toast event without a toast")
	_, ok = FromEvent(notify.Event{Type: "other"})
	assert.False(t, ok)
}
