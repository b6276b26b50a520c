package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/events"
	"github.com/maestro/maestro/internal/events/bus"
	"github.com/maestro/maestro/pkg/ws"
)

func setup(t *testing.T) (bus.EventBus, *gorillaws.Conn, context.CancelFunc) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Default()
	eventBus := bus.NewMemoryEventBus(log)

	hub := NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	bridge := NewBridge(hub, eventBus, log)
	require.NoError(t, bridge.Start())

	router := gin.New()
	NewHandler(hub, log).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return eventBus, conn, cancel
}

func readFrame(t *testing.T, conn *gorillaws.Conn) ws.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame ws.Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestPingPong(t *testing.T) {
	_, conn, cancel := setup(t)
	defer cancel()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	frame := readFrame(t, conn)
	assert.Equal(t, ws.TypePong, frame.Type)
}

func TestBridgeRelaysBusEvents(t *testing.T) {
	eventBus, conn, cancel := setup(t)
	defer cancel()

	// The pong round trip guarantees registration finished before the
	// publish below.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	readFrame(t, conn)

	err := eventBus.Publish(context.Background(), events.TaskCreated,
		bus.NewEvent(events.TaskCreated, "test", map[string]string{"id": "t1"}))
	require.NoError(t, err)

	frame := readFrame(t, conn)
	assert.Equal(t, ws.TypeEvent, frame.Type)
	assert.Equal(t, events.TaskCreated, frame.Event)
	data := frame.Data.(map[string]interface{})
	assert.Equal(t, "t1", data["id"])
	assert.False(t, frame.Timestamp.IsZero())
}

func TestEnqueueAfterCloseDoesNotPanic(t *testing.T) {
	log := logger.Default()
	c := NewClient("c1", nil, nil, log)

	c.closeSend()
	c.closeSend() // second close is a no-op

	// A pong racing the hub's close must be dropped, not panic.
	c.enqueue(ws.Pong())
	assert.False(t, c.trySend([]byte("late")))
}

func TestShutdownClosesClientsNormally(t *testing.T) {
	_, conn, cancel := setup(t)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	readFrame(t, conn)

	cancel()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, gorillaws.IsCloseError(err, gorillaws.CloseNormalClosure),
				"expected normal closure, got %v", err)
			return
		}
	}
}
