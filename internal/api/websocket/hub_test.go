package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(zaptest.NewLogger(t))
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(srv.Close)

	return hub, srv
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	hub, srv := startHub(t)
	first := dial(t, hub, srv)
	second := dial(t, hub, srv)

	require.Eventually(t, func() bool { return hub.GetClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(NewStateChangedMessage("Sensors.pressure", 1.5, true))

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg struct {
			Type MessageType      `json:"type"`
			Data StateChangedData `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, MessageTypeStateChanged, msg.Type)
		assert.Equal(t, "Sensors.pressure", msg.Data.Key)
		assert.EqualValues(t, 1.5, msg.Data.Value)
		assert.True(t, msg.Data.Ack)
	}
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, hub, srv)

	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	assert.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_StopClosesClients(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, hub, srv)

	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) ||
		strings.Contains(err.Error(), "EOF"), err.Error())
	assert.Equal(t, 0, hub.GetClientCount())
}

func TestNewCycleMessage(t *testing.T) {
	ok := NewCycleMessage(CycleData{CycleID: "a", HostAlive: true})
	assert.Equal(t, MessageTypeCycleCompleted, ok.Type)

	failed := NewCycleMessage(CycleData{CycleID: "b", Error: "host unreachable", Fatal: true})
	assert.Equal(t, MessageTypeCycleFailed, failed.Type)
}
