package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer runs a Registry behind an httptest WebSocket endpoint and
// returns the registry plus the ws:// URL to dial.
func startTestServer(t *testing.T) (*Registry, string) {
	t.Helper()
	registry := NewRegistry(2*time.Second, 0)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		registry.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)

	return registry, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialTestServer(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeMessage(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

// subscribeAndAck sends a subscribe message and returns the assigned
// subscription id from the subscribed reply.
func subscribeAndAck(t *testing.T, conn *websocket.Conn, filters string) string {
	t.Helper()
	msg := map[string]any{"type": MsgSubscribe}
	if filters != "" {
		msg["filters"] = json.RawMessage(filters)
	}
	writeMessage(t, conn, msg)

	reply := readMessage(t, conn)
	require.Equal(t, MsgSubscribed, reply["type"])
	subID, _ := reply["subscription_id"].(string)
	require.NotEmpty(t, subID)
	return subID
}

func TestHandleConnection(t *testing.T) {
	t.Run("sends connected with session id", func(t *testing.T) {
		registry, url := startTestServer(t)
		conn := dialTestServer(t, url)

		msg := readMessage(t, conn)
		assert.Equal(t, MsgConnected, msg["type"])
		assert.NotEmpty(t, msg["session_id"])
		assert.NotEmpty(t, msg["server_time"])
		assert.Equal(t, 1, registry.ActiveSessions())
	})

	t.Run("deregisters on close", func(t *testing.T) {
		registry, url := startTestServer(t)
		conn := dialTestServer(t, url)
		readMessage(t, conn)

		require.NoError(t, conn.Close(websocket.StatusNormalClosure, "done"))
		require.Eventually(t, func() bool {
			return registry.ActiveSessions() == 0
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("invalid JSON elicits error without closing", func(t *testing.T) {
		_, url := startTestServer(t)
		conn := dialTestServer(t, url)
		readMessage(t, conn)

		ctx := context.Background()
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
		msg := readMessage(t, conn)
		assert.Equal(t, MsgError, msg["type"])
		assert.Equal(t, ErrCodeInvalidMessage, msg["code"])

		// Connection still works.
		subscribeAndAck(t, conn, "")
	})

	t.Run("unknown message type elicits error without closing", func(t *testing.T) {
		_, url := startTestServer(t)
		conn := dialTestServer(t, url)
		readMessage(t, conn)

		writeMessage(t, conn, map[string]string{"type": "teleport"})
		msg := readMessage(t, conn)
		assert.Equal(t, MsgError, msg["type"])
		assert.Equal(t, ErrCodeUnknownMessageType, msg["code"])

		subscribeAndAck(t, conn, "")
	})

	t.Run("invalid filters are rejected", func(t *testing.T) {
		_, url := startTestServer(t)
		conn := dialTestServer(t, url)
		readMessage(t, conn)

		writeMessage(t, conn, map[string]any{
			"type":    MsgSubscribe,
			"filters": json.RawMessage(`{"source_app": 42}`),
		})
		msg := readMessage(t, conn)
		assert.Equal(t, MsgError, msg["type"])
		assert.Equal(t, ErrCodeInvalidFilters, msg["code"])
	})
}

func TestFanout(t *testing.T) {
	t.Run("delivers matching events only", func(t *testing.T) {
		registry, url := startTestServer(t)
		conn := dialTestServer(t, url)
		readMessage(t, conn)

		subID := subscribeAndAck(t, conn, `{"severity": ["error", "fatal"]}`)

		registry.Fanout(entryWith("api", "info"))  // filtered out
		registry.Fanout(entryWith("api", "error")) // delivered

		msg := readMessage(t, conn)
		assert.Equal(t, MsgLog, msg["type"])
		assert.Equal(t, subID, msg["subscription_id"])
		data, _ := msg["data"].(map[string]any)
		require.NotNil(t, data)
		assert.Equal(t, "error", data["severity"])
	})

	t.Run("independent subscriptions each receive a copy", func(t *testing.T) {
		registry, url := startTestServer(t)
		conn := dialTestServer(t, url)
		readMessage(t, conn)

		subA := subscribeAndAck(t, conn, "")
		subB := subscribeAndAck(t, conn, "")

		registry.Fanout(entryWith("api", "info"))

		got := map[string]bool{}
		for i := 0; i < 2; i++ {
			msg := readMessage(t, conn)
			require.Equal(t, MsgLog, msg["type"])
			got[msg["subscription_id"].(string)] = true
		}
		assert.True(t, got[subA])
		assert.True(t, got[subB])
	})

	t.Run("sessions with different filters each judge independently", func(t *testing.T) {
		registry, url := startTestServer(t)

		connA := dialTestServer(t, url)
		readMessage(t, connA)
		subA := subscribeAndAck(t, connA, `{"severity": ["error"]}`)

		connB := dialTestServer(t, url)
		readMessage(t, connB)
		subB := subscribeAndAck(t, connB, `{"min_severity": "warn"}`)

		registry.Fanout(entryWith("api", "info"))  // matches neither
		registry.Fanout(entryWith("api", "error")) // matches both

		msgA := readMessage(t, connA)
		require.Equal(t, MsgLog, msgA["type"])
		assert.Equal(t, subA, msgA["subscription_id"])

		msgB := readMessage(t, connB)
		require.Equal(t, MsgLog, msgB["type"])
		assert.Equal(t, subB, msgB["subscription_id"])
	})

	t.Run("dead session does not affect others", func(t *testing.T) {
		registry, url := startTestServer(t)

		dead := dialTestServer(t, url)
		readMessage(t, dead)
		subscribeAndAck(t, dead, "")

		alive := dialTestServer(t, url)
		readMessage(t, alive)
		subAlive := subscribeAndAck(t, alive, "")

		require.NoError(t, dead.Close(websocket.StatusNormalClosure, "gone"))
		require.Eventually(t, func() bool {
			return registry.ActiveSessions() == 1
		}, 2*time.Second, 10*time.Millisecond)

		registry.Fanout(entryWith("api", "warn"))

		msg := readMessage(t, alive)
		assert.Equal(t, MsgLog, msg["type"])
		assert.Equal(t, subAlive, msg["subscription_id"])
	})
}

func TestSubscriptionLifecycle(t *testing.T) {
	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		registry, url := startTestServer(t)
		conn := dialTestServer(t, url)
		connected := readMessage(t, conn)
		sessionID := connected["session_id"].(string)

		subID := subscribeAndAck(t, conn, "")
		writeMessage(t, conn, map[string]string{"type": MsgUnsubscribe, "subscription_id": subID})
		reply := readMessage(t, conn)
		assert.Equal(t, MsgUnsubscribed, reply["type"])

		require.Eventually(t, func() bool {
			return registry.subscriptionCount(sessionID) == 0
		}, 2*time.Second, 10*time.Millisecond)

		// Nothing matches anymore: a later subscribe proves no log message
		// arrived in between.
		registry.Fanout(entryWith("api", "error"))
		subscribeAndAck(t, conn, "")
	})

	t.Run("pause drops, resume redelivers", func(t *testing.T) {
		registry, url := startTestServer(t)
		conn := dialTestServer(t, url)
		readMessage(t, conn)

		subID := subscribeAndAck(t, conn, "")

		writeMessage(t, conn, map[string]string{"type": MsgPause, "subscription_id": subID})
		reply := readMessage(t, conn)
		require.Equal(t, MsgPaused, reply["type"])

		// Dropped while paused, not buffered.
		registry.Fanout(entryWith("api", "error"))

		writeMessage(t, conn, map[string]string{"type": MsgResume, "subscription_id": subID})
		reply = readMessage(t, conn)
		require.Equal(t, MsgResumed, reply["type"])

		registry.Fanout(entryWith("api", "warn"))
		msg := readMessage(t, conn)
		require.Equal(t, MsgLog, msg["type"])
		data, _ := msg["data"].(map[string]any)
		require.NotNil(t, data)
		assert.Equal(t, "warn", data["severity"])
	})

	t.Run("unsubscribe without id is an error", func(t *testing.T) {
		_, url := startTestServer(t)
		conn := dialTestServer(t, url)
		readMessage(t, conn)

		writeMessage(t, conn, map[string]string{"type": MsgUnsubscribe})
		msg := readMessage(t, conn)
		assert.Equal(t, MsgError, msg["type"])
		assert.Equal(t, ErrCodeInvalidMessage, msg["code"])
	})
}
