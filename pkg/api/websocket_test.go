package api

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
	"go.uber.org/goleak"

	"github.com/r3d91ll/chime/pkg/link"
	"github.com/r3d91ll/chime/pkg/metrics"
	"github.com/r3d91ll/chime/pkg/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()
	t.Cleanup(func() {
		hub.Stop()
		<-done
	})
	return hub
}

// registered adds a connectionless client and waits for the hub to see it.
func registered(t *testing.T, hub *Hub, channels ...string) *Client {
	t.Helper()
	c := NewClient(hub, nil)
	c.Subscribe(channels...)
	hub.register <- c
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.clients[c]
	}, time.Second, 5*time.Millisecond)
	return c
}

func next(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
	return WSMessage{}
}

func TestHub_RunAndStop(t *testing.T) {
	hub := NewHub(nil)
	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	hub.Stop()
	hub.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestClient_Subscriptions(t *testing.T) {
	c := NewClient(NewHub(nil), nil)
	c.Subscribe(ChannelFrames, ChannelStatus)
	assert.True(t, c.IsSubscribed(ChannelFrames))
	assert.False(t, c.IsSubscribed(ChannelMeasurements))

	c.Unsubscribe(ChannelFrames)
	assert.False(t, c.IsSubscribed(ChannelFrames))
	assert.ElementsMatch(t, []string{ChannelStatus}, c.Subscriptions())
}

func TestHub_BroadcastOnlyToSubscribers(t *testing.T) {
	hub := startHub(t)
	frames := registered(t, hub, ChannelFrames)
	cycles := registered(t, hub, ChannelMeasurements)
	require.Equal(t, 2, hub.ClientCount())

	require.NoError(t, hub.BroadcastFrame(&FrameData{MessageID: 3, Sent: "101"}))

	msg := next(t, frames)
	assert.Equal(t, EventTypeFrame, msg.Type)
	assert.NotEmpty(t, msg.Timestamp)
	assert.Len(t, cycles.send, 0)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := startHub(t)
	c := registered(t, hub, ChannelFrames)

	hub.unregister <- c
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-c.send
	assert.False(t, ok)
}

func TestHubObserver_StatusTransitions(t *testing.T) {
	hub := startHub(t)
	c := registered(t, hub, ChannelMeasurements, ChannelStatus)
	obs := NewHubObserver(hub)

	cycle := func(n int, res float64) link.CycleEvent {
		return link.CycleEvent{
			MessageID: 1,
			Cycle:     n,
			Mode:      link.ModeEntangled,
			Receiver:  metrics.Snapshot{Resonance: res},
		}
	}

	obs.ObserveCycle(cycle(1, 0.99))
	assert.Equal(t, EventTypeCycle, next(t, c).Type)
	status := next(t, c)
	require.Equal(t, EventTypeStatus, status.Type)
	data := status.Data.(map[string]interface{})
	assert.Equal(t, string(session.ResonanceLocked), data["current"])

	// Same bucket: no status event.
	obs.ObserveCycle(cycle(2, 0.97))
	assert.Equal(t, EventTypeCycle, next(t, c).Type)
	assert.Len(t, c.send, 0)

	obs.ObserveCycle(cycle(3, 0.6))
	assert.Equal(t, EventTypeCycle, next(t, c).Type)
	data = next(t, c).Data.(map[string]interface{})
	assert.Equal(t, string(session.ResonanceLocked), data["previous"])
	assert.Equal(t, string(session.ResonanceDrifting), data["current"])
}

func TestServer_Health(t *testing.T) {
	hub := startHub(t)
	srv := NewServer(&ServerConfig{}, hub, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["clients"])
}

func TestServer_StartAndShutdown(t *testing.T) {
	hub := startHub(t)
	srv := NewServer(&ServerConfig{Host: "127.0.0.1", Port: 0}, hub, nil)

	require.NoError(t, srv.Start())
	assert.True(t, srv.IsRunning())
	assert.Error(t, srv.Start())

	resp, err := http.Get("http://" + srv.ListenAddr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	http.DefaultClient.CloseIdleConnections()

	require.NoError(t, srv.Shutdown(t.Context()))
	assert.False(t, srv.IsRunning())
}

func TestWebSocket_SubscribeAndReceiveFrame(t *testing.T) {
	hub := startHub(t)
	ts := httptest.NewServer(NewServer(&ServerConfig{}, hub, nil).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSMessage{Type: EventTypeSubscribe, Channels: []string{ChannelFrames, "bogus"}}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ack WSMessage
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, EventTypeSubscribe, ack.Type)

	obs := NewHubObserver(hub)
	obs.ObserveCycle(link.CycleEvent{Cycle: 1})
	obs.ObserveFrame(link.FrameEvent{MessageID: 2, Sequence: 1, Total: 2, Sent: "0110", Received: "0100", BitErrors: 1})

	var got struct {
		Type string    `json:"type"`
		Data FrameData `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, EventTypeFrame, got.Type)
	assert.Equal(t, FrameData{MessageID: 2, Sequence: 1, Total: 2, Sent: "0110", Received: "0100", BitErrors: 1}, got.Data)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: EventTypePing}))
	var pong WSMessage
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, EventTypePong, pong.Type)
}

func TestWebSocket_InvalidMessages(t *testing.T) {
	hub := startHub(t)
	ts := httptest.NewServer(NewServer(&ServerConfig{}, hub, nil).Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EventTypeError, msg.Type)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: EventTypeSubscribe}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EventTypeError, msg.Type)
}

func TestMakeOriginChecker(t *testing.T) {
	assert.Nil(t, makeOriginChecker(nil))
	assert.Nil(t, makeOriginChecker([]string{"*"}))

	check := makeOriginChecker([]string{"http://localhost:5173"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req), "missing origin is same-origin")

	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, check(req))
	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))
}
