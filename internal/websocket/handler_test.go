package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/hotword/internal/events"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStreamsSelectedTopics(t *testing.T) {
	bus := events.New(events.WithReplay())
	defer bus.Close()
	srv := httptest.NewServer(Handler(bus))
	defer srv.Close()

	conn := dial(t, srv, "?topics=state")

	// Subscription happens after the upgrade; keep emitting until the
	// client sees the state event.
	deadline := time.Now().Add(2 * time.Second)
	conn.SetReadDeadline(deadline)
	go func() {
		for time.Now().Before(deadline) {
			events.Emit(bus, events.TopicVU, events.VU{RMS: 1})
			events.Emit(bus, events.TopicState, events.StateChange{From: "IDLE", To: "ARMED"})
			time.Sleep(20 * time.Millisecond)
		}
	}()

	var msg struct {
		Topic string             `json:"topic"`
		Data  events.StateChange `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "state", msg.Topic)
	assert.Equal(t, "ARMED", msg.Data.To)
}

func TestRejectsUnknownTopic(t *testing.T) {
	bus := events.New()
	defer bus.Close()
	srv := httptest.NewServer(Handler(bus))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?topics=secrets"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
