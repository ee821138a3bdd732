// Package websocket streams bus events to diagnostics clients.
package websocket

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/neboloop/hotword/internal/events"
	"github.com/neboloop/hotword/internal/httputil"
	"github.com/neboloop/hotword/internal/logging"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	sendBuffer = 64
)

// Topics a client may ask for. Without ?topics= it gets all of them.
var Topics = []string{events.TopicVU, events.TopicState, events.TopicDetection, events.TopicUtterance, events.TopicSource}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server binds loopback by default; any page on the host may watch.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is one event on the wire.
type Message struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

// Handler upgrades the request and forwards the selected topics until the
// client goes away. Slow clients lose messages rather than stall the bus.
func Handler(bus *events.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topics := httputil.QueryList(r, "topics")
		if len(topics) == 0 {
			topics = Topics
		}
		for _, t := range topics {
			if !slices.Contains(Topics, t) {
				httputil.ErrorWithCode(w, http.StatusBadRequest, "unknown topic: "+t)
				return
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Errorf("websocket upgrade error: %v", err)
			return
		}
		clientID := "client-" + uuid.NewString()[:8]
		log := logging.For("websocket").With("client", clientID)
		log.Debug("client connected", "topics", topics)

		send := make(chan Message, sendBuffer)
		var subs []events.Subscription
		for _, topic := range topics {
			subs = append(subs, events.Subscribe(bus, topic, func(_ context.Context, data any) error {
				select {
				case send <- Message{Topic: topic, Data: data}:
				default:
				}
				return nil
			}, true))
		}
		defer func() {
			for _, s := range subs {
				s.Unsubscribe()
			}
			conn.Close()
			log.Debug("client disconnected")
		}()

		done := make(chan struct{})
		go readPump(conn, done)
		writePump(conn, send, done)
	}
}

// readPump discards client input and notices when the peer closes.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, send <-chan Message, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
