package eventbus

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/chargepoint/central-system/internal/logging"
)

// controlMessage is what a dashboard client sends to manage its
// subscriptions: {"type":"subscribe","data":{"stationId":"..."}}.
type controlMessage struct {
	Type string `json:"type"`
	Data struct {
		StationID string `json:"stationId"`
	} `json:"data"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades a dashboard client's HTTP request to a WebSocket, joins
// it to the bus, and drives both directions until the connection closes.
func Handler(bus *Bus, log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnf("dashboard websocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		subscriberID := uuid.NewString()
		sub := bus.Join(subscriberID)
		defer bus.Leave(subscriberID)

		done := make(chan struct{})
		go pushEvents(conn, sub, done)

		readControlMessages(conn, sub, log)
		close(done)
	}
}

func pushEvents(conn *websocket.Conn, sub *Subscriber, done <-chan struct{}) {
	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func readControlMessages(conn *websocket.Conn, sub *Subscriber, log *logging.Logger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warnf("dashboard client sent an unparseable control message: %v", err)
			continue
		}

		switch msg.Type {
		case "subscribe":
			sub.Subscribe(msg.Data.StationID)
		case "unsubscribe":
			sub.Unsubscribe(msg.Data.StationID)
		}
	}
}
