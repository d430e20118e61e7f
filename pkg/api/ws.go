package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rNintendoSwitch/Parakarry/pkg/logger"
	"github.com/rNintendoSwitch/Parakarry/pkg/mail"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// API-key auth already ran; the feed is server-to-server
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Feed fans relay events out to websocket subscribers. It implements
// mail.EventSink; Publish never blocks, slow clients lose events and are
// disconnected.
type Feed struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan mail.Event
}

func NewFeed() *Feed {
	return &Feed{clients: make(map[*websocket.Conn]chan mail.Event)}
}

// Publish implements mail.EventSink.
func (f *Feed) Publish(ev mail.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn, ch := range f.clients {
		select {
		case ch <- ev:
		default:
			// backpressure: drop the laggard, not the event loop
			delete(f.clients, conn)
			close(ch)
		}
	}
}

func (f *Feed) add(conn *websocket.Conn) chan mail.Event {
	ch := make(chan mail.Event, 64)
	f.mu.Lock()
	f.clients[conn] = ch
	f.mu.Unlock()
	return ch
}

func (f *Feed) remove(conn *websocket.Conn) {
	f.mu.Lock()
	if ch, ok := f.clients[conn]; ok {
		delete(f.clients, conn)
		close(ch)
	}
	f.mu.Unlock()
}

// Subscribers reports the number of connected feed clients.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Handler upgrades GET /v1/events/live to a websocket and streams events
// until the client goes away.
func (f *Feed) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws_upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	ch := f.add(conn)
	defer func() {
		f.remove(conn)
		conn.Close()
	}()

	// drain reads so close frames and pings are processed
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				f.remove(conn)
				return
			}
		}
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
