package engine

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const feedWriteWait = 10 * time.Second

// Feed broadcasts engine events to websocket subscribers. A slow or
// dead subscriber is dropped rather than allowed to stall the engine.
type Feed struct {
	logger   Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewFeed creates an empty feed.
func NewFeed(logger Logger) *Feed {
	return &Feed{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the subscriber.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	f.mu.Lock()
	f.conns[conn] = struct{}{}
	f.mu.Unlock()
	f.logger.Info("feed subscriber connected", "remote", conn.RemoteAddr())

	// Drain incoming frames so pings and close handshakes are
	// processed; the feed itself is write-only.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				f.drop(conn)
				return
			}
		}
	}()
}

// Publish sends the event to every subscriber.
func (f *Feed) Publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		f.logger.Error("feed event marshal failed", "type", event.Type, "error", err)
		return
	}

	f.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(f.conns))
	for conn := range f.conns {
		conns = append(conns, conn)
	}
	f.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			f.logger.Warn("feed subscriber dropped", "remote", conn.RemoteAddr(), "error", err)
			f.drop(conn)
		}
	}
}

// Subscribers reports the current connection count.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// Close disconnects every subscriber.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.conns {
		conn.Close()
		delete(f.conns, conn)
	}
}

func (f *Feed) drop(conn *websocket.Conn) {
	f.mu.Lock()
	if _, ok := f.conns[conn]; ok {
		delete(f.conns, conn)
		conn.Close()
	}
	f.mu.Unlock()
}
