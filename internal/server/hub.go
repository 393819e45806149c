package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/forgepanel/backend/internal/gameserver"
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Hub fans game server events out to attached console clients. Console lines
// are batched under a throttle window; state changes flush immediately.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool

	game     GameServer
	throttle time.Duration

	flushMu      sync.Mutex
	pendingLines []string
	flushTimer   *time.Timer
}

func NewHub(game GameServer, throttle time.Duration) *Hub {
	return &Hub{
		clients:  make(map[*client]bool),
		game:     game,
		throttle: throttle,
	}
}

// Run consumes supervisor events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	events, cancel := h.game.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case gameserver.EventConsole:
				h.queueLine(ev.Line)
			case gameserver.EventState:
				h.broadcast(WSMessage{Type: MsgState, Payload: StatePayload{State: ev.State}})
			}
		}
	}
}

func (h *Hub) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	// Flush queued lines to the existing clients first so the backlog in
	// the snapshot is not re-sent to the new one, then register under the
	// lock so no broadcast can get ahead of the snapshot.
	h.flushMu.Lock()
	defer h.flushMu.Unlock()
	lines := h.pendingLines
	h.pendingLines = nil
	if h.flushTimer != nil {
		h.flushTimer.Stop()
		h.flushTimer = nil
	}
	if len(lines) > 0 {
		h.broadcast(WSMessage{Type: MsgConsole, Payload: ConsolePayload{Lines: lines}})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	snapshot := WSMessage{
		Type: MsgSnapshot,
		Payload: SnapshotPayload{
			State: h.game.State(),
			Lines: h.game.Backlog(),
		},
	}
	data, _ := json.Marshal(snapshot)
	// The send buffer is fresh, the snapshot always fits.
	c.send <- data

	return c
}

func (h *Hub) RemoveClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *Hub) queueLine(line string) {
	h.flushMu.Lock()
	defer h.flushMu.Unlock()

	h.pendingLines = append(h.pendingLines, line)

	if h.flushTimer == nil {
		h.flushTimer = time.AfterFunc(h.throttle, h.flush)
	}
}

func (h *Hub) flush() {
	h.flushMu.Lock()
	lines := h.pendingLines
	h.pendingLines = nil
	h.flushTimer = nil
	h.flushMu.Unlock()

	if len(lines) == 0 {
		return
	}
	h.broadcast(WSMessage{Type: MsgConsole, Payload: ConsolePayload{Lines: lines}})
}

func (h *Hub) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			log.Printf("console client %s too slow, disconnecting", c.id)
			h.RemoveClient(c)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
