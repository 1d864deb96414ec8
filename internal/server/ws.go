package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/biomech/internal/engine"
	"github.com/ayusman/biomech/internal/landmark"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 8
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// DataUpdate is the websocket message sent for every new snapshot.
type DataUpdate struct {
	Type string     `json:"type"`
	Data UpdateData `json:"data"`
}

// UpdateData carries the fused landmarks, the skeleton connections to draw
// and the joint states.
type UpdateData struct {
	Timestamp   float64                      `json:"timestamp"`
	Cameras     []string                     `json:"cameras"`
	Landmarks   landmark.Set                 `json:"landmarks"`
	Connections []landmark.Connection        `json:"connections"`
	Angles      map[string]engine.JointState `json:"angles"`
}

// NewDataUpdate builds the message for snap.
func NewDataUpdate(snap engine.Snapshot) DataUpdate {
	return DataUpdate{
		Type: "data_update",
		Data: UpdateData{
			Timestamp:   snap.Timestamp,
			Cameras:     snap.Cameras,
			Landmarks:   snap.Landmarks,
			Connections: landmark.Connections(),
			Angles:      snap.Joints,
		},
	}
}

// client is one websocket connection with its outbound queue.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts snapshot updates to websocket clients. A client whose
// queue is full is disconnected.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]bool)}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run broadcasts every snapshot from snaps until ctx is done or snaps is
// closed.
func (h *Hub) Run(ctx context.Context, snaps <-chan engine.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			msg, err := json.Marshal(NewDataUpdate(snap))
			if err != nil {
				log.Printf("websocket encode error: %v", err)
				continue
			}
			h.Broadcast(msg)
		}
	}
}

// Broadcast queues msg for every client.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			close(c.send)
			log.Printf("websocket: dropped slow client")
		}
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.writePump(c)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
