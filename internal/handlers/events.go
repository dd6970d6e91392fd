package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Event is one message on the kiosk UI event stream.
type Event struct {
	Type    string      `json:"type"` // phase, status, room-open, ended
	Payload interface{} `json:"payload,omitempty"`
}

// Hub fans call and session events out to the kiosk UI sockets.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*eventClient
}

type eventClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*eventClient)}
}

// Broadcast delivers an event to every connected UI. Slow consumers are
// skipped rather than allowed to stall the call flow.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, client := range h.clients {
		select {
		case client.send <- data:
		default:
			log.Printf("Dropping event for client %s, buffer full", id)
		}
	}
}

func (h *Hub) add(client *eventClient) {
	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
}

func (h *Hub) remove(client *eventClient) {
	h.mu.Lock()
	delete(h.clients, client.id)
	h.mu.Unlock()
}

// HandleEvents upgrades the connection and streams events until the UI
// disconnects.
func (h *Hub) HandleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	client := &eventClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, 256),
	}
	h.add(client)
	log.Printf("Event stream client %s connected", client.id)

	go client.writePump()
	go client.readPump(h)
}

// readPump only watches for the close; the UI never sends anything.
func (c *eventClient) readPump(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		log.Printf("Event stream client %s disconnected", c.id)
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

func (c *eventClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write event: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
