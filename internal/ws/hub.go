package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ChangeEvent is the payload pushed to a teacher's clients whenever one
// of their rows changes. It names the table and the row, not the diff;
// consumers re-read the state they care about.
type ChangeEvent struct {
	EventType string `json:"event_type"` // insert, update, delete, or a named alert
	Table     string `json:"table"`      // passes, queue, schedule, objective, tv_settings
	RowID     uint   `json:"row_id,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Hub stores client connections grouped by teacher ID.
type Hub struct {
	clients    map[uint]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMessage
	mu         sync.RWMutex

	// OnTeacherChange, when set, is invoked for every broadcast change
	// (the live snapshot store hooks in here).
	OnTeacherChange func(teacherID uint)

	// OnTeacherGone, when set, is invoked once the teacher's last client
	// unregisters, so per-teacher state can be released.
	OnTeacherGone func(teacherID uint)
}

type broadcastMessage struct {
	TeacherID uint
	Message   []byte
}

var HubInstance = NewHub()

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMessage),
	}
}

// Run processes the hub channels. Start it once, in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.TeacherID] == nil {
				h.clients[client.TeacherID] = make(map[*Client]bool)
			}
			h.clients[client.TeacherID][client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.TeacherID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.TeacherID)
						if h.OnTeacherGone != nil {
							h.OnTeacherGone(client.TeacherID)
						}
					}
				}
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[message.TeacherID]; ok {
				for client := range clients {
					select {
					case client.Send <- message.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastChange notifies the teacher's clients and the snapshot hook.
func (h *Hub) BroadcastChange(teacherID uint, event ChangeEvent) {
	if h.OnTeacherChange != nil {
		h.OnTeacherChange(teacherID)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Println("Failed to encode change event:", err)
		return
	}
	h.broadcast <- broadcastMessage{TeacherID: teacherID, Message: payload}
}

// Client represents one WebSocket connection.
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	TeacherID uint
}

// readPump watches for the connection closing. Incoming messages are
// ignored; the stream is one-way.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump delivers queued messages and keeps the connection alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeHandler upgrades the request and registers the authenticated
// teacher's client in the hub. Closing the socket tears the
// subscription down.
// URL: /api/ws
func ServeHandler(c *gin.Context) {
	teacherID := c.GetUint("teacherID")
	if teacherID == 0 {
		http.Error(c.Writer, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		http.Error(c.Writer, "WebSocket upgrade failed", http.StatusInternalServerError)
		return
	}

	client := &Client{
		Hub:       HubInstance,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		TeacherID: teacherID,
	}
	HubInstance.register <- client

	log.Println("WebSocket subscription opened for teacher", strconv.Itoa(int(teacherID)))

	go client.writePump()
	client.readPump()
}
