package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yeremiapane/restaurant-feedback/utils"
)

const writeWait = 5 * time.Second

// Event types
const (
	EventRestaurantCreated    = "restaurant_created"
	EventRestaurantUpdated    = "restaurant_updated"
	EventRestaurantDeleted    = "restaurant_deleted"
	EventDemoRequestSubmitted = "demo_request_submitted"
	EventDemoRequestApproved  = "demo_request_approved"
	EventDemoRequestRejected  = "demo_request_rejected"
	EventDemoRequestReleased  = "demo_request_released"
	EventSideChannelResult    = "side_channel_result"
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub keeps every connected admin dashboard and fans messages out to them.
type Hub struct {
	clients map[*websocket.Conn]string // conn -> user id
	mutex   sync.Mutex
}

func New() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]string)}
}

var defaultHub = New()

// Default returns the process-wide hub used by services and the websocket endpoint.
func Default() *Hub {
	return defaultHub
}

func (h *Hub) Register(conn *websocket.Conn, userID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[conn] = userID
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Broadcast sends msg to every client; clients that fail a write are dropped.
func (h *Hub) Broadcast(event string, data interface{}) {
	payload, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		utils.ErrorLogger.Printf("Error marshaling %s message: %v", event, err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for conn, userID := range h.clients {
		// a stalled dashboard must not hold the hub
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			delete(h.clients, conn)
			conn.Close()
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			utils.ErrorLogger.Printf("Error sending %s to client %s: %v", event, userID, err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}
