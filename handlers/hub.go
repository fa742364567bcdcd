package handlers

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"taskchat-client/models"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local UI surface, all origins allowed
	},
}

// Hub fans engine events out to every connected UI client.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]string
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]string)}
}

// Broadcast sends one typed envelope to all clients, dropping any whose
// connection has died.
func (h *Hub) Broadcast(messageType string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) == 0 {
		return
	}

	msg := models.WSMessage{
		Type:    messageType,
		Payload: payload,
	}

	for client, id := range h.clients {
		if err := client.WriteJSON(msg); err != nil {
			log.Printf("handlers: dropping ws client %s: %v", id, err)
			client.Close()
			delete(h.clients, client)
		}
	}
}

// ClientCount reports the number of connected UI clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWS upgrades the request and parks the connection until the client
// goes away. Clients only listen; inbound frames are discarded.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	id := uuid.New().String()
	h.mu.Lock()
	h.clients[conn] = id
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
