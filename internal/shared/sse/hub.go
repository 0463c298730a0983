// Package sse fans server-sent events out to connected browser sessions.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event one server-sent event; Data is a JSON document
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client connected stream
type Client struct {
	ID     string
	UserID int64
	Events chan Event
}

// Hub client registry
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a client with a buffered event channel
func (h *Hub) Register(userID int64) *Client {
	client := &Client{
		ID:     fmt.Sprintf("%d_%s", userID, uuid.NewString()),
		UserID: userID,
		Events: make(chan Event, 64),
	}
	h.mu.Lock()
	h.clients[client.ID] = client
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("sse client registered", zap.String("client_id", client.ID), zap.Int("total", total))
	return client
}

// Unregister closes the client's channel
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("sse client unregistered", zap.String("client_id", clientID), zap.Int("total", len(h.clients)))
	}
}

// Len connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast never blocks; a full client buffer drops the event for that client
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("sse client buffer full, event dropped",
				zap.String("client_id", client.ID),
				zap.String("event", event.EventType),
			)
		}
	}
}

// Publish marshals payload and broadcasts it
func (h *Hub) Publish(eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("sse payload not serializable", zap.String("event", eventType), zap.Error(err))
		return
	}
	h.Broadcast(Event{EventType: eventType, Data: string(data)})
}

// Stream serves one client until it disconnects
func (h *Hub) Stream(c *gin.Context, userID int64, heartbeat time.Duration) {
	client := h.Register(userID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"client_id\":%q}\n\n", client.ID)
	c.Writer.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	gone := c.Request.Context().Done()
	for {
		select {
		case <-gone:
			h.Unregister(client.ID)
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.EventType, event.Data)
			c.Writer.Flush()
		case <-ticker.C:
			c.Writer.WriteString(": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}
