package sse

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pts_listener/internal/metrics"
	"github.com/GTDGit/pts_listener/internal/models"
)

const clientBuffer = 64

// EventType defines the SSE event name.
type EventType string

const (
	EventPersisted EventType = "event.persisted"
	EventFailed    EventType = "event.failed"
	EventStations  EventType = "stations.replaced"
)

// StreamEvent is the payload broadcast to stream clients.
type StreamEvent struct {
	Event     EventType            `json:"event"`
	PacketID  string               `json:"packetId,omitempty"`
	Data      *models.LogicalEvent `json:"data,omitempty"`
	System    uint8                `json:"system"`
	Stations  []string             `json:"stations,omitempty"`
	Error     string               `json:"error,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// Client represents a connected SSE client. A client with a non-nil System
// only receives events of that system.
type Client struct {
	ID     string
	System *uint8
	Events chan []byte
}

func (c *Client) wants(system uint8) bool {
	return c.System == nil || *c.System == system
}

// Hub manages SSE client connections and broadcasts.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates a new SSE hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register adds a new client and returns it for streaming. system limits the
// stream to one system; nil subscribes to all of them.
func (h *Hub) Register(clientID string, system *uint8) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &Client{
		ID:     clientID,
		System: system,
		Events: make(chan []byte, clientBuffer),
	}
	h.clients[clientID] = c
	metrics.StreamClients.Set(float64(len(h.clients)))

	ev := log.Info().Str("client_id", clientID).Int("total_clients", len(h.clients))
	if system != nil {
		ev = ev.Uint8("system", *system)
	}
	ev.Msg("SSE client connected")
	return c
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[clientID]; ok {
		close(c.Events)
		delete(h.clients, clientID)
		metrics.StreamClients.Set(float64(len(h.clients)))
		log.Info().Str("client_id", clientID).Int("total_clients", len(h.clients)).Msg("SSE client disconnected")
	}
}

// Broadcast sends an event to every client subscribed to its system. A client
// whose buffer is full misses the event; the receive loop never waits.
func (h *Hub) Broadcast(event *StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		if !c.wants(event.System) {
			continue
		}
		select {
		case c.Events <- data:
		default:
			log.Warn().Str("client_id", c.ID).Msg("SSE client buffer full, dropping event")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
