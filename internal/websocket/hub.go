// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/mediaforge/internal/events"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/metrics"
)

// Message types.
const (
	MessageTypeJobStatus = "job_status"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
)

// Message is one frame sent to or received from a client.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`

	// sourceKey routes job events; it is not serialized.
	sourceKey string
}

// Hub maintains the set of active clients and fans job events out to them.
// It implements suture.Service.
type Hub struct {
	clients   map[*Client]bool
	broadcast chan Message
	Register  chan *Client
	mu        sync.RWMutex
}

// NewHub creates a hub. Serve must run for clients to be registered.
func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan Message, 256),
		Register:  make(chan *Client),
		clients:   make(map[*Client]bool),
	}
}

// Serve runs the hub until ctx is cancelled, then closes every client.
//
// Shutdown is checked first and registrations before broadcasts, so a
// client registered before an event is published always receives it.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) String() string {
	return "websocket-hub"
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnectionsActive.Inc()
	logging.Debug().Int("total_clients", n).Msg("WebSocket client connected")
}

// remove is called by the client itself when its connection ends. It does
// not go through Serve so a client can always leave, even after the hub
// stopped.
func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	removed := h.drop(client)
	n := len(h.clients)
	h.mu.Unlock()
	if removed {
		logging.Debug().Int("total_clients", n).Msg("WebSocket client disconnected")
	}
}

// drop must be called with mu held.
func (h *Hub) drop(client *Client) bool {
	if _, ok := h.clients[client]; !ok {
		return false
	}
	delete(h.clients, client)
	close(client.send)
	metrics.WSConnectionsActive.Dec()
	return true
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	n := len(h.clients)
	for _, client := range h.sortedClients() {
		h.drop(client)
	}
	h.mu.Unlock()
	logging.Info().Int("clients_closed", n).Msg("WebSocket hub stopped")
}

// sortedClients must be called with mu held. Clients are visited in
// connection order.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.sortedClients() {
		if !client.wants(message.sourceKey) {
			continue
		}
		select {
		case client.send <- message:
		default:
			logging.Warn().Uint64("client_id", client.id).Msg("WebSocket client too slow, disconnecting")
			h.drop(client)
		}
	}
}

// BroadcastJobStatus queues ev for every interested client. It never
// blocks; when the hub is saturated the event is dropped.
func (h *Hub) BroadcastJobStatus(ev events.JobStatus) {
	message := Message{Type: MessageTypeJobStatus, Data: ev, sourceKey: ev.SourceKey}
	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("job_id", ev.JobID).Msg("WebSocket broadcast channel full, dropping job status")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Join registers client, giving up when ctx ends first.
func (h *Hub) Join(ctx context.Context, client *Client) error {
	select {
	case h.Register <- client:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
