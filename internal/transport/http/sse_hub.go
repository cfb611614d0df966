package http

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/connection"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/domain"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/messages"
)

// SSE event names.
const (
	EventConnected    = "connected"
	EventNotification = "notification"
	EventStatus       = "status"
	EventUnread       = "unread"
)

// Client represents a connected SSE client.
type Client struct {
	id   string
	send chan []byte
}

// Hub manages all active SSE client connections of the local session.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

// NewHub creates a new SSE Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Register adds a new SSE client. After Close the send channel is closed
// immediately so the stream ends.
func (h *Hub) Register(send chan []byte) *Client {
	c := &Client{id: uuid.NewString(), send: send}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(send)
		return c
	}
	h.clients[c.id] = c

	log.Debug().Str("client", c.id).Msg("SSE client connected")
	return c
}

// Unregister removes an SSE client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	log.Debug().Str("client", c.id).Msg("SSE client disconnected")
}

// Close ends every stream and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

// Broadcast sends one event to all clients. Slow clients miss the event.
func (h *Hub) Broadcast(event string, payload any) {
	msg, err := buildSSEMessage(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("encode SSE event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			log.Warn().Str("client", c.id).Str("event", event).Msg("SSE client send buffer full, skipping")
		}
	}
}

// BroadcastNotification satisfies subscription.ArrivalFunc.
func (h *Hub) BroadcastNotification(n domain.Notification) {
	h.Broadcast(EventNotification, n)
}

// BroadcastStatus forwards a connection transition.
func (h *Hub) BroadcastStatus(ev connection.StatusEvent) {
	h.Broadcast(EventStatus, newStatusPayload(ev))
}

// BroadcastUnread forwards the unread count.
func (h *Hub) BroadcastUnread(count int) {
	h.Broadcast(EventUnread, map[string]int{"count": count})
}

// ConnectedCount returns the number of connected SSE clients.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type statusPayload struct {
	Status     connection.Status `json:"status"`
	Previous   connection.Status `json:"previous"`
	RetryCount int               `json:"retryCount"`
	DelayMs    int64             `json:"delayMs,omitempty"`
	Text       string            `json:"text"`
	Error      string            `json:"error,omitempty"`
}

func newStatusPayload(ev connection.StatusEvent) statusPayload {
	p := statusPayload{
		Status:     ev.To,
		Previous:   ev.From,
		RetryCount: ev.RetryCount,
		DelayMs:    ev.Delay.Milliseconds(),
		Text:       messages.StatusText(ev.To),
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	return p
}

// buildSSEMessage formats one SSE frame.
func buildSSEMessage(event string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, b)), nil
}
