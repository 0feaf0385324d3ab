// Package live pushes domain events to the signed-in user's open websocket
// connections. The Hub is a messaging.Publisher, so services publish to it
// exactly as they publish to the broker.
package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Anup697028/mediwise-chat/internal/platform/messaging"
)

// Event is the frame written to a client.
type Event struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// sendBuffer bounds the frames queued per connection. A client that falls
// further behind loses frames rather than stalling publishers.
const sendBuffer = 64

// client is one websocket connection owned by one user.
type client struct {
	userID string
	send   chan []byte
}

// Hub tracks open connections by user id.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	closed  bool
	logger  zerolog.Logger
}

var _ messaging.Publisher = (*Hub)(nil)

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		logger:  logger.With().Str("component", "live").Logger(),
	}
}

// register adds a connection for userID. It returns nil once the hub is
// closed.
func (h *Hub) register(userID string) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	c := &client{userID: userID, send: make(chan []byte, sendBuffer)}
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	return c
}

// unregister removes c and closes its send channel. Calling it twice is safe.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
}

// Disconnect closes every connection of userID. Sessions call it when the
// user signs out so a socket never outlives its session.
func (h *Hub) Disconnect(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[userID]
	for c := range set {
		close(c.send)
	}
	delete(h.clients, userID)
	if len(set) > 0 {
		h.logger.Debug().Str("user_id", userID).Int("connections", len(set)).Msg("live clients disconnected")
	}
}

// Connections returns the number of open connections for userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Publish delivers event to every connection of the users it concerns.
// Events nobody is listening for are dropped.
func (h *Hub) Publish(_ context.Context, routingKey string, event interface{}) error {
	recipients := Recipients(event)
	if len(recipients) == 0 {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	frame := Event{Type: routingKey, Data: data, Timestamp: time.Now().UTC()}
	if b, ok := event.(interface {
		ID() string
	}); ok {
		frame.ID = b.ID()
	}
	msg, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, userID := range recipients {
		for c := range h.clients[userID] {
			select {
			case c.send <- msg:
			default:
				h.logger.Warn().Str("user_id", userID).Str("type", routingKey).Msg("client too slow, frame dropped")
			}
		}
	}
	return nil
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for userID, set := range h.clients {
		for c := range set {
			close(c.send)
		}
		delete(h.clients, userID)
	}
	return nil
}

// Recipients lists the user ids an event concerns, without duplicates.
func Recipients(event interface{}) []string {
	var ids []string
	switch e := event.(type) {
	case messaging.UserRegisteredEvent:
		ids = []string{e.Data.UserID}
	case messaging.AppointmentEvent:
		ids = []string{e.Data.PatientID, e.Data.DoctorID}
	case messaging.PaymentCompletedEvent:
		ids = []string{e.Data.PatientID}
	case messaging.ConsultationRecordedEvent:
		ids = []string{e.Data.PatientID, e.Data.DoctorID}
	}
	out := ids[:0]
	for _, id := range ids {
		if id == "" || contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
