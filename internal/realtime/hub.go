// Package realtime pushes conversion outcomes and cache invalidations to
// the user's connected UIs over WebSocket, with Redis pub/sub keeping a
// user's other agent instances in sync.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait drive the WebSocket heartbeat (seconds).
	PingInterval = 30
	PongWait     = 60
)

// Publisher publishes a user event for other agent instances. origin names
// the publishing hub so subscribers can drop their own echoes.
type Publisher interface {
	PublishUserEvent(origin string, userID uuid.UUID, event string, payload []byte) error
}

// Subscriber subscribes to a user's channel and invokes handler for
// incoming events, passing through the publisher's origin.
type Subscriber interface {
	SubscribeUser(userID uuid.UUID, handler func(origin, event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains user_id -> set of connections and fans events out to them.
type Hub struct {
	// instance identifies this hub on the event bus. Published events carry
	// it and the subscription handler drops matches, so a local broadcast is
	// never doubled by its own echo.
	instance string
	// userID -> map[clientID]*Client
	users map[uuid.UUID]map[string]*Client
	subs  map[uuid.UUID]func() // cancel Redis subscription per user
	mu    sync.RWMutex
	log   *zap.Logger
	pub   Publisher
	sub   Subscriber
}

// NewHub creates a notification hub. pub and sub may be nil when Redis is
// not configured; events then stay local to this agent.
func NewHub(log *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	return &Hub{
		instance: uuid.New().String(),
		users:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		log:      log,
		pub:      pub,
		sub:      sub,
	}
}

// Register adds a client connection. The first connection for a user opens
// the cross-instance subscription.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.users[c.UserID] == nil {
		h.users[c.UserID] = make(map[string]*Client)
		if h.sub != nil {
			cancel, err := h.sub.SubscribeUser(c.UserID, func(origin, event string, payload []byte) {
				if origin == h.instance {
					return
				}
				h.NotifyUser(c.UserID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.UserID] = cancel
			}
		}
	}
	h.users[c.UserID][c.ID] = c
	h.mu.Unlock()
	h.log.Debug("ui connected", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))
}

// Unregister removes a client connection, cancelling the cross-instance
// subscription when the user's last connection goes away.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.users[c.UserID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.users, c.UserID)
			if cancel, ok := h.subs[c.UserID]; ok {
				cancel()
				delete(h.subs, c.UserID)
			}
		}
	}
	h.mu.Unlock()
	h.log.Debug("ui disconnected", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))
}

// NotifyUser sends an event to the user's local connections only.
func (h *Hub) NotifyUser(userID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.users[userID]
	h.mu.RUnlock()
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// NotifyUserEverywhere sends to local connections and publishes for the
// user's other agent instances.
func (h *Hub) NotifyUserEverywhere(userID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.NotifyUser(userID, event, json.RawMessage(data))
	if h.pub != nil {
		_ = h.pub.PublishUserEvent(h.instance, userID, event, data)
	}
}

// ConnectionCount returns the number of local connections for a user.
func (h *Hub) ConnectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}
