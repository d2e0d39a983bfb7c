package realtime

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeBus fans every published event out to every subscriber, the
// publisher's own handler included, the way Redis pub/sub does.
type fakeBus struct {
	mu        sync.Mutex
	handlers  map[uuid.UUID][]func(origin, event string, payload []byte)
	published int
	cancelled int
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[uuid.UUID][]func(origin, event string, payload []byte))}
}

func (b *fakeBus) PublishUserEvent(origin string, userID uuid.UUID, event string, payload []byte) error {
	b.mu.Lock()
	b.published++
	handlers := append([]func(origin, event string, payload []byte){}, b.handlers[userID]...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(origin, event, payload)
	}
	return nil
}

func (b *fakeBus) SubscribeUser(userID uuid.UUID, handler func(origin, event string, payload []byte)) (func(), error) {
	b.mu.Lock()
	b.handlers[userID] = append(b.handlers[userID], handler)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		b.cancelled++
		b.mu.Unlock()
	}, nil
}

func (b *fakeBus) deliver(userID uuid.UUID, origin, event string, payload []byte) {
	b.mu.Lock()
	handlers := append([]func(origin, event string, payload []byte){}, b.handlers[userID]...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(origin, event, payload)
	}
}

func testClient(userID uuid.UUID) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		send:   make(chan WSMessage, 8),
	}
}

func TestNotifyUserEverywhereDeliversOnceLocally(t *testing.T) {
	bus := newFakeBus()
	hub := NewHub(zap.NewNop(), bus, bus)
	userID := uuid.New()
	client := testClient(userID)
	hub.Register(client)

	hub.NotifyUserEverywhere(userID, "session_converted", map[string]string{"room_id": "room-1"})

	// The bus echoed the publish back to this hub's own subscription; the
	// local window must still see the event exactly once.
	require.Len(t, client.send, 1)
	msg := <-client.send
	assert.Equal(t, "session_converted", msg.Event)
	assert.Equal(t, 1, bus.published)
}

func TestEventsFromOtherInstancesAreDelivered(t *testing.T) {
	bus := newFakeBus()
	hub := NewHub(zap.NewNop(), bus, bus)
	userID := uuid.New()
	client := testClient(userID)
	hub.Register(client)

	bus.deliver(userID, "peer-instance", "session_reverted", []byte(`{"session_id":"x"}`))

	require.Len(t, client.send, 1)
	msg := <-client.send
	assert.Equal(t, "session_reverted", msg.Event)
}

func TestNotifyUserLocalOnlyDoesNotPublish(t *testing.T) {
	bus := newFakeBus()
	hub := NewHub(zap.NewNop(), bus, bus)
	userID := uuid.New()
	client := testClient(userID)
	hub.Register(client)

	hub.NotifyUser(userID, "hello_ack", map[string]string{"client_id": client.ID})

	require.Len(t, client.send, 1)
	assert.Zero(t, bus.published)
}

func TestLastUnregisterCancelsSubscription(t *testing.T) {
	bus := newFakeBus()
	hub := NewHub(zap.NewNop(), bus, bus)
	userID := uuid.New()
	first := testClient(userID)
	second := testClient(userID)
	hub.Register(first)
	hub.Register(second)

	hub.Unregister(first)
	assert.Zero(t, bus.cancelled, "subscription lives while a connection remains")
	hub.Unregister(second)
	assert.Equal(t, 1, bus.cancelled)
	assert.Zero(t, hub.ConnectionCount(userID))
}
