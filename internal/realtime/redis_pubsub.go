package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "liveclient:user:"
	publishTimeout = 5 * time.Second
)

// redisPayload is the cross-instance event envelope. Origin is the
// publishing hub's instance ID; the hub uses it to drop its own echoes, so
// an event published here reaches each remote window exactly once.
type redisPayload struct {
	Origin string          `json:"origin"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	At     int64           `json:"at"`
}

// RedisPubSub bridges user events across agent instances through Redis.
type RedisPubSub struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisPubSub creates the Redis bridge.
func NewRedisPubSub(client *redis.Client, log *zap.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, log: log}
}

// PublishUserEvent publishes an event on the user's channel, tagged with
// the publishing hub's origin.
func (r *RedisPubSub) PublishUserEvent(origin string, userID uuid.UUID, event string, payload []byte) error {
	channel := channelPrefix + userID.String()
	body, err := json.Marshal(redisPayload{Origin: origin, Event: event, Data: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, channel, body).Err()
}

// SubscribeUser subscribes to the user's channel and calls handler for each
// message. Returns a cancel function to stop the subscription.
func (r *RedisPubSub) SubscribeUser(userID uuid.UUID, handler func(origin, event string, payload []byte)) (cancel func(), err error) {
	channel := channelPrefix + userID.String()
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p redisPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					continue
				}
				handler(p.Origin, p.Event, p.Data)
			}
		}
	}()
	return func() { cancelCtx() }, nil
}
