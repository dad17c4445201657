package gateway

import (
	"context"
	"encoding/json"

	goredis "github.com/go-redis/redis/v8"
)

// Subscriber is the subset of the Redis client used by the relay.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *goredis.PubSub
}

// RunRedis relays trade events published on channel by an engine process
// to this hub's clients. Blocks until ctx is cancelled.
func (h *Hub) RunRedis(ctx context.Context, rdb Subscriber, channel string) {
	pubsub := rdb.Subscribe(ctx, channel)
	defer pubsub.Close()

	h.log.Info("relaying redis channel", "channel", channel)
	h.Relay(ctx, pubsub.Channel())
}

// Relay broadcasts each trade payload received on msgs. Payloads that do
// not decode to a trade with a symbol are dropped.
func (h *Hub) Relay(ctx context.Context, msgs <-chan *goredis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var head struct {
				Symbol string `json:"symbol"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &head); err != nil || head.Symbol == "" {
				h.log.Warn("dropping relayed message", "channel", msg.Channel)
				continue
			}
			h.Broadcast(TradeChannel(head.Symbol), []byte(msg.Payload))
		}
	}
}
