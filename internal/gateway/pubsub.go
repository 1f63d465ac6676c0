package gateway

import (
	"context"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"

	"signalradar/internal/store/redis"
)

// RelayRedis subscribes to the scanner's pubsub channels and broadcasts
// every message. Used when the scanner runs in another process. Blocks
// until ctx is cancelled.
func (h *Hub) RelayRedis(ctx context.Context, rdb *goredis.Client) {
	pubsub := rdb.PSubscribe(ctx, redis.SubscribePatterns...)
	defer pubsub.Close()

	slog.Info("relaying redis pubsub", "patterns", redis.SubscribePatterns)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.Broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}
