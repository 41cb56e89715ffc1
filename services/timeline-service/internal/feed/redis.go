package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisChannel = "timeline:appointments"

// RedisNotifier relays a Redis Pub/Sub channel to subscribers.
type RedisNotifier struct {
	*Hub
	rdb        *redis.Client
	channel    string
	logger     *slog.Logger
	retryDelay time.Duration
}

func NewRedisNotifier(rdb *redis.Client, channel string, logger *slog.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisNotifier{Hub: NewHub(), rdb: rdb, channel: channel, logger: logger, retryDelay: DefaultRetryDelay}
}

// Run relays until ctx ends, then closes the hub. A lost subscription is
// re-established after a delay. ready is closed after the first attempt;
// when that attempt succeeded, publishes after it are not missed.
func (n *RedisNotifier) Run(ctx context.Context, ready chan<- struct{}) {
	defer n.Hub.Close()

	var once sync.Once
	markReady := func() {
		once.Do(func() {
			if ready != nil {
				close(ready)
			}
		})
	}
	defer markReady()

	for attempt := 0; ; attempt++ {
		err := n.relay(ctx, attempt > 0, markReady)
		if ctx.Err() != nil {
			return
		}
		n.logger.Warn("redis change feed lost, resubscribing", "channel", n.channel, "err", err)
		markReady()
		if !sleep(ctx, n.retryDelay) {
			return
		}
	}
}

// relay runs one Pub/Sub subscription until it fails or ctx ends.
func (n *RedisNotifier) relay(ctx context.Context, resync bool, subscribed func()) error {
	ps := n.rdb.Subscribe(ctx, n.channel)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	subscribed()
	if resync {
		n.Publish(Change{Op: OpResync})
	}

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return redis.ErrClosed
			}
			n.Publish(ParsePayload(msg.Payload))
		}
	}
}
