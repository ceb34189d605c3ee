package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBroker publishes events to a Redis channel and relays everything
// received on that channel into a local Hub, so every instance behind a load
// balancer sees every insert.
type RedisBroker struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
}

// NewRedisBroker wires rdb to hub on channel.
func NewRedisBroker(rdb *redis.Client, channel string, hub *Hub) *RedisBroker {
	return &RedisBroker{rdb: rdb, channel: channel, hub: hub}
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return redis.NewClient(opt), nil
}

// Publish sends ev to the Redis channel. Local subscribers receive it through
// Run, like every other instance.
func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	return nil
}

// Run subscribes to the channel and relays messages into the hub until ctx
// is done.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Receive the subscription confirmation so connection errors surface here.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %q: %w", b.channel, err)
	}
	log.Info().Str("channel", b.channel).Msg("redis notifier subscribed")

	relayRedis(ctx, sub.Channel(), b.hub)
	return nil
}

// relayRedis forwards decoded messages to hub until msgs closes or ctx ends.
func relayRedis(ctx context.Context, msgs <-chan *redis.Message, hub *Hub) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			ev, err := DecodeEvent([]byte(m.Payload))
			if err != nil {
				log.Warn().Err(err).Str("channel", m.Channel).Msg("dropping redis notification")
				continue
			}
			_ = hub.Publish(ctx, ev)
		}
	}
}

// Close releases the Redis connection pool.
func (b *RedisBroker) Close() error { return b.rdb.Close() }
