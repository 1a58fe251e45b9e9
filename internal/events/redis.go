package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/curricula/internal/pipeline"
	"github.com/desertthunder/curricula/internal/shared"
)

// DefaultChannel is the Redis channel used when none is configured.
const DefaultChannel = "curricula.events"

// RedisNotifier publishes events as JSON on a Redis pub/sub channel.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
}

// NewRedisNotifier creates a new RedisNotifier for the server at addr.
//
// The connection is opened lazily; an unreachable server surfaces on the first publish.
func NewRedisNotifier(addr, channel string) (*RedisNotifier, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("%w: events.redis_addr", shared.ErrMissingConfig)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	return NewRedisNotifierWithClient(rdb, channel), nil
}

// NewRedisNotifierWithClient wraps an existing client
func NewRedisNotifierWithClient(rdb *redis.Client, channel string) *RedisNotifier {
	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{rdb: rdb, channel: channel}
}

// Channel returns the pub/sub channel events are published on
func (n *RedisNotifier) Channel() string { return n.channel }

func (n *RedisNotifier) Notify(ctx context.Context, ev pipeline.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := n.rdb.Publish(ctx, n.channel, raw).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Kind, err)
	}
	return nil
}

// Subscribe calls onEvent for every event published on the channel until ctx is done.
//
// It returns once the subscription is confirmed; delivery happens on a separate goroutine.
func (n *RedisNotifier) Subscribe(ctx context.Context, onEvent func(pipeline.Event), onError func(error)) error {
	sub := n.rdb.Subscribe(ctx, n.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev pipeline.Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					if onError != nil {
						onError(fmt.Errorf("bad event payload: %w", err))
					}
					continue
				}
				onEvent(ev)
			}
		}
	}()

	return nil
}

func (n *RedisNotifier) Close() error {
	return n.rdb.Close()
}
