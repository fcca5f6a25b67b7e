package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	pkglog "github.com/weiawesome/wes-io-live/pkg/log"
)

const subscriberBuffer = 100

// RedisPubSub carries stream events over Redis channels. Channel names are
// used as-is, so a pattern subscription maps to PSUBSCRIBE.
type RedisPubSub struct {
	client     *redis.Client
	ownsClient bool

	mu   sync.Mutex
	subs map[string]*redis.PubSub // channel or pattern
}

// NewRedisPubSub dials Redis and verifies the connection.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ps := NewRedisPubSubFromClient(client)
	ps.ownsClient = true
	return ps, nil
}

// NewRedisPubSubFromClient shares an existing client. Close leaves the
// client open.
func NewRedisPubSubFromClient(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		client: client,
		subs:   make(map[string]*redis.PubSub),
	}
}

// Publish sends event on a stream channel.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	if _, _, err := ParseChannel(channel); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Subscribe receives the events of one stream channel.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	if _, _, err := ParseChannel(channel); err != nil {
		return nil, err
	}
	return r.open(ctx, channel, r.client.Subscribe(ctx, channel))
}

// SubscribePattern receives the events of every channel matching pattern,
// usually one built by KindPattern.
func (r *RedisPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return r.open(ctx, pattern, r.client.PSubscribe(ctx, pattern))
}

func (r *RedisPubSub) open(ctx context.Context, key string, sub *redis.PubSub) (<-chan *Event, error) {
	// Wait for the subscription confirmation so no publish after return is missed.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", key, err)
	}

	r.mu.Lock()
	if prev, ok := r.subs[key]; ok {
		prev.Close()
	}
	r.subs[key] = sub
	r.mu.Unlock()

	events := make(chan *Event, subscriberBuffer)
	go r.forward(ctx, sub, events)
	return events, nil
}

// Unsubscribe closes the subscription registered under channel or pattern.
func (r *RedisPubSub) Unsubscribe(ctx context.Context, key string) error {
	r.mu.Lock()
	sub, ok := r.subs[key]
	delete(r.subs, key)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return sub.Close()
}

// Close ends every subscription, and the client when this instance dialed it.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]*redis.PubSub)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	if !r.ownsClient {
		return nil
	}
	return r.client.Close()
}

// forward decodes messages until ctx ends or the subscription closes. A
// subscriber that falls behind loses events rather than blocking Redis.
func (r *RedisPubSub) forward(ctx context.Context, sub *redis.PubSub, events chan<- *Event) {
	defer close(events)

	msgs := sub.Channel()
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			msg = m
		}

		event := new(Event)
		if err := json.Unmarshal([]byte(msg.Payload), event); err != nil {
			l := pkglog.L()
			l.Warn().Err(err).Str("channel", msg.Channel).Msg("redis pubsub: dropping undecodable event")
			continue
		}

		select {
		case events <- event:
		case <-ctx.Done():
			return
		default:
			l := pkglog.L()
			l.Warn().Str("channel", msg.Channel).Str("type", event.Type).Msg("redis pubsub: subscriber buffer full, dropping event")
		}
	}
}
