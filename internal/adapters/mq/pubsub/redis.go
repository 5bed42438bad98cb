package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/pkg/logger"
	"github.com/okian/slipsync/pkg/metrics"
)

// ChannelFor returns the notification channel of an origin.
func ChannelFor(origin string) string {
	return origin + ":storage"
}

// RedisTransport uses Redis PUBLISH/SUBSCRIBE on one channel per origin.
type RedisTransport struct {
	client  *redis.Client
	channel string
	logger  logger.Logger
}

var _ Transport = (*RedisTransport)(nil)

// NewRedisTransport creates a transport on channel.
func NewRedisTransport(client *redis.Client, channel string, log logger.Logger) *RedisTransport {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisTransport{client: client, channel: channel, logger: log.Named("pubsub").Named("redis")}
}

// Name implements Transport.
func (t *RedisTransport) Name() string { return "redis" }

// Publish implements Transport.
func (t *RedisTransport) Publish(ctx context.Context, ev model.StorageEvent) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	if err := t.client.Publish(ctx, t.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", t.channel, err)
	}
	metrics.RecordNotificationPublished(ev.Area, t.Name())
	return nil
}

// Subscribe implements Transport. The subscription is confirmed before it
// returns so no event published afterwards is missed.
func (t *RedisTransport) Subscribe(ctx context.Context, handler Handler) (func(), error) {
	sub := t.client.Subscribe(ctx, t.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", t.channel, err)
	}
	ch := sub.Channel()

	done := make(chan struct{})
	quit := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case <-quit:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				ev, err := decode([]byte(msg.Payload))
				if err != nil {
					metrics.RecordNotificationDropped("decode")
					t.logger.Error(ctx, "receive", logger.String("channel", t.channel), logger.Error(err))
					continue
				}
				metrics.RecordNotificationReceived(t.Name())
				handler(ev)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			_ = sub.Close()
			<-done
		})
	}, nil
}
