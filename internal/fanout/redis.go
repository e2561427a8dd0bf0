package fanout

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"possync/backend/internal/domain"
)

// RedisPublisher publishes events as JSON on the tenant's Redis channel so every API
// instance can serve subscribers.
type RedisPublisher struct {
	client *redis.Client
	logger logrus.FieldLogger
}

func NewRedisPublisher(addr string, password string, db int, logger logrus.FieldLogger) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisPublisher{client: client, logger: logger}
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func (p *RedisPublisher) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, Channel(event.TenantID), payload).Err()
}

func (p *RedisPublisher) Subscribe(ctx context.Context, tenantID string) (<-chan domain.Event, func(), error) {
	pubsub := p.client.Subscribe(ctx, Channel(tenantID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan domain.Event, 16)
	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					p.logger.WithError(err).WithField("channel", msg.Channel).Warn("fanout: undecodable event")
					continue
				}
				select {
				case out <- event:
				default:
				}
			}
		}
	}()
	return out, cancel, nil
}
