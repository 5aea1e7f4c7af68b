package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/VigLinat/studiohub/internal"
)

const redisChannelPrefix = "studio:room:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RedisBus struct {
	rdb *redis.Client
}

// NewRedisBus connects to redis and verifies connectivity.
func NewRedisBus(ctx context.Context, cfg RedisConfig) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "redis ping %s", cfg.Addr)
	}
	return &RedisBus{rdb: rdb}, nil
}

func (b *RedisBus) Publish(ctx context.Context, m Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encode relay message")
	}
	return errors.Wrap(b.rdb.Publish(ctx, redisChannel(m.RoomID), raw).Err(), "redis publish")
}

// Subscribe listens on every room channel.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(Message)) error {
	pubsub := b.rdb.PSubscribe(ctx, redisChannel("*"))
	defer pubsub.Close()

	// wait for the subscription to be confirmed before reporting readiness
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "redis psubscribe")
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil || m.RoomID == "" {
				internal.MyWarn("Dropping relay message on %s: %v", msg.Channel, err)
				continue
			}
			fn(m)
		}
	}
}

func (b *RedisBus) Close() error { return b.rdb.Close() }

func redisChannel(roomID string) string { return redisChannelPrefix + roomID }
