package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/warp/invest-engine/invest"
)

// DefaultRedisChannel is the pub/sub channel investment events go to.
const DefaultRedisChannel = "investment_events"

// redisPublisher is the part of *redis.Client used here.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type RedisPublisher struct {
	rdb     redisPublisher
	channel string
}

func NewRedisPublisher(rdb redisPublisher, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (p *RedisPublisher) Notify(ctx context.Context, e invest.Event) error {
	payload, err := encode(e)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
