package services

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// EventDeduper filters redelivered trigger events before they reach the ledger.
// The ledger's own flag stays the authoritative guard; this only saves work.
type EventDeduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type RedisEventDeduper struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisEventDeduper(client *redis.Client, ttl time.Duration) *RedisEventDeduper {
	return &RedisEventDeduper{redis: client, ttl: ttl}
}

func eventKey(eventID string) string {
	return "qualifying_event:" + eventID
}

// Claim returns false when eventID was already claimed within the TTL
func (d *RedisEventDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	return d.redis.SetNX(ctx, eventKey(eventID), 1, d.ttl).Result()
}

// Release forgets eventID so a redelivery can be processed again
func (d *RedisEventDeduper) Release(ctx context.Context, eventID string) error {
	return d.redis.Del(ctx, eventKey(eventID)).Err()
}

// NoopEventDeduper claims every event; used when Redis is unavailable
type NoopEventDeduper struct{}

func (NoopEventDeduper) Claim(context.Context, string) (bool, error) { return true, nil }
func (NoopEventDeduper) Release(context.Context, string) error       { return nil }
