package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tradepost/backend/internal/models"
)

const (
	NotificationQueueKey = "notification_queue"
	// queuedGuardTTL bounds how long a pushed notification id is remembered
	queuedGuardTTL = 7 * 24 * time.Hour
)

// RedisNotificationQueue pushes notifications onto a Redis list for push/SMS workers.
// Each notification id is pushed at most once while its guard key lives.
type RedisNotificationQueue struct {
	redis *redis.Client
	key   string
}

func NewRedisNotificationQueue(client *redis.Client) *RedisNotificationQueue {
	return &RedisNotificationQueue{redis: client, key: NotificationQueueKey}
}

func queuedGuardKey(id string) string {
	return "notification_queued:" + id
}

func (q *RedisNotificationQueue) CreateNotification(ctx context.Context, n *models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	first, err := q.redis.SetNX(ctx, queuedGuardKey(n.ID), 1, queuedGuardTTL).Result()
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	if err := q.redis.RPush(ctx, q.key, data).Err(); err != nil {
		// let the next attempt push it
		q.redis.Del(context.WithoutCancel(ctx), queuedGuardKey(n.ID))
		return err
	}
	return nil
}
