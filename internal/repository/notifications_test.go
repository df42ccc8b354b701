package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradepost/backend/internal/models"
)

func testNotification() *models.Notification {
	amount := int64(1000)
	return &models.Notification{
		ID:          "n-1",
		RecipientID: "acct-r",
		SenderID:    "acct-a",
		SenderName:  "Alice",
		Type:        models.NotificationTypeReferralBonus,
		Text:        "Alice just subscribed using your referral code.",
		Amount:      &amount,
		Timestamp:   time.Now(),
	}
}

func TestPostgresNotificationRepository_CreateNotification(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresNotificationRepository(db)
	n := testNotification()

	mock.ExpectExec(`INSERT INTO notifications .+ ON CONFLICT \(id\) DO NOTHING`).
		WithArgs(n.ID, n.RecipientID, n.SenderID, n.SenderName, n.Type, n.Text, int64(1000), false, n.Timestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.CreateNotification(context.Background(), n))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisNotificationQueue_CreateNotification(t *testing.T) {
	n := testNotification()
	payload, err := json.Marshal(n)
	require.NoError(t, err)
	guard := "notification_queued:" + n.ID

	t.Run("pushes JSON payload once", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		queue := NewRedisNotificationQueue(client)

		mock.ExpectSetNX(guard, 1, queuedGuardTTL).SetVal(true)
		mock.ExpectRPush(NotificationQueueKey, payload).SetVal(1)
		mock.ExpectSetNX(guard, 1, queuedGuardTTL).SetVal(false)

		assert.NoError(t, queue.CreateNotification(context.Background(), n))
		assert.NoError(t, queue.CreateNotification(context.Background(), n))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed push releases the guard for the retry", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		queue := NewRedisNotificationQueue(client)

		mock.ExpectSetNX(guard, 1, queuedGuardTTL).SetVal(true)
		mock.ExpectRPush(NotificationQueueKey, payload).SetErr(errors.New("connection reset"))
		mock.ExpectDel(guard).SetVal(1)
		mock.ExpectSetNX(guard, 1, queuedGuardTTL).SetVal(true)
		mock.ExpectRPush(NotificationQueueKey, payload).SetVal(1)

		assert.Error(t, queue.CreateNotification(context.Background(), n))
		assert.NoError(t, queue.CreateNotification(context.Background(), n))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("guard failure surfaces without pushing", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		queue := NewRedisNotificationQueue(client)

		mock.ExpectSetNX(guard, 1, queuedGuardTTL).SetErr(errors.New("connection refused"))

		assert.Error(t, queue.CreateNotification(context.Background(), n))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
