package repository

import (
	"context"
	"database/sql"

	"github.com/tradepost/backend/internal/models"
)

type PostgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

func (r *PostgresNotificationRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, sender_id, sender_name, type, text, amount, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.RecipientID, n.SenderID, n.SenderName, n.Type, n.Text, n.Amount, n.IsRead, n.Timestamp)
	return err
}
