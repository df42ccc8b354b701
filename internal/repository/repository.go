package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tradepost/backend/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("concurrent modification detected")
	ErrDuplicate = errors.New("duplicate record")
)

// AccountTx is the view of the account store inside one atomic transaction.
// Reads lock or version-track the rows they return; SaveAccount fails with
// ErrConflict when the row changed since it was read.
type AccountTx interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	// FindByReferralCode returns every account holding code, ordered by id.
	FindByReferralCode(ctx context.Context, code string) ([]*models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error
	DeleteAccount(ctx context.Context, id string) error
	DeleteNotifications(ctx context.Context, recipientID string) error
	AppendLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error
	InsertRating(ctx context.Context, rating *models.Rating) error
}

// AccountRepository is the account store consumed by the services
type AccountRepository interface {
	// RunInTx executes fn in a single transaction and commits when fn returns nil.
	// A lost optimistic race surfaces as ErrConflict; callers decide whether to re-run.
	RunInTx(ctx context.Context, fn func(tx AccountTx) error) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	// ListInactive pages through never-converted, zero-balance accounts idle since before cutoff.
	ListInactive(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]*models.Account, error)
}

// NotificationRepository is an append-only notification sink
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}
