package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/tradepost/backend/internal/models"
)

const accountColumns = `id, full_name, email, referral_code, referred_by_code,
	has_completed_qualifying_action, balance, pending_referrals, successful_referrals,
	rating_average, rating_count, last_active_at, version, created_at, updated_at`

// SQLSTATE codes that mean "re-run the transaction"
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

type PostgresAccountRepository struct {
	db *sql.DB
}

func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

func (r *PostgresAccountRepository) RunInTx(ctx context.Context, fn func(tx AccountTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapPQError(err)
	}
	defer tx.Rollback()

	if err := fn(&postgresAccountTx{tx: tx}); err != nil {
		return mapPQError(err)
	}

	if err := tx.Commit(); err != nil {
		return mapPQError(err)
	}
	return nil
}

func (r *PostgresAccountRepository) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return account, err
}

func (r *PostgresAccountRepository) ListInactive(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE last_active_at < $1
		  AND has_completed_qualifying_action = false
		  AND balance = 0
		  AND id > $2
		ORDER BY id
		LIMIT $3`, cutoff, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []*models.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

type postgresAccountTx struct {
	tx *sql.Tx
}

func (t *postgresAccountTx) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return account, err
}

func (t *postgresAccountTx) FindByReferralCode(ctx context.Context, code string) ([]*models.Account, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE referral_code = $1
		ORDER BY id
		FOR UPDATE`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []*models.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// SaveAccount writes the mutable columns. referral_code and referred_by_code are never updated.
func (t *postgresAccountTx) SaveAccount(ctx context.Context, account *models.Account) error {
	now := time.Now()
	result, err := t.tx.ExecContext(ctx, `
		UPDATE accounts
		SET has_completed_qualifying_action = $1, balance = $2, pending_referrals = $3,
			successful_referrals = $4, rating_average = $5, rating_count = $6,
			version = version + 1, updated_at = $7
		WHERE id = $8 AND version = $9`,
		account.HasCompletedQualifyingAction, account.Balance, account.PendingReferrals,
		account.SuccessfulReferrals, account.RatingAverage, account.RatingCount,
		now, account.ID, account.Version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for account %s: %w", account.ID, ErrConflict)
	}

	account.Version++
	account.UpdatedAt = now
	return nil
}

func (t *postgresAccountTx) DeleteAccount(ctx context.Context, id string) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *postgresAccountTx) DeleteNotifications(ctx context.Context, recipientID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM notifications WHERE recipient_id = $1`, recipientID)
	return err
}

func (t *postgresAccountTx) AppendLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, account_id, amount, entry_type, balance, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.AccountID, entry.Amount, entry.EntryType, entry.Balance, entry.Reference, entry.CreatedAt)
	return err
}

func (t *postgresAccountTx) InsertRating(ctx context.Context, rating *models.Rating) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ratings (id, profile_id, rater_id, score, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rating.ID, rating.ProfileID, rating.RaterID, rating.Score, rating.Comment, rating.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return ErrDuplicate
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var referredBy sql.NullString
	err := row.Scan(
		&account.ID, &account.FullName, &account.Email, &account.ReferralCode, &referredBy,
		&account.HasCompletedQualifyingAction, &account.Balance, &account.PendingReferrals, &account.SuccessfulReferrals,
		&account.RatingAverage, &account.RatingCount, &account.LastActiveAt, &account.Version,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	account.ReferredByCode = referredBy.String
	return &account, nil
}

// mapPQError folds Postgres serialization and deadlock failures into ErrConflict
func mapPQError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected:
			return fmt.Errorf("%s: %w", pqErr.Message, ErrConflict)
		}
	}
	return err
}
