package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/tradepost/backend/internal/audit"
	"github.com/tradepost/backend/internal/config"
	"github.com/tradepost/backend/internal/models"
	"github.com/tradepost/backend/internal/repository"
)

const purgeTxAttempts = 3

var errNoLongerInactive = errors.New("account no longer eligible for purge")

// PurgeReport summarises one purge run
type PurgeReport struct {
	Scanned int `json:"scanned"`
	Purged  int `json:"purged"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// PurgeService removes accounts that never converted and have been idle too long
type PurgeService struct {
	accounts      repository.AccountRepository
	audit         audit.Logger
	inactiveAfter time.Duration
	batchSize     int
	now           func() time.Time
}

func NewPurgeService(accounts repository.AccountRepository, auditLogger audit.Logger, cfg *config.PurgeConfig) *PurgeService {
	return &PurgeService{
		accounts:      accounts,
		audit:         auditLogger,
		inactiveAfter: cfg.InactiveAfter,
		batchSize:     cfg.BatchSize,
		now:           time.Now,
	}
}

// PurgeInactive walks inactive accounts in id order and purges each in its own transaction.
// A failure on one account is counted and the run continues.
func (s *PurgeService) PurgeInactive(ctx context.Context) (PurgeReport, error) {
	var report PurgeReport
	cutoff := s.now().Add(-s.inactiveAfter)
	afterID := ""

	for {
		batch, err := s.accounts.ListInactive(ctx, cutoff, afterID, s.batchSize)
		if err != nil {
			return report, fmt.Errorf("list inactive accounts: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, account := range batch {
			report.Scanned++
			referrerID, err := s.purgeWithRetry(ctx, account.ID, cutoff)
			switch {
			case err == nil:
				report.Purged++
				s.audit.LogPurge(account.ID, referrerID)
			case errors.Is(err, errNoLongerInactive), errors.Is(err, repository.ErrNotFound):
				report.Skipped++
			default:
				report.Failed++
				log.Printf("[PURGE] Failed to purge account %s: %v", account.ID, err)
				s.audit.LogError("purge", account.ID, err)
			}
		}

		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		afterID = batch[len(batch)-1].ID
		if len(batch) < s.batchSize {
			break
		}
	}

	log.Printf("[PURGE] Run complete: scanned=%d purged=%d skipped=%d failed=%d",
		report.Scanned, report.Purged, report.Skipped, report.Failed)
	return report, nil
}

func (s *PurgeService) purgeWithRetry(ctx context.Context, accountID string, cutoff time.Time) (string, error) {
	var err error
	for attempt := 1; attempt <= purgeTxAttempts; attempt++ {
		var referrerID string
		err = s.accounts.RunInTx(ctx, func(tx repository.AccountTx) error {
			var txErr error
			referrerID, txErr = s.purgeAccount(ctx, tx, accountID, cutoff)
			return txErr
		})
		if err == nil {
			return referrerID, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return "", err
		}
	}
	return "", err
}

// purgeAccount re-checks eligibility on the locked row, detaches the account from
// its referrer's pending list and deletes it with its notifications.
func (s *PurgeService) purgeAccount(ctx context.Context, tx repository.AccountTx, accountID string, cutoff time.Time) (string, error) {
	account, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	if !purgeable(account, cutoff) {
		return "", errNoLongerInactive
	}

	referrerID := ""
	if account.IsReferred() {
		candidates, err := tx.FindByReferralCode(ctx, account.ReferredByCode)
		if err != nil {
			return "", err
		}
		for _, referrer := range candidates {
			if referrer.ID == account.ID || !referrer.PendingReferrals.Contains(account.ID) {
				continue
			}
			referrer.PendingReferrals = referrer.PendingReferrals.Remove(account.ID)
			if err := tx.SaveAccount(ctx, referrer); err != nil {
				return "", err
			}
			referrerID = referrer.ID
			break
		}
	}

	if err := tx.DeleteNotifications(ctx, account.ID); err != nil {
		return "", err
	}
	if err := tx.DeleteAccount(ctx, account.ID); err != nil {
		return "", err
	}
	return referrerID, nil
}

func purgeable(account *models.Account, cutoff time.Time) bool {
	return !account.HasCompletedQualifyingAction && account.Balance == 0 && account.LastActiveAt.Before(cutoff)
}

// StartPurgeScheduler runs PurgeInactive every interval until the returned scheduler is shut down
func (s *PurgeService) StartPurgeScheduler(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := s.PurgeInactive(context.Background()); err != nil {
				log.Printf("[PURGE] Scheduled run failed: %v", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		sched.Shutdown()
		return nil, err
	}

	sched.Start()
	log.Printf("[PURGE] Scheduler started, interval %s", interval)
	return sched, nil
}
