package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/tradepost/backend/internal/audit"
	"github.com/tradepost/backend/internal/config"
	"github.com/tradepost/backend/internal/models"
	"github.com/tradepost/backend/internal/repository"
)

var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrTransactionConflict     = errors.New("transaction conflict: retries exhausted")
	ErrReferrerLookupAmbiguous = errors.New("referral code matches more than one account")
	ErrNotificationWriteFailed = errors.New("notification write failed")
)

type Outcome string

const (
	OutcomeCredited         Outcome = "credited"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeNotReferred      Outcome = "not_referred"
	OutcomeReferrerNotFound Outcome = "referrer_not_found"
)

// QualifyingActionResult describes what one evaluation did
type QualifyingActionResult struct {
	AccountID   string  `json:"accountId"`
	Outcome     Outcome `json:"outcome"`
	ReferrerID  string  `json:"referrerId,omitempty"`
	BonusAmount int64   `json:"bonusAmount"`
	Attempts    int     `json:"attempts"`
	// DuplicateEvent is set when the trigger was filtered before reaching the ledger
	DuplicateEvent bool `json:"duplicateEvent,omitempty"`
}

// ReferralSummary is the referral view of one account
type ReferralSummary struct {
	AccountID           string                 `json:"accountId"`
	ReferralCode        string                 `json:"referralCode"`
	Balance             int64                  `json:"balance"`
	PendingReferrals    models.ReferralEntries `json:"pendingReferrals"`
	SuccessfulReferrals models.ReferralEntries `json:"successfulReferrals"`
	PendingCount        int                    `json:"pendingCount"`
	SuccessfulCount     int                    `json:"successfulCount"`
}

// NotificationEmitter delivers notifications after the ledger transaction commits
type NotificationEmitter interface {
	Notify(ctx context.Context, notifications ...*models.Notification) error
}

type ReferralLedgerService struct {
	accounts    repository.AccountRepository
	notifier    NotificationEmitter
	audit       audit.Logger
	bonusAmount int64
	maxAttempts int
}

func NewReferralLedgerService(accounts repository.AccountRepository, notifier NotificationEmitter, auditLogger audit.Logger, cfg *config.ReferralConfig) *ReferralLedgerService {
	maxAttempts := cfg.MaxTxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &ReferralLedgerService{
		accounts:    accounts,
		notifier:    notifier,
		audit:       auditLogger,
		bonusAmount: cfg.BonusAmount,
		maxAttempts: maxAttempts,
	}
}

// evaluation is the state captured by the last transaction attempt.
// It is rebuilt from scratch on every attempt.
type evaluation struct {
	outcome   Outcome
	account   *models.Account
	referrer  *models.Account
	ambiguous int
}

// ProcessQualifyingAction evaluates the referral bonus for accountID at most once.
// The caller must already have verified the qualifying event (e.g. a paid subscription).
func (s *ReferralLedgerService) ProcessQualifyingAction(ctx context.Context, accountID string) (*QualifyingActionResult, error) {
	var eval *evaluation
	attempts := 0

	for attempts < s.maxAttempts {
		attempts++
		err := s.accounts.RunInTx(ctx, func(tx repository.AccountTx) error {
			var err error
			eval, err = s.evaluate(ctx, tx, accountID)
			return err
		})
		if err == nil {
			break
		}
		eval = nil

		if errors.Is(err, ErrAccountNotFound) {
			log.Printf("[REFERRAL] Account %s not found", accountID)
			s.audit.LogError(accountID, accountID, err)
			return nil, err
		}
		if errors.Is(err, repository.ErrConflict) {
			log.Printf("[REFERRAL] Conflict processing %s (attempt %d/%d): %v", accountID, attempts, s.maxAttempts, err)
			continue
		}

		log.Printf("[REFERRAL] Failed to process qualifying action for %s: %v", accountID, err)
		s.audit.LogError(accountID, accountID, err)
		return nil, fmt.Errorf("process qualifying action: %w", err)
	}

	if eval == nil {
		s.audit.LogError(accountID, accountID, ErrTransactionConflict)
		return nil, fmt.Errorf("account %s after %d attempts: %w", accountID, attempts, ErrTransactionConflict)
	}

	if eval.ambiguous > 1 && eval.referrer != nil {
		log.Printf("[REFERRAL] %v: code %q has %d owners, credited %s", ErrReferrerLookupAmbiguous,
			eval.account.ReferredByCode, eval.ambiguous, eval.referrer.ID)
	}

	result := &QualifyingActionResult{
		AccountID: accountID,
		Outcome:   eval.outcome,
		Attempts:  attempts,
	}

	if eval.outcome != OutcomeCredited {
		log.Printf("[REFERRAL] No bonus for %s: %s", accountID, eval.outcome)
		s.audit.LogSkipped(accountID, accountID, string(eval.outcome))
		return result, nil
	}

	result.ReferrerID = eval.referrer.ID
	result.BonusAmount = s.bonusAmount
	log.Printf("[REFERRAL] Credited %d to %s and referrer %s", s.bonusAmount, accountID, eval.referrer.ID)
	s.audit.LogCredit(accountID, accountID, eval.referrer.ID, s.bonusAmount)

	// The credit is committed; notification failures are reported but never undo it.
	notifyCtx := context.WithoutCancel(ctx)
	if err := s.notifier.Notify(notifyCtx, s.bonusNotifications(eval.account, eval.referrer)...); err != nil {
		log.Printf("[REFERRAL] Notifications for %s incomplete: %v", accountID, err)
	}

	return result, nil
}

// evaluate is the transaction body. It must stay free of side effects outside tx.
func (s *ReferralLedgerService) evaluate(ctx context.Context, tx repository.AccountTx, accountID string) (*evaluation, error) {
	account, err := tx.GetAccount(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, err
	}

	eval := &evaluation{account: account}

	if account.HasCompletedQualifyingAction {
		eval.outcome = OutcomeAlreadyProcessed
		return eval, nil
	}

	if !account.IsReferred() {
		eval.outcome = OutcomeNotReferred
		return eval, s.markCompleted(ctx, tx, account)
	}

	candidates, err := tx.FindByReferralCode(ctx, account.ReferredByCode)
	if err != nil {
		return nil, err
	}
	eval.ambiguous = len(candidates)

	// Referral codes are unique by construction; the first match wins deterministically.
	// An account can never refer itself.
	var referrer *models.Account
	for _, candidate := range candidates {
		if candidate.ID != account.ID {
			referrer = candidate
			break
		}
	}

	if referrer == nil {
		eval.outcome = OutcomeReferrerNotFound
		return eval, s.markCompleted(ctx, tx, account)
	}

	entry, ok := referrer.PendingReferrals.Find(account.ID)
	if !ok {
		entry = models.ReferralEntry{ReferredAccountID: account.ID, ReferredFullName: account.FullName}
	}
	referrer.PendingReferrals = referrer.PendingReferrals.Remove(account.ID)
	referrer.SuccessfulReferrals = referrer.SuccessfulReferrals.Add(entry)
	referrer.Balance += s.bonusAmount

	account.Balance += s.bonusAmount
	account.HasCompletedQualifyingAction = true

	if err := tx.SaveAccount(ctx, referrer); err != nil {
		return nil, err
	}
	if err := tx.SaveAccount(ctx, account); err != nil {
		return nil, err
	}

	now := time.Now()
	reference := "referral:" + account.ID
	for _, credited := range []*models.Account{referrer, account} {
		if err := tx.AppendLedgerEntry(ctx, &models.LedgerEntry{
			ID:        uuid.NewString(),
			AccountID: credited.ID,
			Amount:    s.bonusAmount,
			EntryType: models.EntryTypeReferralBonus,
			Balance:   credited.Balance,
			Reference: reference,
			CreatedAt: now,
		}); err != nil {
			return nil, err
		}
	}

	eval.outcome = OutcomeCredited
	eval.referrer = referrer
	return eval, nil
}

func (s *ReferralLedgerService) markCompleted(ctx context.Context, tx repository.AccountTx, account *models.Account) error {
	account.HasCompletedQualifyingAction = true
	return tx.SaveAccount(ctx, account)
}

// notificationNamespace derives stable notification IDs so a resend of the same
// bonus notification is stored once.
var notificationNamespace = uuid.MustParse("6f1d6a3e-8f2b-4c61-9a57-3d0c2b7e41a9")

func (s *ReferralLedgerService) bonusNotifications(account, referrer *models.Account) []*models.Notification {
	now := time.Now()
	amount := s.bonusAmount
	return []*models.Notification{
		{
			ID:          uuid.NewSHA1(notificationNamespace, []byte("referral_bonus:"+referrer.ID+":"+account.ID)).String(),
			RecipientID: referrer.ID,
			SenderID:    account.ID,
			SenderName:  account.FullName,
			Type:        models.NotificationTypeReferralBonus,
			Text:        fmt.Sprintf("%s just subscribed using your referral code. You earned a bonus of %d.", account.FullName, amount),
			Amount:      &amount,
			Timestamp:   now,
		},
		{
			ID:          uuid.NewSHA1(notificationNamespace, []byte("signup_bonus:"+account.ID)).String(),
			RecipientID: account.ID,
			SenderID:    referrer.ID,
			SenderName:  referrer.FullName,
			Type:        models.NotificationTypeSignupBonus,
			Text:        fmt.Sprintf("You earned a bonus of %d for subscribing with %s's referral code.", amount, referrer.FullName),
			Amount:      &amount,
			Timestamp:   now,
		},
	}
}

// GetReferralSummary returns the referral state of accountID
func (s *ReferralLedgerService) GetReferralSummary(ctx context.Context, accountID string) (*ReferralSummary, error) {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	pending := account.PendingReferrals
	if pending == nil {
		pending = models.ReferralEntries{}
	}
	successful := account.SuccessfulReferrals
	if successful == nil {
		successful = models.ReferralEntries{}
	}

	return &ReferralSummary{
		AccountID:           account.ID,
		ReferralCode:        account.ReferralCode,
		Balance:             account.Balance,
		PendingReferrals:    pending,
		SuccessfulReferrals: successful,
		PendingCount:        len(pending),
		SuccessfulCount:     len(successful),
	}, nil
}
