package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tradepost/backend/internal/config"
	"github.com/tradepost/backend/internal/models"
	"github.com/tradepost/backend/internal/repository"
)

const testBonus = int64(1000)

func testReferralConfig() *config.ReferralConfig {
	return &config.ReferralConfig{BonusAmount: testBonus, MaxTxAttempts: 5, NotifyAttempts: 1}
}

func referrerAccount(pending ...models.ReferralEntry) *models.Account {
	return &models.Account{
		ID:               "acct-r",
		FullName:         "Rita Referrer",
		ReferralCode:     "RITA01",
		Balance:          500,
		PendingReferrals: pending,
		LastActiveAt:     time.Now(),
	}
}

func referredAccount(code string) *models.Account {
	return &models.Account{
		ID:             "acct-a",
		FullName:       "Alice",
		ReferralCode:   "ALICE1",
		ReferredByCode: code,
		LastActiveAt:   time.Now(),
	}
}

func newLedgerWithStore(accounts ...*models.Account) (*ReferralLedgerService, *repository.MemoryStore) {
	store := repository.NewMemoryStore()
	store.Seed(accounts...)
	service := NewReferralLedgerService(store, NewNotifier(1, store), quietAudit(), testReferralConfig())
	return service, store
}

func TestReferralLedgerService_ProcessQualifyingAction(t *testing.T) {
	ctx := context.Background()

	t.Run("pending referral moves to successful and both parties are credited", func(t *testing.T) {
		service, store := newLedgerWithStore(
			referrerAccount(models.ReferralEntry{ReferredAccountID: "acct-a", ReferredFullName: "Alice"}),
			referredAccount("RITA01"),
		)

		result, err := service.ProcessQualifyingAction(ctx, "acct-a")
		require.NoError(t, err)
		assert.Equal(t, OutcomeCredited, result.Outcome)
		assert.Equal(t, "acct-r", result.ReferrerID)
		assert.Equal(t, testBonus, result.BonusAmount)
		assert.Equal(t, 1, result.Attempts)

		referrer := store.Account("acct-r")
		assert.Empty(t, referrer.PendingReferrals)
		assert.Equal(t, models.ReferralEntries{{ReferredAccountID: "acct-a", ReferredFullName: "Alice"}}, referrer.SuccessfulReferrals)
		assert.Equal(t, int64(1500), referrer.Balance)

		account := store.Account("acct-a")
		assert.Equal(t, testBonus, account.Balance)
		assert.True(t, account.HasCompletedQualifyingAction)

		notifications := store.Notifications()
		require.Len(t, notifications, 2)
		assert.Equal(t, "acct-r", notifications[0].RecipientID)
		assert.Equal(t, "acct-a", notifications[0].SenderID)
		assert.Equal(t, models.NotificationTypeReferralBonus, notifications[0].Type)
		assert.Equal(t, "acct-a", notifications[1].RecipientID)
		assert.Equal(t, "acct-r", notifications[1].SenderID)
		for _, n := range notifications {
			assert.False(t, n.IsRead)
			require.NotNil(t, n.Amount)
			assert.Equal(t, testBonus, *n.Amount)
		}

		entries := store.LedgerEntries()
		require.Len(t, entries, 2)
		assert.Equal(t, "acct-r", entries[0].AccountID)
		assert.Equal(t, int64(1500), entries[0].Balance)
		assert.Equal(t, "acct-a", entries[1].AccountID)
		assert.Equal(t, models.EntryTypeReferralBonus, entries[1].EntryType)
		assert.Equal(t, "referral:acct-a", entries[1].Reference)
	})

	t.Run("missing pending entry is synthesized", func(t *testing.T) {
		service, store := newLedgerWithStore(referrerAccount(), referredAccount("RITA01"))

		result, err := service.ProcessQualifyingAction(ctx, "acct-a")
		require.NoError(t, err)
		assert.Equal(t, OutcomeCredited, result.Outcome)

		referrer := store.Account("acct-r")
		assert.True(t, referrer.SuccessfulReferrals.Contains("acct-a"))
		entry, _ := referrer.SuccessfulReferrals.Find("acct-a")
		assert.Equal(t, "Alice", entry.ReferredFullName)
		assert.Equal(t, int64(1500), referrer.Balance)
		assert.Equal(t, testBonus, store.Account("acct-a").Balance)
	})

	t.Run("second call pays nothing", func(t *testing.T) {
		service, store := newLedgerWithStore(referrerAccount(), referredAccount("RITA01"))

		_, err := service.ProcessQualifyingAction(ctx, "acct-a")
		require.NoError(t, err)

		result, err := service.ProcessQualifyingAction(ctx, "acct-a")
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyProcessed, result.Outcome)
		assert.Zero(t, result.BonusAmount)

		assert.Equal(t, int64(1500), store.Account("acct-r").Balance)
		assert.Equal(t, testBonus, store.Account("acct-a").Balance)
		assert.True(t, store.Account("acct-a").HasCompletedQualifyingAction)
		assert.Len(t, store.Notifications(), 2)
		assert.Len(t, store.LedgerEntries(), 2)
	})

	t.Run("organic signup sets flag without credit", func(t *testing.T) {
		service, store := newLedgerWithStore(referrerAccount(), referredAccount(""))

		result, err := service.ProcessQualifyingAction(ctx, "acct-a")
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotReferred, result.Outcome)

		assert.True(t, store.Account("acct-a").HasCompletedQualifyingAction)
		assert.Zero(t, store.Account("acct-a").Balance)
		assert.Equal(t, int64(500), store.Account("acct-r").Balance)
		assert.Empty(t, store.Notifications())
		assert.Empty(t, store.LedgerEntries())
	})

	t.Run("dangling referral code is a no-op", func(t *testing.T) {
		service, store := newLedgerWithStore(referrerAccount(), referredAccount("NOBODY"))

		result, err := service.ProcessQualifyingAction(ctx, "acct-a")
		require.NoError(t, err)
		assert.Equal(t, OutcomeReferrerNotFound, result.Outcome)

		assert.True(t, store.Account("acct-a").HasCompletedQualifyingAction)
		assert.Zero(t, store.Account("acct-a").Balance)
		assert.Equal(t, int64(500), store.Account("acct-r").Balance)
		assert.Empty(t, store.Notifications())
	})

	t.Run("self referral is not credited", func(t *testing.T) {
		account := referredAccount("ALICE1")
		service, store := newLedgerWithStore(account)

		result, err := service.ProcessQualifyingAction(ctx, "acct-a")
		require.NoError(t, err)
		assert.Equal(t, OutcomeReferrerNotFound, result.Outcome)
		assert.Zero(t, store.Account("acct-a").Balance)
	})

	t.Run("ambiguous code credits the lowest id deterministically", func(t *testing.T) {
		duplicate := referrerAccount()
		duplicate.ID = "acct-z"
		service, store := newLedgerWithStore(referrerAccount(), duplicate, referredAccount("RITA01"))

		result, err := service.ProcessQualifyingAction(ctx, "acct-a")
		require.NoError(t, err)
		assert.Equal(t, "acct-r", result.ReferrerID)
		assert.Equal(t, int64(1500), store.Account("acct-r").Balance)
		assert.Equal(t, int64(500), store.Account("acct-z").Balance)
	})

	t.Run("unknown account", func(t *testing.T) {
		service, _ := newLedgerWithStore(referrerAccount())

		result, err := service.ProcessQualifyingAction(ctx, "missing")
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestReferralLedgerService_ConcurrentInvocations(t *testing.T) {
	for _, n := range []int{1, 2, 10, 25} {
		service, store := newLedgerWithStore(
			referrerAccount(models.ReferralEntry{ReferredAccountID: "acct-a", ReferredFullName: "Alice"}),
			referredAccount("RITA01"),
		)

		var wg sync.WaitGroup
		results := make([]*QualifyingActionResult, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = service.ProcessQualifyingAction(context.Background(), "acct-a")
			}(i)
		}
		wg.Wait()

		credited := 0
		for i := 0; i < n; i++ {
			require.NoError(t, errs[i])
			if results[i].Outcome == OutcomeCredited {
				credited++
			}
		}

		assert.Equal(t, 1, credited, "n=%d", n)
		assert.Equal(t, int64(1500), store.Account("acct-r").Balance, "n=%d", n)
		assert.Equal(t, testBonus, store.Account("acct-a").Balance, "n=%d", n)
		assert.Len(t, store.Account("acct-r").SuccessfulReferrals, 1)
		assert.Len(t, store.Notifications(), 2)
		assert.Len(t, store.LedgerEntries(), 2)
	}
}

// flakyRepository reports a conflict for the first failures transactions
type flakyRepository struct {
	repository.AccountRepository
	mu       sync.Mutex
	failures int
	calls    int
}

func (r *flakyRepository) RunInTx(ctx context.Context, fn func(tx repository.AccountTx) error) error {
	r.mu.Lock()
	r.calls++
	fail := r.calls <= r.failures
	r.mu.Unlock()
	if fail {
		return repository.ErrConflict
	}
	return r.AccountRepository.RunInTx(ctx, fn)
}

func TestReferralLedgerService_ConflictRetries(t *testing.T) {
	t.Run("retries until commit", func(t *testing.T) {
		store := repository.NewMemoryStore()
		store.Seed(referrerAccount(), referredAccount("RITA01"))
		repo := &flakyRepository{AccountRepository: store, failures: 2}
		service := NewReferralLedgerService(repo, NewNotifier(1, store), quietAudit(), testReferralConfig())

		result, err := service.ProcessQualifyingAction(context.Background(), "acct-a")
		require.NoError(t, err)
		assert.Equal(t, 3, result.Attempts)
		assert.Equal(t, OutcomeCredited, result.Outcome)
		assert.Equal(t, int64(1500), store.Account("acct-r").Balance)
	})

	t.Run("surfaces TransactionConflict after the bound", func(t *testing.T) {
		store := repository.NewMemoryStore()
		store.Seed(referrerAccount(), referredAccount("RITA01"))
		repo := &flakyRepository{AccountRepository: store, failures: 100}
		service := NewReferralLedgerService(repo, NewNotifier(1, store), quietAudit(), testReferralConfig())

		result, err := service.ProcessQualifyingAction(context.Background(), "acct-a")
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrTransactionConflict)
		assert.Equal(t, 5, repo.calls)
		assert.Equal(t, int64(500), store.Account("acct-r").Balance)
		assert.False(t, store.Account("acct-a").HasCompletedQualifyingAction)
	})

	t.Run("other store errors are not retried", func(t *testing.T) {
		store := repository.NewMemoryStore()
		store.Seed(referredAccount("RITA01"))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		service := NewReferralLedgerService(store, NewNotifier(1, store), quietAudit(), testReferralConfig())

		_, err := service.ProcessQualifyingAction(ctx, "acct-a")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestReferralLedgerService_NotificationFailureKeepsCredit(t *testing.T) {
	store := repository.NewMemoryStore()
	store.Seed(referrerAccount(), referredAccount("RITA01"))

	emitter := &MockNotificationEmitter{}
	emitter.On("Notify", mock.Anything, mock.MatchedBy(func(ns []*models.Notification) bool {
		return len(ns) == 2 && ns[0].RecipientID == "acct-r" && ns[1].RecipientID == "acct-a"
	})).Return(errors.Join(ErrNotificationWriteFailed)).Once()

	auditLogger := quietAudit()
	service := NewReferralLedgerService(store, emitter, auditLogger, testReferralConfig())

	result, err := service.ProcessQualifyingAction(context.Background(), "acct-a")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, result.Outcome)
	assert.Equal(t, int64(1500), store.Account("acct-r").Balance)
	assert.Equal(t, testBonus, store.Account("acct-a").Balance)

	emitter.AssertExpectations(t)
	auditLogger.AssertCalled(t, "LogCredit", "acct-a", "acct-a", "acct-r", testBonus)
}

func TestReferralLedgerService_GetReferralSummary(t *testing.T) {
	service, _ := newLedgerWithStore(
		referrerAccount(models.ReferralEntry{ReferredAccountID: "acct-b", ReferredFullName: "Bob"}),
		referredAccount("RITA01"),
	)
	ctx := context.Background()

	_, err := service.ProcessQualifyingAction(ctx, "acct-a")
	require.NoError(t, err)

	summary, err := service.GetReferralSummary(ctx, "acct-r")
	require.NoError(t, err)
	assert.Equal(t, "RITA01", summary.ReferralCode)
	assert.Equal(t, int64(1500), summary.Balance)
	assert.Equal(t, 1, summary.PendingCount)
	assert.Equal(t, 1, summary.SuccessfulCount)

	_, err = service.GetReferralSummary(ctx, "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
