package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tradepost/backend/internal/models"
)

// MemoryStore is an in-process account and notification store with optimistic
// concurrency control. Transactions buffer their writes and validate, at commit,
// that every account they read still carries the version they observed.
type MemoryStore struct {
	mu            sync.Mutex
	accounts      map[string]*models.Account
	ledger        []models.LedgerEntry
	notifications []models.Notification
	ratings       map[string]models.Rating
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*models.Account),
		ratings:  make(map[string]models.Rating),
	}
}

// Seed inserts or replaces accounts as-is
func (s *MemoryStore) Seed(accounts ...*models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range accounts {
		s.accounts[a.ID] = a.Clone()
	}
}

// Account returns a copy of the stored account, or nil
func (s *MemoryStore) Account(id string) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		return a.Clone()
	}
	return nil
}

func (s *MemoryStore) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notifications...)
}

func (s *MemoryStore) LedgerEntries() []models.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LedgerEntry(nil), s.ledger...)
}

func (s *MemoryStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.notifications {
		if existing.ID == n.ID {
			return nil
		}
	}
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a := s.Account(id); a != nil {
		return a, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListInactive(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*models.Account{}
	for _, a := range s.sortedAccountsLocked() {
		if a.ID <= afterID || !a.LastActiveAt.Before(cutoff) || a.HasCompletedQualifyingAction || a.Balance != 0 {
			continue
		}
		out = append(out, a.Clone())
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx AccountTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{
		store:   s,
		reads:   make(map[string]int),
		writes:  make(map[string]*models.Account),
		deletes: make(map[string]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *MemoryStore) sortedAccountsLocked() []*models.Account {
	accounts := make([]*models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts
}

func ratingKey(profileID, raterID string) string {
	return profileID + "|" + raterID
}

type memoryTx struct {
	store        *MemoryStore
	reads        map[string]int
	writes       map[string]*models.Account
	deletes      map[string]bool
	ledger       []models.LedgerEntry
	ratings      []models.Rating
	notifDeletes []string
}

// view returns the transaction's own copy of an account, recording the read version
func (t *memoryTx) view(a *models.Account) *models.Account {
	if w, ok := t.writes[a.ID]; ok {
		return w.Clone()
	}
	if _, seen := t.reads[a.ID]; !seen {
		t.reads[a.ID] = a.Version
	}
	return a.Clone()
}

func (t *memoryTx) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.deletes[id] {
		return nil, ErrNotFound
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	a, ok := t.store.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.view(a), nil
}

func (t *memoryTx) FindByReferralCode(ctx context.Context, code string) ([]*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	out := []*models.Account{}
	for _, a := range t.store.sortedAccountsLocked() {
		if a.ReferralCode == code && !t.deletes[a.ID] {
			out = append(out, t.view(a))
		}
	}
	return out, nil
}

func (t *memoryTx) SaveAccount(ctx context.Context, account *models.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	readVersion, ok := t.reads[account.ID]
	if !ok {
		return fmt.Errorf("account %s saved without being read", account.ID)
	}
	if account.Version != readVersion {
		return fmt.Errorf("optimistic lock failed for account %s: %w", account.ID, ErrConflict)
	}
	t.writes[account.ID] = account.Clone()
	return nil
}

func (t *memoryTx) DeleteAccount(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.reads[id]; !ok {
		if _, err := t.GetAccount(ctx, id); err != nil {
			return err
		}
	}
	delete(t.writes, id)
	t.deletes[id] = true
	return nil
}

func (t *memoryTx) DeleteNotifications(ctx context.Context, recipientID string) error {
	t.notifDeletes = append(t.notifDeletes, recipientID)
	return ctx.Err()
}

func (t *memoryTx) AppendLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	t.ledger = append(t.ledger, *entry)
	return ctx.Err()
}

func (t *memoryTx) InsertRating(ctx context.Context, rating *models.Rating) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := ratingKey(rating.ProfileID, rating.RaterID)
	for _, pending := range t.ratings {
		if ratingKey(pending.ProfileID, pending.RaterID) == key {
			return ErrDuplicate
		}
	}
	t.store.mu.Lock()
	_, exists := t.store.ratings[key]
	t.store.mu.Unlock()
	if exists {
		return ErrDuplicate
	}
	t.ratings = append(t.ratings, *rating)
	return nil
}

func (t *memoryTx) readOnly() bool {
	return len(t.writes) == 0 && len(t.deletes) == 0 && len(t.ledger) == 0 &&
		len(t.ratings) == 0 && len(t.notifDeletes) == 0
}

func (t *memoryTx) commit() error {
	if t.readOnly() {
		return nil
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, version := range t.reads {
		current, ok := s.accounts[id]
		if !ok || current.Version != version {
			return fmt.Errorf("account %s changed since read: %w", id, ErrConflict)
		}
	}
	for _, r := range t.ratings {
		if _, exists := s.ratings[ratingKey(r.ProfileID, r.RaterID)]; exists {
			return ErrDuplicate
		}
	}

	now := time.Now()
	for id, w := range t.writes {
		stored := w.Clone()
		stored.Version = s.accounts[id].Version + 1
		stored.UpdatedAt = now
		s.accounts[id] = stored
	}
	for id := range t.deletes {
		delete(s.accounts, id)
	}
	s.ledger = append(s.ledger, t.ledger...)
	for _, r := range t.ratings {
		s.ratings[ratingKey(r.ProfileID, r.RaterID)] = r
	}
	for _, recipientID := range t.notifDeletes {
		kept := s.notifications[:0]
		for _, n := range s.notifications {
			if n.RecipientID != recipientID {
				kept = append(kept, n)
			}
		}
		s.notifications = kept
	}
	return nil
}
