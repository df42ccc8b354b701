package models

import (
	"time"
)

const (
	EntryTypeReferralBonus = "REFERRAL_BONUS"
)

// LedgerEntry records one balance change, written in the same transaction as the change
type LedgerEntry struct {
	ID        string    `json:"id" db:"id"`
	AccountID string    `json:"accountId" db:"account_id"`
	Amount    int64     `json:"amount" db:"amount"` // in smallest currency unit
	EntryType string    `json:"entryType" db:"entry_type"`
	Balance   int64     `json:"balance" db:"balance"` // balance after the entry
	Reference string    `json:"reference" db:"reference"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
