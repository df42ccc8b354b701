package models

import (
	"time"
)

// Account represents one marketplace user (subscriber and/or referrer)
type Account struct {
	ID                           string          `json:"id" db:"id"`
	FullName                     string          `json:"fullName" db:"full_name"`
	Email                        string          `json:"email" db:"email"`
	ReferralCode                 string          `json:"referralCode" db:"referral_code"`
	ReferredByCode               string          `json:"referredByCode,omitempty" db:"referred_by_code"` // empty when not referred
	HasCompletedQualifyingAction bool            `json:"hasCompletedQualifyingAction" db:"has_completed_qualifying_action"`
	Balance                      int64           `json:"balance" db:"balance"` // smallest currency unit
	PendingReferrals             ReferralEntries `json:"pendingReferrals" db:"pending_referrals"`
	SuccessfulReferrals          ReferralEntries `json:"successfulReferrals" db:"successful_referrals"`
	RatingAverage                float64         `json:"ratingAverage" db:"rating_average"`
	RatingCount                  int             `json:"ratingCount" db:"rating_count"`
	LastActiveAt                 time.Time       `json:"lastActiveAt" db:"last_active_at"`
	Version                      int             `json:"version" db:"version"` // for optimistic locking
	CreatedAt                    time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt                    time.Time       `json:"updatedAt" db:"updated_at"`
}

// IsReferred reports whether the account signed up with a referral code
func (a *Account) IsReferred() bool {
	return a.ReferredByCode != ""
}

// Clone returns a deep copy so callers can mutate without aliasing the referral slices
func (a *Account) Clone() *Account {
	c := *a
	c.PendingReferrals = a.PendingReferrals.Clone()
	c.SuccessfulReferrals = a.SuccessfulReferrals.Clone()
	return &c
}
