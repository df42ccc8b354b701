package models

import (
	"time"
)

const (
	NotificationTypeReferralBonus = "referral_bonus"
	NotificationTypeSignupBonus   = "signup_bonus"
)

// Notification is an append-only user-facing message
type Notification struct {
	ID          string    `json:"id" db:"id"`
	RecipientID string    `json:"recipientId" db:"recipient_id"`
	SenderID    string    `json:"senderId" db:"sender_id"`
	SenderName  string    `json:"senderName" db:"sender_name"`
	Type        string    `json:"type" db:"type"`
	Text        string    `json:"text" db:"text"`
	Amount      *int64    `json:"amount,omitempty" db:"amount"`
	IsRead      bool      `json:"isRead" db:"is_read"`
	Timestamp   time.Time `json:"timestamp" db:"created_at"`
}
