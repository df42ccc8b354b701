package audit

import (
	"encoding/json"
	"log"
	"time"
)

const (
	EventReferralCredit  = "REFERRAL_CREDIT"
	EventReferralSkipped = "REFERRAL_SKIPPED"
	EventAccountPurged   = "ACCOUNT_PURGED"
	EventError           = "ERROR"
)

type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Reference string    `json:"reference"`
	AccountID string    `json:"account_id"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

// Logger is the audit sink used by the services
type Logger interface {
	LogCredit(reference, accountID, referrerID string, amount int64)
	LogSkipped(reference, accountID, reason string)
	LogPurge(accountID, referrerID string)
	LogError(reference, accountID string, err error)
}

// AuditLogger writes one JSON line per event through the standard logger
type AuditLogger struct {
	logger *log.Logger
}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{logger: log.Default()}
}

func NewAuditLoggerWith(logger *log.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

func (a *AuditLogger) LogCredit(reference, accountID, referrerID string, amount int64) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: EventReferralCredit,
		Reference: reference,
		AccountID: accountID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details:   map[string]string{"referrer_id": referrerID},
	})
}

func (a *AuditLogger) LogSkipped(reference, accountID, reason string) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: EventReferralSkipped,
		Reference: reference,
		AccountID: accountID,
		Status:    "SUCCESS",
		Details:   map[string]string{"reason": reason},
	})
}

func (a *AuditLogger) LogPurge(accountID, referrerID string) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: EventAccountPurged,
		AccountID: accountID,
		Status:    "SUCCESS",
	}
	if referrerID != "" {
		event.Details = map[string]string{"referrer_id": referrerID}
	}
	a.log(event)
}

func (a *AuditLogger) LogError(reference, accountID string, err error) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: EventError,
		Reference: reference,
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	a.logger.Printf("AUDIT: %s", string(data))
}
