package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// ReferralEntry identifies an account referred by the owner of the list
type ReferralEntry struct {
	ReferredAccountID string `json:"referredAccountId"`
	ReferredFullName  string `json:"referredFullName"`
}

// ReferralEntries is a set keyed by ReferredAccountID, stored as a JSONB array
type ReferralEntries []ReferralEntry

// Contains reports whether an entry for accountID is present
func (e ReferralEntries) Contains(accountID string) bool {
	_, ok := e.Find(accountID)
	return ok
}

// Find returns the entry for accountID
func (e ReferralEntries) Find(accountID string) (ReferralEntry, bool) {
	for _, entry := range e {
		if entry.ReferredAccountID == accountID {
			return entry, true
		}
	}
	return ReferralEntry{}, false
}

// Add appends entry unless an entry with the same account ID already exists
func (e ReferralEntries) Add(entry ReferralEntry) ReferralEntries {
	if e.Contains(entry.ReferredAccountID) {
		return e
	}
	return append(e, entry)
}

// Remove drops every entry for accountID
func (e ReferralEntries) Remove(accountID string) ReferralEntries {
	out := make(ReferralEntries, 0, len(e))
	for _, entry := range e {
		if entry.ReferredAccountID != accountID {
			out = append(out, entry)
		}
	}
	return out
}

func (e ReferralEntries) Clone() ReferralEntries {
	if e == nil {
		return nil
	}
	out := make(ReferralEntries, len(e))
	copy(out, e)
	return out
}

// Value implements driver.Valuer for ReferralEntries. The JSON is passed as
// text so lib/pq does not encode it as bytea.
func (e ReferralEntries) Value() (driver.Value, error) {
	if e == nil {
		return "[]", nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for ReferralEntries
func (e *ReferralEntries) Scan(value any) error {
	if value == nil {
		*e = ReferralEntries{}
		return nil
	}

	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, e)
}
