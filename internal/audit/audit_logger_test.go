package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLastEvent(t *testing.T, buf *bytes.Buffer) AuditEvent {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	idx := strings.Index(line, "AUDIT: ")
	require.GreaterOrEqual(t, idx, 0)

	var event AuditEvent
	require.NoError(t, json.Unmarshal([]byte(line[idx+len("AUDIT: "):]), &event))
	return event
}

func TestAuditLogger(t *testing.T) {
	t.Run("credit", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewAuditLoggerWith(log.New(&buf, "", 0))

		logger.LogCredit("acct-a", "acct-a", "acct-r", 1000)

		event := decodeLastEvent(t, &buf)
		assert.Equal(t, EventReferralCredit, event.EventType)
		assert.Equal(t, "acct-a", event.AccountID)
		assert.Equal(t, int64(1000), event.Amount)
		assert.Equal(t, "SUCCESS", event.Status)
	})

	t.Run("error", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewAuditLoggerWith(log.New(&buf, "", 0))

		logger.LogError("ref-1", "acct-a", errors.New("boom"))

		event := decodeLastEvent(t, &buf)
		assert.Equal(t, EventError, event.EventType)
		assert.Equal(t, "FAILED", event.Status)
		details, ok := event.Details.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "boom", details["error"])
	})

	t.Run("purge without referrer omits details", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewAuditLoggerWith(log.New(&buf, "", 0))

		logger.LogPurge("acct-x", "")

		event := decodeLastEvent(t, &buf)
		assert.Equal(t, EventAccountPurged, event.EventType)
		assert.Nil(t, event.Details)
	})
}
