package services

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tradepost/backend/internal/models"
)

type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

type MockNotificationEmitter struct {
	mock.Mock
}

func (m *MockNotificationEmitter) Notify(ctx context.Context, notifications ...*models.Notification) error {
	args := m.Called(ctx, notifications)
	return args.Error(0)
}

type MockAuditLogger struct {
	mock.Mock
}

func (m *MockAuditLogger) LogCredit(reference, accountID, referrerID string, amount int64) {
	m.Called(reference, accountID, referrerID, amount)
}

func (m *MockAuditLogger) LogSkipped(reference, accountID, reason string) {
	m.Called(reference, accountID, reason)
}

func (m *MockAuditLogger) LogPurge(accountID, referrerID string) {
	m.Called(accountID, referrerID)
}

func (m *MockAuditLogger) LogError(reference, accountID string, err error) {
	m.Called(reference, accountID, err)
}

// quietAudit accepts every audit call
func quietAudit() *MockAuditLogger {
	m := &MockAuditLogger{}
	m.On("LogCredit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogSkipped", mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogPurge", mock.Anything, mock.Anything).Maybe()
	m.On("LogError", mock.Anything, mock.Anything, mock.Anything).Maybe()
	return m
}
