package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tradepost/backend/internal/models"
	"github.com/tradepost/backend/internal/repository"
)

// Notifier writes each notification to every sink, retrying a sink a bounded
// number of times. It is best effort: failures are returned for logging only.
type Notifier struct {
	sinks      []repository.NotificationRepository
	attempts   int
	retryDelay time.Duration
}

func NewNotifier(attempts int, sinks ...repository.NotificationRepository) *Notifier {
	if attempts < 1 {
		attempts = 1
	}
	return &Notifier{
		sinks:      sinks,
		attempts:   attempts,
		retryDelay: 100 * time.Millisecond,
	}
}

func (n *Notifier) Notify(ctx context.Context, notifications ...*models.Notification) error {
	var errs []error
	for _, notification := range notifications {
		for i, sink := range n.sinks {
			if err := n.deliver(ctx, sink, notification); err != nil {
				log.Printf("[NOTIFY] %v: sink %d, notification %s to %s: %v",
					ErrNotificationWriteFailed, i, notification.ID, notification.RecipientID, err)
				errs = append(errs, fmt.Errorf("%w: %s: %w", ErrNotificationWriteFailed, notification.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) deliver(ctx context.Context, sink repository.NotificationRepository, notification *models.Notification) error {
	var err error
	for attempt := 1; attempt <= n.attempts; attempt++ {
		if err = sink.CreateNotification(ctx, notification); err == nil {
			return nil
		}
		if attempt == n.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * n.retryDelay):
		}
	}
	return err
}
