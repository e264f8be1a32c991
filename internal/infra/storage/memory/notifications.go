package memory

import (
	"context"
	"sync"

	domainnotification "github.com/gtpankaj4/campusmesh-sub001/internal/domain/notification"
)

// NotificationLog stores delivered notifications in memory, newest last. It
// doubles as the in-process Sink when no broker is configured.
type NotificationLog struct {
	mu    sync.RWMutex
	items map[string][]domainnotification.Record
}

func NewNotificationLog() *NotificationLog {
	return &NotificationLog{items: make(map[string][]domainnotification.Record)}
}

func (l *NotificationLog) Append(ctx context.Context, record domainnotification.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[record.RecipientID] = append(l.items[record.RecipientID], record)
	return nil
}

// Notify makes the log usable directly as a notification sink.
func (l *NotificationLog) Notify(ctx context.Context, record domainnotification.Record) error {
	return l.Append(ctx, record)
}

func (l *NotificationLog) ForRecipient(ctx context.Context, recipientID string) ([]domainnotification.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domainnotification.Record(nil), l.items[recipientID]...), nil
}

var (
	_ domainnotification.Log  = (*NotificationLog)(nil)
	_ domainnotification.Sink = (*NotificationLog)(nil)
)
