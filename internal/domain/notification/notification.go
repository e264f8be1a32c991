package notification

import (
	"context"
	"errors"
	"strings"

	"github.com/gtpankaj4/campusmesh-sub001/internal/domain/chat"
)

var ErrRecipientRequired = errors.New("notification: recipient id is required")

// Record is the payload handed to the notification sink when a message is
// sent to a non-self counterpart.
type Record struct {
	ID          string
	RecipientID string
	SenderID    string
	SenderName  string
	ThreadID    chat.ThreadID
	CreatedAt   int64
}

// Validate checks the fields the sink contract requires.
func (r Record) Validate() error {
	if strings.TrimSpace(r.RecipientID) == "" {
		return ErrRecipientRequired
	}
	return nil
}

// Sink receives message notifications. Delivery is best effort: the send
// path swallows sink errors after logging them.
type Sink interface {
	Notify(ctx context.Context, record Record) error
}

// Log is where delivered notifications land for the recipient to read.
type Log interface {
	Append(ctx context.Context, record Record) error
	ForRecipient(ctx context.Context, recipientID string) ([]Record, error)
}
