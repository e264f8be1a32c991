package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	domainchat "github.com/gtpankaj4/campusmesh-sub001/internal/domain/chat"
)

const (
	// DefaultSeenBatchSize bounds how many seen markers are issued per burst.
	DefaultSeenBatchSize = 3
	// DefaultSeenBatchDelay is the pause between bursts.
	DefaultSeenBatchDelay = 50 * time.Millisecond
)

// MarkSeenOutcome aggregates the best-effort seen markers issued for one
// thread open. Partial failure is an observability fact, not an error.
type MarkSeenOutcome struct {
	Marked int
	Failed int
}

// ReadTracker marks counterpart messages as seen when a user opens a thread.
// Markers fire concurrently in fixed-size batches separated by a small delay
// to bound write pressure; the batches are joined all-settled, so one failed
// marker never blocks or fails the rest.
type ReadTracker struct {
	Store      domainchat.MessageStore
	Logger     *slog.Logger
	BatchSize  int
	BatchDelay time.Duration
}

// MarkThreadSeen stamps every message in the thread that userID has not seen
// yet. Errors reading the snapshot degrade to a zero outcome.
func (t *ReadTracker) MarkThreadSeen(ctx context.Context, threadID domainchat.ThreadID, userID string, seenAt int64) MarkSeenOutcome {
	if t.Store == nil || userID == "" {
		return MarkSeenOutcome{}
	}
	messages, err := t.Store.Messages(ctx, threadID)
	if err != nil {
		if t.Logger != nil {
			t.Logger.Warn("seen sweep snapshot failed", "error", err, "thread_id", threadID)
		}
		return MarkSeenOutcome{}
	}

	unseen := make([]domainchat.Message, 0, len(messages))
	for _, m := range messages {
		if m.UnseenBy(userID) {
			unseen = append(unseen, m)
		}
	}
	if len(unseen) == 0 {
		return MarkSeenOutcome{}
	}

	batchSize := t.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultSeenBatchSize
	}
	delay := t.BatchDelay
	if delay <= 0 {
		delay = DefaultSeenBatchDelay
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		outcome MarkSeenOutcome
	)
	for start := 0; start < len(unseen); start += batchSize {
		end := start + batchSize
		if end > len(unseen) {
			end = len(unseen)
		}
		for _, msg := range unseen[start:end] {
			wg.Add(1)
			go func(msg domainchat.Message) {
				defer wg.Done()
				err := t.Store.MarkSeen(ctx, threadID, msg.ID, userID, seenAt)
				mu.Lock()
				if err != nil {
					outcome.Failed++
				} else {
					outcome.Marked++
				}
				mu.Unlock()
				if err != nil && t.Logger != nil {
					t.Logger.Warn("mark seen failed", "error", err, "thread_id", threadID, "message_id", msg.ID)
				}
			}(msg)
		}
		if end < len(unseen) {
			if !sleepCtx(ctx, delay) {
				break
			}
		}
	}
	wg.Wait()

	if t.Logger != nil && outcome.Failed > 0 {
		t.Logger.Warn("seen sweep finished with failures", "thread_id", threadID, "marked", outcome.Marked, "failed", outcome.Failed)
	}
	return outcome
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
