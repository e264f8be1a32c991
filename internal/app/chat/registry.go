package chat

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	domainchat "github.com/gtpankaj4/campusmesh-sub001/internal/domain/chat"
)

// DefaultPreviewLimit caps the denormalized preview text stored on registry
// entries.
const DefaultPreviewLimit = 500

// RegistryWriter maintains the per-user thread registry. The two entries of
// a non-self thread are written as independent operations with no transaction
// around them; a partial write is accepted, logged, and left for the next
// send (or an explicit Reconcile) to repair.
type RegistryWriter struct {
	Store        domainchat.RegistryStore
	Logger       *slog.Logger
	PreviewLimit int
}

// RecordSend rewrites the registry entries of both participants after a
// successful append. It returns how many entries were written; the send is
// already durable, so callers treat a shortfall as best-effort loss only.
func (w *RegistryWriter) RecordSend(ctx context.Context, threadID domainchat.ThreadID, senderID, recipientID string, msg domainchat.Message) int {
	if w.Store == nil {
		return 0
	}
	limit := w.PreviewLimit
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	preview := domainchat.PreviewSnippet(msg.Body, limit)

	type write struct {
		owner string
		entry domainchat.RegistryEntry
	}
	writes := []write{{
		owner: senderID,
		entry: domainchat.RegistryEntry{
			ThreadID:      threadID,
			CounterpartID: recipientID,
			LastMessage:   preview,
			LastMessageAt: msg.SentAt,
		},
	}}
	if recipientID != senderID {
		writes = append(writes, write{
			owner: recipientID,
			entry: domainchat.RegistryEntry{
				ThreadID:      threadID,
				CounterpartID: senderID,
				LastMessage:   preview,
				LastMessageAt: msg.SentAt,
			},
		})
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		written int
	)
	for _, item := range writes {
		wg.Add(1)
		go func(item write) {
			defer wg.Done()
			if err := w.Store.PutEntry(ctx, item.owner, item.entry); err != nil {
				if w.Logger != nil {
					w.Logger.Warn("registry entry write failed", "error", err, "owner_id", item.owner, "thread_id", threadID)
				}
				return
			}
			mu.Lock()
			written++
			mu.Unlock()
		}(item)
	}
	wg.Wait()
	return written
}

// Reconcile recomputes a thread's authoritative registry entry from the
// message log and rewrites any participant entry that diverged. The registry
// tolerates a divergence window after a partial dual-write; this is the
// explicit repair read, never invoked automatically.
func (w *RegistryWriter) Reconcile(ctx context.Context, store domainchat.MessageStore, threadID domainchat.ThreadID) ([]string, error) {
	first, second, ok := threadID.Participants()
	if !ok {
		return nil, domainchat.ErrParticipantRequired
	}
	owners := []string{first}
	if second != first {
		owners = append(owners, second)
	}

	var messages []domainchat.Message
	current := make([][]domainchat.RegistryEntry, len(owners))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		messages, err = store.Messages(gctx, threadID)
		return err
	})
	for i, owner := range owners {
		i, owner := i, owner
		g.Go(func() error {
			var err error
			current[i], err = w.Store.Entries(gctx, owner)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}
	last := messages[len(messages)-1]

	limit := w.PreviewLimit
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	preview := domainchat.PreviewSnippet(last.Body, limit)

	var repaired []string
	for i, owner := range owners {
		want := domainchat.RegistryEntry{
			ThreadID:      threadID,
			CounterpartID: threadID.Counterpart(owner),
			LastMessage:   preview,
			LastMessageAt: last.SentAt,
		}
		if registryHasEntry(current[i], want) {
			continue
		}
		if err := w.Store.PutEntry(ctx, owner, want); err != nil {
			return repaired, err
		}
		repaired = append(repaired, owner)
	}
	return repaired, nil
}

func registryHasEntry(entries []domainchat.RegistryEntry, want domainchat.RegistryEntry) bool {
	for _, entry := range entries {
		if entry.ThreadID == want.ThreadID {
			return entry == want
		}
	}
	return false
}
