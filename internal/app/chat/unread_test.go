package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	domainchat "github.com/gtpankaj4/campusmesh-sub001/internal/domain/chat"
	"github.com/gtpankaj4/campusmesh-sub001/internal/infra/storage/memory"
)

// waitFor polls because store subscriptions deliver snapshots asynchronously
// and coalesce bursts.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func sendThrough(t *testing.T, store *memory.ChatStore, senderID, recipientID, body string, at int64) domainchat.Message {
	t.Helper()
	ctx := context.Background()
	threadID := domainchat.DeriveThreadID(senderID, recipientID)
	msg, err := store.Append(ctx, threadID, senderID, body, at)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	writer := &RegistryWriter{Store: store}
	if written := writer.RecordSend(ctx, threadID, senderID, recipientID, msg); written == 0 {
		t.Fatalf("no registry entries written")
	}
	return msg
}

func TestUnreadWatcher_CountsIncomingMessage(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()

	watcher := NewUnreadWatcher(store, nil, nil)
	if err := watcher.Start(ctx, "b1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer watcher.Stop()

	sendThrough(t, store, "a1", "b1", "hello", 1000)
	waitFor(t, func() bool { return watcher.Total() == 1 })

	threadID := domainchat.DeriveThreadID("a1", "b1")
	waitFor(t, func() bool { return watcher.ThreadCount(threadID) == 1 })
}

func TestUnreadWatcher_DropsToZeroWhenThreadOpened(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()
	threadID := domainchat.DeriveThreadID("a1", "b1")

	watcher := NewUnreadWatcher(store, nil, nil)
	if err := watcher.Start(ctx, "b1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer watcher.Stop()

	sendThrough(t, store, "a1", "b1", "hello", 1000)
	waitFor(t, func() bool { return watcher.Total() == 1 })

	tracker := &ReadTracker{Store: store, BatchDelay: time.Millisecond}
	outcome := tracker.MarkThreadSeen(ctx, threadID, "b1", 2000)
	if outcome.Marked != 1 {
		t.Fatalf("unexpected sweep outcome: %+v", outcome)
	}
	waitFor(t, func() bool { return watcher.Total() == 0 })
}

func TestUnreadWatcher_SumsAcrossThreads(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()

	watcher := NewUnreadWatcher(store, nil, nil)
	if err := watcher.Start(ctx, "b1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer watcher.Stop()

	sendThrough(t, store, "a1", "b1", "one", 1000)
	sendThrough(t, store, "a1", "b1", "two", 2000)
	sendThrough(t, store, "c1", "b1", "three", 3000)
	waitFor(t, func() bool { return watcher.Total() == 3 })
}

func TestUnreadWatcher_OwnMessagesNeverCount(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()

	watcher := NewUnreadWatcher(store, nil, nil)
	if err := watcher.Start(ctx, "b1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer watcher.Stop()

	// b1's outgoing message still creates a registry entry for b1
	sendThrough(t, store, "b1", "a1", "hi there", 1000)
	threadID := domainchat.DeriveThreadID("a1", "b1")
	waitFor(t, func() bool { return watcher.ThreadCount(threadID) == 0 && len(mustEntries(t, store, "b1")) == 1 })

	if watcher.Total() != 0 {
		t.Fatalf("own message counted as unread: %d", watcher.Total())
	}
}

func TestUnreadWatcher_ResubscribesOnMembershipChange(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()

	watcher := NewUnreadWatcher(store, nil, nil)
	if err := watcher.Start(ctx, "b1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer watcher.Stop()

	sendThrough(t, store, "a1", "b1", "first thread", 1000)
	waitFor(t, func() bool { return watcher.Total() == 1 })

	// a brand new thread appears in the registry and is picked up live
	sendThrough(t, store, "c1", "b1", "second thread", 2000)
	waitFor(t, func() bool { return watcher.Total() == 2 })

	// more traffic on the first thread still flows after the rebuild
	sendThrough(t, store, "a1", "b1", "again", 3000)
	waitFor(t, func() bool { return watcher.Total() == 3 })
}

func TestUnreadWatcher_StopReleasesEverySubscription(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()

	totals := make(chan int, 16)
	watcher := NewUnreadWatcher(store, nil, func(total int) {
		select {
		case totals <- total:
		default:
		}
	})
	if err := watcher.Start(ctx, "b1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	sendThrough(t, store, "a1", "b1", "hello", 1000)
	waitFor(t, func() bool { return watcher.Total() == 1 })

	watcher.Stop()
	if got := watcher.Total(); got != 0 {
		t.Fatalf("expected zero total after stop, got %d", got)
	}
	last := -1
	for len(totals) > 0 {
		last = <-totals
	}
	if last != 0 {
		t.Fatalf("expected final total notification of 0, got %d", last)
	}
	waitFor(t, func() bool { return store.SubscriberCount() == 0 })

	// a second stop is a no-op
	watcher.Stop()
}

func TestUnreadWatcher_StartTwiceFails(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()

	watcher := NewUnreadWatcher(store, nil, nil)
	if err := watcher.Start(ctx, "b1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer watcher.Stop()

	if err := watcher.Start(ctx, "b1"); !errors.Is(err, ErrWatcherActive) {
		t.Fatalf("expected ErrWatcherActive, got %v", err)
	}
}

func mustEntries(t *testing.T, store *memory.ChatStore, ownerID string) []domainchat.RegistryEntry {
	t.Helper()
	entries, err := store.Entries(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	return entries
}
