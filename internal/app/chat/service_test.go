package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	domainchat "github.com/gtpankaj4/campusmesh-sub001/internal/domain/chat"
	domainnotification "github.com/gtpankaj4/campusmesh-sub001/internal/domain/notification"
	domainprofile "github.com/gtpankaj4/campusmesh-sub001/internal/domain/profile"
	"github.com/gtpankaj4/campusmesh-sub001/internal/infra/storage/memory"
)

// brokenAppendStore rejects Append and delegates everything else.
type brokenAppendStore struct {
	domainchat.Store
}

func (s *brokenAppendStore) Append(ctx context.Context, threadID domainchat.ThreadID, senderID, body string, sentAt int64) (domainchat.Message, error) {
	return domainchat.Message{}, errors.New("backend unavailable")
}

// failingSink rejects every notification.
type failingSink struct{}

func (failingSink) Notify(ctx context.Context, record domainnotification.Record) error {
	return errors.New("sink unavailable")
}

// flakyProfiles fails the first saveFailures Save calls.
type flakyProfiles struct {
	*memory.ProfileRepository
	saveFailures int
	saveCalls    int
}

func (r *flakyProfiles) Save(ctx context.Context, p *domainprofile.Profile) error {
	r.saveCalls++
	if r.saveCalls <= r.saveFailures {
		return errors.New("document store unavailable")
	}
	return r.ProfileRepository.Save(ctx, p)
}

func newTestService(t *testing.T, store domainchat.Store, params ServiceParams) *Service {
	t.Helper()
	params.Store = store
	if params.SeenBatchDelay == 0 {
		params.SeenBatchDelay = time.Millisecond
	}
	if params.ProfileRetryBackoff == 0 {
		params.ProfileRetryBackoff = time.Millisecond
	}
	svc, err := NewService(params)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestSendMessage_AppendsAndWritesBothRegistries(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()

	svc := newTestService(t, store, ServiceParams{})
	at := time.UnixMilli(5000)
	svc.now = func() time.Time { return at }

	msg, err := svc.SendMessage(ctx, "a1", "b1", "hello b1")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.SentAt != 5000 || msg.SenderID != "a1" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	threadID := domainchat.DeriveThreadID("a1", "b1")
	messages, _ := store.Messages(ctx, threadID)
	if len(messages) != 1 || messages[0].Body != "hello b1" {
		t.Fatalf("message not stored: %v", messages)
	}

	for _, owner := range []string{"a1", "b1"} {
		entries, _ := store.Entries(ctx, owner)
		if len(entries) != 1 || entries[0].ThreadID != threadID || entries[0].LastMessage != "hello b1" {
			t.Fatalf("registry for %s wrong: %v", owner, entries)
		}
	}
}

func TestSendMessage_NotifiesRecipientOnly(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()
	log := memory.NewNotificationLog()
	profiles := memory.NewProfileRepository()
	if err := profiles.Save(ctx, &domainprofile.Profile{ID: "a1", Name: "Asha"}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	svc := newTestService(t, store, ServiceParams{Sink: log, Profiles: profiles})
	if _, err := svc.SendMessage(ctx, "a1", "b1", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	records, _ := log.ForRecipient(ctx, "b1")
	if len(records) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(records))
	}
	if records[0].SenderID != "a1" || records[0].SenderName != "Asha" {
		t.Fatalf("unexpected notification: %+v", records[0])
	}
	if records[0].ThreadID != domainchat.DeriveThreadID("a1", "b1") {
		t.Fatalf("wrong thread on notification: %s", records[0].ThreadID)
	}

	senderRecords, _ := log.ForRecipient(ctx, "a1")
	if len(senderRecords) != 0 {
		t.Fatalf("sender must not be notified: %v", senderRecords)
	}
}

func TestSendMessage_SelfThreadSkipsNotification(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()
	log := memory.NewNotificationLog()

	svc := newTestService(t, store, ServiceParams{Sink: log})
	if _, err := svc.SendMessage(ctx, "a1", "a1", "note to self"); err != nil {
		t.Fatalf("send: %v", err)
	}
	records, _ := log.ForRecipient(ctx, "a1")
	if len(records) != 0 {
		t.Fatalf("self send must not notify: %v", records)
	}
}

func TestSendMessage_SinkFailureDoesNotFailSend(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()

	svc := newTestService(t, store, ServiceParams{Sink: failingSink{}})
	if _, err := svc.SendMessage(ctx, "a1", "b1", "hello"); err != nil {
		t.Fatalf("sink failure leaked into send: %v", err)
	}

	messages, _ := store.Messages(ctx, domainchat.DeriveThreadID("a1", "b1"))
	if len(messages) != 1 {
		t.Fatalf("message lost: %v", messages)
	}
}

func TestSendMessage_AppendFailureAllowsImmediateRetry(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()

	broken := &brokenAppendStore{Store: store}
	svc := newTestService(t, broken, ServiceParams{})
	if _, err := svc.SendMessage(ctx, "a1", "b1", "hello"); err == nil {
		t.Fatalf("expected append failure")
	}

	// the guard must not remember the failed body as a duplicate
	svc.store = store
	if _, err := svc.SendMessage(ctx, "a1", "b1", "hello"); err != nil {
		t.Fatalf("retry after failure rejected: %v", err)
	}
}

func TestSendMessage_DuplicateSuppressed(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()

	svc := newTestService(t, store, ServiceParams{DuplicateWindow: 2 * time.Second})
	at := time.UnixMilli(5000)
	svc.now = func() time.Time { return at }
	svc.guard.now = svc.now

	if _, err := svc.SendMessage(ctx, "a1", "b1", "hello"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	at = at.Add(time.Second)
	if _, err := svc.SendMessage(ctx, "a1", "b1", "hello"); !errors.Is(err, ErrDuplicateSend) {
		t.Fatalf("expected ErrDuplicateSend, got %v", err)
	}
	at = at.Add(time.Second)
	if _, err := svc.SendMessage(ctx, "a1", "b1", "hello"); err != nil {
		t.Fatalf("send after window rejected: %v", err)
	}

	messages, _ := store.Messages(ctx, domainchat.DeriveThreadID("a1", "b1"))
	if len(messages) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(messages))
	}
}

func TestOpenThread_ReturnsSnapshotAndSweepsSeen(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()
	threadID := domainchat.DeriveThreadID("a1", "b1")

	for i, body := range []string{"one", "two", "three"} {
		if _, err := store.Append(ctx, threadID, "a1", body, int64(1000*(i+1))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	svc := newTestService(t, store, ServiceParams{})
	messages, outcome, err := svc.OpenThread(ctx, "b1", "a1")
	if err != nil {
		t.Fatalf("open thread: %v", err)
	}
	if len(messages) != 3 || messages[0].Body != "one" {
		t.Fatalf("unexpected snapshot: %v", messages)
	}
	if outcome.Marked != 3 || outcome.Failed != 0 {
		t.Fatalf("unexpected sweep outcome: %+v", outcome)
	}

	after, _ := store.Messages(ctx, threadID)
	if got := domainchat.UnreadCount(after, "b1"); got != 0 {
		t.Fatalf("expected 0 unread after open, got %d", got)
	}
}

func TestOpenThread_CreatesFallbackProfile(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()
	profiles := memory.NewProfileRepository()

	svc := newTestService(t, store, ServiceParams{Profiles: profiles})
	if _, _, err := svc.OpenThread(ctx, "b1", "ghost1"); err != nil {
		t.Fatalf("open thread: %v", err)
	}

	p, err := profiles.ByID(ctx, "ghost1")
	if err != nil {
		t.Fatalf("fallback profile missing: %v", err)
	}
	if p.DisplayName() != "ghost1" {
		t.Fatalf("unexpected fallback display name: %q", p.DisplayName())
	}
}

func TestEnsureProfile_RetriesTransientSaveFailures(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()
	profiles := &flakyProfiles{ProfileRepository: memory.NewProfileRepository(), saveFailures: 2}

	svc := newTestService(t, store, ServiceParams{Profiles: profiles, ProfileRetries: 3})
	if _, _, err := svc.OpenThread(ctx, "b1", "ghost1"); err != nil {
		t.Fatalf("open thread: %v", err)
	}

	if profiles.saveCalls != 3 {
		t.Fatalf("expected 3 save attempts, got %d", profiles.saveCalls)
	}
	if _, err := profiles.ByID(ctx, "ghost1"); err != nil {
		t.Fatalf("profile not created after retries: %v", err)
	}
}

func TestThreads_SortedByLatestActivity(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()
	ctx := context.Background()

	svc := newTestService(t, store, ServiceParams{})
	at := time.UnixMilli(1000)
	svc.now = func() time.Time { return at }

	if _, err := svc.SendMessage(ctx, "a1", "b1", "older thread"); err != nil {
		t.Fatalf("send: %v", err)
	}
	at = time.UnixMilli(2000)
	if _, err := svc.SendMessage(ctx, "c1", "b1", "newer thread"); err != nil {
		t.Fatalf("send: %v", err)
	}

	entries, err := svc.Threads(ctx, "b1")
	if err != nil {
		t.Fatalf("threads: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(entries))
	}
	if entries[0].CounterpartID != "c1" || entries[1].CounterpartID != "a1" {
		t.Fatalf("wrong ordering: %v", entries)
	}
}

func TestSendMessage_ValidatesParticipants(t *testing.T) {
	store := memory.NewChatStore()
	defer store.Close()

	svc := newTestService(t, store, ServiceParams{})
	if _, err := svc.SendMessage(context.Background(), "", "b1", "hello"); !errors.Is(err, domainchat.ErrParticipantRequired) {
		t.Fatalf("expected ErrParticipantRequired, got %v", err)
	}
	if _, err := svc.SendMessage(context.Background(), "a1", "", "hello"); !errors.Is(err, domainchat.ErrParticipantRequired) {
		t.Fatalf("expected ErrParticipantRequired, got %v", err)
	}
}
