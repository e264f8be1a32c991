package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainchat "github.com/gtpankaj4/campusmesh-sub001/internal/domain/chat"
	domainnotification "github.com/gtpankaj4/campusmesh-sub001/internal/domain/notification"
	domainprofile "github.com/gtpankaj4/campusmesh-sub001/internal/domain/profile"
)

const (
	// DefaultProfileRetries is how many attempts the fallback profile
	// creation makes before giving up.
	DefaultProfileRetries = 3
	// DefaultProfileRetryBackoff is the fixed pause between those attempts.
	DefaultProfileRetryBackoff = 200 * time.Millisecond
)

// Service is the messaging core's entry point: it runs the send pipeline
// (guard, append, registry dual-write, notification) and the thread-open
// path (snapshot plus seen sweep).
type Service struct {
	store    domainchat.Store
	profiles domainprofile.Repository
	sink     domainnotification.Sink
	guard    *SendGuard
	tracker  *ReadTracker
	registry *RegistryWriter
	logger   *slog.Logger

	profileRetries int
	profileBackoff time.Duration
	now            func() time.Time
}

// ServiceParams collects the collaborators a Service needs. Sink and
// Profiles may be nil; the pipeline then skips the corresponding best-effort
// step.
type ServiceParams struct {
	Store               domainchat.Store
	Profiles            domainprofile.Repository
	Sink                domainnotification.Sink
	Logger              *slog.Logger
	DuplicateWindow     time.Duration
	SeenBatchSize       int
	SeenBatchDelay      time.Duration
	PreviewLimit        int
	ProfileRetries      int
	ProfileRetryBackoff time.Duration
}

// NewService wires the pipeline components around one store.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, errors.New("chat: store is required")
	}
	retries := params.ProfileRetries
	if retries <= 0 {
		retries = DefaultProfileRetries
	}
	backoff := params.ProfileRetryBackoff
	if backoff <= 0 {
		backoff = DefaultProfileRetryBackoff
	}
	return &Service{
		store:    params.Store,
		profiles: params.Profiles,
		sink:     params.Sink,
		guard:    NewSendGuard(params.DuplicateWindow),
		tracker: &ReadTracker{
			Store:      params.Store,
			Logger:     params.Logger,
			BatchSize:  params.SeenBatchSize,
			BatchDelay: params.SeenBatchDelay,
		},
		registry: &RegistryWriter{
			Store:        params.Store,
			Logger:       params.Logger,
			PreviewLimit: params.PreviewLimit,
		},
		logger:         params.Logger,
		profileRetries: retries,
		profileBackoff: backoff,
		now:            time.Now,
	}, nil
}

// SendMessage runs the full send pipeline from senderID to recipientID.
// Guard rejections come back as ErrSendInFlight, ErrEmptyBody or
// ErrDuplicateSend with nothing written; an append failure propagates after
// resetting the guard so an identical retry is admitted immediately. The
// registry dual-write and the notification call are best effort and never
// fail the send.
func (s *Service) SendMessage(ctx context.Context, senderID, recipientID, body string) (domainchat.Message, error) {
	if senderID == "" || recipientID == "" {
		return domainchat.Message{}, domainchat.ErrParticipantRequired
	}

	release, err := s.guard.Acquire(senderID, body)
	if err != nil {
		return domainchat.Message{}, err
	}

	threadID := domainchat.DeriveThreadID(senderID, recipientID)
	sentAt := s.now().UnixMilli()
	msg, err := s.store.Append(ctx, threadID, senderID, body, sentAt)
	if err != nil {
		release(false)
		return domainchat.Message{}, fmt.Errorf("append message: %w", err)
	}
	release(true)

	s.registry.RecordSend(ctx, threadID, senderID, recipientID, msg)
	s.notifyRecipient(ctx, threadID, senderID, recipientID)
	return msg, nil
}

// OpenThread returns the ordered snapshot of the conversation between userID
// and counterpartID and sweeps seen markers over the messages the user had
// not viewed yet. The sweep outcome is informational only.
func (s *Service) OpenThread(ctx context.Context, userID, counterpartID string) ([]domainchat.Message, MarkSeenOutcome, error) {
	if userID == "" || counterpartID == "" {
		return nil, MarkSeenOutcome{}, domainchat.ErrParticipantRequired
	}
	threadID := domainchat.DeriveThreadID(userID, counterpartID)

	s.ensureProfile(ctx, counterpartID)
	outcome := s.tracker.MarkThreadSeen(ctx, threadID, userID, s.now().UnixMilli())

	messages, err := s.store.Messages(ctx, threadID)
	if err != nil {
		return nil, outcome, fmt.Errorf("load thread: %w", err)
	}
	return messages, outcome, nil
}

// Threads lists the user's registry entries, most recent activity first.
func (s *Service) Threads(ctx context.Context, userID string) ([]domainchat.RegistryEntry, error) {
	if userID == "" {
		return nil, domainchat.ErrParticipantRequired
	}
	return s.store.Entries(ctx, userID)
}

// Watch builds an unread watcher bound to this service's store.
func (s *Service) Watch(onTotal func(total int)) *UnreadWatcher {
	return NewUnreadWatcher(s.store, s.logger, onTotal)
}

// Reconcile repairs diverged registry entries for one thread from the
// message log. See RegistryWriter.Reconcile.
func (s *Service) Reconcile(ctx context.Context, threadID domainchat.ThreadID) ([]string, error) {
	return s.registry.Reconcile(ctx, s.store, threadID)
}

func (s *Service) notifyRecipient(ctx context.Context, threadID domainchat.ThreadID, senderID, recipientID string) {
	if s.sink == nil || recipientID == senderID {
		return
	}
	senderName := senderID
	if p := s.ensureProfile(ctx, senderID); p != nil {
		senderName = p.DisplayName()
	}
	record := domainnotification.Record{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		SenderID:    senderID,
		SenderName:  senderName,
		ThreadID:    threadID,
		CreatedAt:   s.now().UnixMilli(),
	}
	if err := s.sink.Notify(ctx, record); err != nil && s.logger != nil {
		// notification loss never blocks message delivery
		s.logger.Warn("notification delivery failed", "error", err, "recipient_id", recipientID, "thread_id", threadID)
	}
}

// ensureProfile resolves a profile and, when the document store has no
// record for the id, writes a minimal fallback profile with a small fixed
// number of retries. Returns nil when resolution keeps failing; callers degrade.
func (s *Service) ensureProfile(ctx context.Context, userID string) *domainprofile.Profile {
	if s.profiles == nil {
		return nil
	}
	p, err := s.profiles.ByID(ctx, userID)
	if err == nil {
		return p
	}
	if !errors.Is(err, domainprofile.ErrNotFound) {
		if s.logger != nil {
			s.logger.Warn("profile lookup failed", "error", err, "user_id", userID)
		}
		return nil
	}

	created, err := domainprofile.New(domainprofile.CreateParams{ID: userID, Now: s.now()})
	if err != nil {
		return nil
	}
	for attempt := 1; attempt <= s.profileRetries; attempt++ {
		if err = s.profiles.Save(ctx, created); err == nil {
			return created
		}
		if attempt < s.profileRetries && !sleepCtx(ctx, s.profileBackoff) {
			break
		}
	}
	if s.logger != nil {
		s.logger.Warn("fallback profile creation failed", "error", err, "user_id", userID, "attempts", s.profileRetries)
	}
	return nil
}
