package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	domainchat "github.com/gtpankaj4/campusmesh-sub001/internal/domain/chat"
)

var (
	// ErrMessageNotFound is returned when a seen marker targets a message
	// that is not in the thread's log.
	ErrMessageNotFound = errors.New("memory: message not found")
	// ErrStoreClosed is returned by mutations after Close.
	ErrStoreClosed = errors.New("memory: chat store closed")
)

// ChatStore is an in-memory keyed realtime store for messages and registry
// entries. It implements the same push model as the hosted backend: every
// subscriber receives the full current snapshot on subscribe and after each
// mutation of the subscribed key, delivered on its own goroutine.
type ChatStore struct {
	mu       sync.RWMutex
	closed   bool
	messages map[domainchat.ThreadID][]domainchat.Message
	registry map[string]map[domainchat.ThreadID]domainchat.RegistryEntry

	threadSubs   map[domainchat.ThreadID]map[*subscription]struct{}
	registrySubs map[string]map[*subscription]struct{}
}

// NewChatStore builds an empty store.
func NewChatStore() *ChatStore {
	return &ChatStore{
		messages:     make(map[domainchat.ThreadID][]domainchat.Message),
		registry:     make(map[string]map[domainchat.ThreadID]domainchat.RegistryEntry),
		threadSubs:   make(map[domainchat.ThreadID]map[*subscription]struct{}),
		registrySubs: make(map[string]map[*subscription]struct{}),
	}
}

// Append stores a new message and pushes the updated snapshot to the
// thread's subscribers. The insertion key is time-prefixed so same-timestamp
// messages keep a stable secondary order.
func (s *ChatStore) Append(ctx context.Context, threadID domainchat.ThreadID, senderID, body string, sentAt int64) (domainchat.Message, error) {
	if strings.TrimSpace(senderID) == "" {
		return domainchat.Message{}, domainchat.ErrParticipantRequired
	}
	if strings.TrimSpace(body) == "" {
		return domainchat.Message{}, domainchat.ErrBodyRequired
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domainchat.Message{}, ErrStoreClosed
	}
	msg := domainchat.Message{
		ID:       PushID(sentAt),
		SenderID: senderID,
		Body:     body,
		SentAt:   sentAt,
	}
	s.messages[threadID] = append(s.messages[threadID], msg)
	snapshot := s.snapshotLocked(threadID)
	subs := s.threadSubscribersLocked(threadID)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliverMessages(snapshot)
	}
	return msg.Clone(), nil
}

// MarkSeen sets the seen marker for userID on one message. Last write wins.
func (s *ChatStore) MarkSeen(ctx context.Context, threadID domainchat.ThreadID, messageID, userID string, seenAt int64) error {
	if strings.TrimSpace(userID) == "" {
		return domainchat.ErrParticipantRequired
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	log := s.messages[threadID]
	idx := -1
	for i := range log {
		if log[i].ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	if log[idx].SeenBy == nil {
		log[idx].SeenBy = make(map[string]int64, 1)
	}
	log[idx].SeenBy[userID] = seenAt
	snapshot := s.snapshotLocked(threadID)
	subs := s.threadSubscribersLocked(threadID)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliverMessages(snapshot)
	}
	return nil
}

// Messages returns the ordered snapshot of a thread.
func (s *ChatStore) Messages(ctx context.Context, threadID domainchat.ThreadID) ([]domainchat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(threadID), nil
}

// SubscribeMessages registers a snapshot listener for one thread. The
// callback fires asynchronously with the current snapshot immediately and
// after every mutation, until the handle is unsubscribed.
func (s *ChatStore) SubscribeMessages(ctx context.Context, threadID domainchat.ThreadID, fn func([]domainchat.Message)) (domainchat.Subscription, error) {
	if fn == nil {
		return nil, errors.New("memory: subscription callback is required")
	}
	sub := newSubscription()
	go sub.runMessages(fn)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Unsubscribe()
		return nil, ErrStoreClosed
	}
	if s.threadSubs[threadID] == nil {
		s.threadSubs[threadID] = make(map[*subscription]struct{})
	}
	s.threadSubs[threadID][sub] = struct{}{}
	sub.cleanup = func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if set, ok := s.threadSubs[threadID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(s.threadSubs, threadID)
			}
		}
	}
	snapshot := s.snapshotLocked(threadID)
	s.mu.Unlock()

	sub.deliverMessages(snapshot)
	return sub, nil
}

// PutEntry writes one registry entry and pushes the owner's updated list to
// registry subscribers.
func (s *ChatStore) PutEntry(ctx context.Context, ownerID string, entry domainchat.RegistryEntry) error {
	if strings.TrimSpace(ownerID) == "" {
		return domainchat.ErrParticipantRequired
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if s.registry[ownerID] == nil {
		s.registry[ownerID] = make(map[domainchat.ThreadID]domainchat.RegistryEntry)
	}
	s.registry[ownerID][entry.ThreadID] = entry
	snapshot := s.entriesLocked(ownerID)
	subs := s.registrySubscribersLocked(ownerID)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliverEntries(snapshot)
	}
	return nil
}

// Entries returns the owner's registry sorted by latest activity.
func (s *ChatStore) Entries(ctx context.Context, ownerID string) ([]domainchat.RegistryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entriesLocked(ownerID), nil
}

// SubscribeRegistry registers a snapshot listener for one owner's registry.
func (s *ChatStore) SubscribeRegistry(ctx context.Context, ownerID string, fn func([]domainchat.RegistryEntry)) (domainchat.Subscription, error) {
	if fn == nil {
		return nil, errors.New("memory: subscription callback is required")
	}
	sub := newSubscription()
	go sub.runEntries(fn)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Unsubscribe()
		return nil, ErrStoreClosed
	}
	if s.registrySubs[ownerID] == nil {
		s.registrySubs[ownerID] = make(map[*subscription]struct{})
	}
	s.registrySubs[ownerID][sub] = struct{}{}
	sub.cleanup = func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if set, ok := s.registrySubs[ownerID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(s.registrySubs, ownerID)
			}
		}
	}
	snapshot := s.entriesLocked(ownerID)
	s.mu.Unlock()

	sub.deliverEntries(snapshot)
	return sub, nil
}

// Close drops every live subscription. Used on shutdown and in tests.
func (s *ChatStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var subs []*subscription
	for _, set := range s.threadSubs {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	for _, set := range s.registrySubs {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	s.threadSubs = make(map[domainchat.ThreadID]map[*subscription]struct{})
	s.registrySubs = make(map[string]map[*subscription]struct{})
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// SubscriberCount reports live listeners; tests use it to prove teardown
// leaks nothing.
func (s *ChatStore) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, set := range s.threadSubs {
		total += len(set)
	}
	for _, set := range s.registrySubs {
		total += len(set)
	}
	return total
}

func (s *ChatStore) snapshotLocked(threadID domainchat.ThreadID) []domainchat.Message {
	log := s.messages[threadID]
	out := make([]domainchat.Message, 0, len(log))
	for _, m := range log {
		out = append(out, m.Clone())
	}
	domainchat.SortMessages(out)
	return out
}

func (s *ChatStore) entriesLocked(ownerID string) []domainchat.RegistryEntry {
	entries := make([]domainchat.RegistryEntry, 0, len(s.registry[ownerID]))
	for _, entry := range s.registry[ownerID] {
		entries = append(entries, entry)
	}
	domainchat.SortEntries(entries)
	return entries
}

func (s *ChatStore) threadSubscribersLocked(threadID domainchat.ThreadID) []*subscription {
	set := s.threadSubs[threadID]
	out := make([]*subscription, 0, len(set))
	for sub := range set {
		out = append(out, sub)
	}
	return out
}

func (s *ChatStore) registrySubscribersLocked(ownerID string) []*subscription {
	set := s.registrySubs[ownerID]
	out := make([]*subscription, 0, len(set))
	for sub := range set {
		out = append(out, sub)
	}
	return out
}

// PushID builds a store-assigned insertion key that sorts by creation time:
// zero-padded epoch millis plus a uuid suffix for uniqueness.
func PushID(at int64) string {
	if at < 0 {
		at = 0
	}
	return fmt.Sprintf("%013d-%s", at, uuid.NewString())
}

var _ domainchat.Store = (*ChatStore)(nil)
