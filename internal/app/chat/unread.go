package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	domainchat "github.com/gtpankaj4/campusmesh-sub001/internal/domain/chat"
)

var ErrWatcherActive = errors.New("chat: unread watcher already started")

// UnreadWatcher maintains a user's live total-unread count. It owns every
// subscription it opens: one registry subscription plus one nested message
// subscription per thread currently present in the registry. A registry
// membership change tears all nested subscriptions down before rebuilding
// them, so a stale listener can never double-count; per-message changes
// inside an already-subscribed thread only recount that thread.
type UnreadWatcher struct {
	store   domainchat.Store
	logger  *slog.Logger
	onTotal func(total int)

	mu          sync.Mutex
	active      bool
	userID      string
	ctx         context.Context
	session     int // invalidated on Start/Stop; guards the registry listener
	threadGen   int // invalidated on every rebuild; guards nested listeners
	registrySub domainchat.Subscription
	threadSubs  map[domainchat.ThreadID]domainchat.Subscription
	counts      map[domainchat.ThreadID]int
	total       int
}

// NewUnreadWatcher builds an idle watcher. onTotal fires on every change of
// the summed unread count; nil is allowed.
func NewUnreadWatcher(store domainchat.Store, logger *slog.Logger, onTotal func(total int)) *UnreadWatcher {
	return &UnreadWatcher{
		store:      store,
		logger:     logger,
		onTotal:    onTotal,
		threadSubs: make(map[domainchat.ThreadID]domainchat.Subscription),
		counts:     make(map[domainchat.ThreadID]int),
	}
}

// Start moves the watcher from idle to subscribed for userID. The context
// scopes every store subscription the watcher opens.
func (w *UnreadWatcher) Start(ctx context.Context, userID string) error {
	if userID == "" {
		return domainchat.ErrParticipantRequired
	}

	w.mu.Lock()
	if w.active {
		w.mu.Unlock()
		return ErrWatcherActive
	}
	w.active = true
	w.userID = userID
	w.ctx = ctx
	w.session++
	session := w.session
	w.mu.Unlock()

	sub, err := w.store.SubscribeRegistry(ctx, userID, func(entries []domainchat.RegistryEntry) {
		w.onRegistrySnapshot(session, entries)
	})
	if err != nil {
		w.mu.Lock()
		w.active = false
		w.userID = ""
		w.ctx = nil
		w.mu.Unlock()
		return err
	}

	w.mu.Lock()
	if !w.active || w.session != session {
		// stopped while subscribing
		w.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	w.registrySub = sub
	w.mu.Unlock()
	return nil
}

// Stop releases every subscription and returns the watcher to idle with a
// zero total. Safe to call twice.
func (w *UnreadWatcher) Stop() {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return
	}
	w.active = false
	w.session++
	w.threadGen++
	registrySub := w.registrySub
	w.registrySub = nil
	subs := w.threadSubs
	w.threadSubs = make(map[domainchat.ThreadID]domainchat.Subscription)
	w.counts = make(map[domainchat.ThreadID]int)
	changed := w.total != 0
	w.total = 0
	w.userID = ""
	w.ctx = nil
	w.mu.Unlock()

	if registrySub != nil {
		registrySub.Unsubscribe()
	}
	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if changed {
		w.notifyTotal(0)
	}
}

// Total returns the current summed unread count.
func (w *UnreadWatcher) Total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}

// ThreadCount returns the tracked unread count for one thread.
func (w *UnreadWatcher) ThreadCount(threadID domainchat.ThreadID) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counts[threadID]
}

func (w *UnreadWatcher) onRegistrySnapshot(session int, entries []domainchat.RegistryEntry) {
	w.mu.Lock()
	if !w.active || w.session != session {
		w.mu.Unlock()
		return
	}

	next := make(map[domainchat.ThreadID]struct{}, len(entries))
	for _, entry := range entries {
		next[entry.ThreadID] = struct{}{}
	}
	if !membershipChanged(w.threadSubs, next) {
		w.mu.Unlock()
		return
	}

	// Tear down before rebuild: stale listeners must be gone before any new
	// subscription can deliver, or a thread could be counted twice.
	old := w.threadSubs
	w.threadSubs = make(map[domainchat.ThreadID]domainchat.Subscription, len(next))
	w.counts = make(map[domainchat.ThreadID]int, len(next))
	w.threadGen++
	gen := w.threadGen
	ctx := w.ctx
	userID := w.userID
	w.mu.Unlock()

	for _, sub := range old {
		sub.Unsubscribe()
	}

	for threadID := range next {
		threadID := threadID
		sub, err := w.store.SubscribeMessages(ctx, threadID, func(messages []domainchat.Message) {
			w.onThreadSnapshot(gen, threadID, messages)
		})
		if err != nil {
			// degrade to zero for this thread rather than failing the session
			if w.logger != nil {
				w.logger.Warn("thread subscription failed", "error", err, "thread_id", threadID, "user_id", userID)
			}
			continue
		}
		w.mu.Lock()
		if !w.active || w.threadGen != gen {
			w.mu.Unlock()
			sub.Unsubscribe()
			return
		}
		w.threadSubs[threadID] = sub
		w.mu.Unlock()
	}

	w.recomputeTotal(gen)
}

func (w *UnreadWatcher) onThreadSnapshot(gen int, threadID domainchat.ThreadID, messages []domainchat.Message) {
	w.mu.Lock()
	if !w.active || w.threadGen != gen {
		w.mu.Unlock()
		return
	}
	count := domainchat.UnreadCount(messages, w.userID)
	if w.counts[threadID] == count {
		w.mu.Unlock()
		return
	}
	w.counts[threadID] = count
	w.mu.Unlock()

	w.recomputeTotal(gen)
}

func (w *UnreadWatcher) recomputeTotal(gen int) {
	w.mu.Lock()
	if !w.active || w.threadGen != gen {
		w.mu.Unlock()
		return
	}
	total := 0
	for threadID := range w.threadSubs {
		total += w.counts[threadID]
	}
	changed := total != w.total
	w.total = total
	w.mu.Unlock()

	if changed {
		w.notifyTotal(total)
	}
}

func (w *UnreadWatcher) notifyTotal(total int) {
	if w.onTotal != nil {
		w.onTotal(total)
	}
}

func membershipChanged(current map[domainchat.ThreadID]domainchat.Subscription, next map[domainchat.ThreadID]struct{}) bool {
	if len(current) != len(next) {
		return true
	}
	for threadID := range next {
		if _, ok := current[threadID]; !ok {
			return true
		}
	}
	return false
}
