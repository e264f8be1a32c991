package memory

import (
	"sync"

	domainchat "github.com/gtpankaj4/campusmesh-sub001/internal/domain/chat"
)

// subscription delivers snapshots to one listener on a dedicated goroutine.
// Deliveries coalesce: while the callback runs, newer snapshots replace the
// pending one, so a slow listener always observes the latest state rather
// than a growing backlog.
type subscription struct {
	mu      sync.Mutex
	pending any
	ready   chan struct{}
	done    chan struct{}
	once    sync.Once
	cleanup func()
}

func newSubscription() *subscription {
	return &subscription{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.cleanup != nil {
			s.cleanup()
		}
		close(s.done)
	})
}

func (s *subscription) deliverMessages(snapshot []domainchat.Message) {
	s.deliver(snapshot)
}

func (s *subscription) deliverEntries(snapshot []domainchat.RegistryEntry) {
	s.deliver(snapshot)
}

func (s *subscription) deliver(snapshot any) {
	s.mu.Lock()
	s.pending = snapshot
	s.mu.Unlock()
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *subscription) runMessages(fn func([]domainchat.Message)) {
	for {
		select {
		case <-s.done:
			return
		case <-s.ready:
			if snapshot, ok := s.take().([]domainchat.Message); ok {
				fn(snapshot)
			}
		}
	}
}

func (s *subscription) runEntries(fn func([]domainchat.RegistryEntry)) {
	for {
		select {
		case <-s.done:
			return
		case <-s.ready:
			if snapshot, ok := s.take().([]domainchat.RegistryEntry); ok {
				fn(snapshot)
			}
		}
	}
}

func (s *subscription) take() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.pending
	s.pending = nil
	return snapshot
}
