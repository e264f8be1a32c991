package chat

import (
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	// ErrSendInFlight rejects a send while another send for the same sender
	// is still outstanding.
	ErrSendInFlight = errors.New("chat: send already in flight")
	// ErrEmptyBody rejects a send whose trimmed body is empty.
	ErrEmptyBody = errors.New("chat: message body is empty")
	// ErrDuplicateSend rejects a byte-identical resend inside the duplicate
	// window.
	ErrDuplicateSend = errors.New("chat: duplicate send suppressed")
)

// DefaultDuplicateWindow is how long an identical body stays suppressed after
// a successfully attempted send.
const DefaultDuplicateWindow = 2000 * time.Millisecond

// SendGuard throttles the send path per sender: at most one in-flight send,
// no empty bodies, and no identical resends inside the duplicate window.
// Rejected sends are dropped, never queued.
type SendGuard struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	senders map[string]*senderState
}

type senderState struct {
	inFlight bool
	lastBody string
	lastAt   time.Time
}

// NewSendGuard builds a guard with the given duplicate window; zero or
// negative falls back to DefaultDuplicateWindow.
func NewSendGuard(window time.Duration) *SendGuard {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	return &SendGuard{
		window:  window,
		now:     time.Now,
		senders: make(map[string]*senderState),
	}
}

// Acquire admits or rejects a send attempt for senderID. On admission it
// records the attempt and returns a release func: release(true) keeps the
// duplicate memory (the write reached the store), release(false) clears it so
// the user can immediately retry the identical body.
func (g *SendGuard) Acquire(senderID, body string) (func(sent bool), error) {
	trimmed := strings.TrimSpace(body)

	g.mu.Lock()
	defer g.mu.Unlock()

	state := g.senders[senderID]
	if state == nil {
		state = &senderState{}
		g.senders[senderID] = state
	}
	if state.inFlight {
		return nil, ErrSendInFlight
	}
	if trimmed == "" {
		return nil, ErrEmptyBody
	}
	now := g.now()
	if state.lastBody == trimmed && !state.lastAt.IsZero() && now.Sub(state.lastAt) < g.window {
		return nil, ErrDuplicateSend
	}

	state.inFlight = true
	state.lastBody = trimmed
	state.lastAt = now

	released := false
	return func(sent bool) {
		g.mu.Lock()
		defer g.mu.Unlock()
		if released {
			return
		}
		released = true
		state.inFlight = false
		if !sent {
			state.lastBody = ""
			state.lastAt = time.Time{}
		}
	}, nil
}
