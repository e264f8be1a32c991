package chat

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrParticipantRequired = errors.New("chat: participant id is required")
	ErrBodyRequired        = errors.New("chat: message body is required")
	ErrMessageNotFound     = errors.New("chat: message not found")
)

// ThreadID is the canonical identifier of a two-party (or self) conversation.
type ThreadID string

const threadSeparator = "_"

// DeriveThreadID maps a pair of user ids to an order-independent thread id.
// The pair is sorted lexicographically and joined with "_", so
// DeriveThreadID(a, b) == DeriveThreadID(b, a) for any two non-empty ids,
// and DeriveThreadID(a, a) yields the self-chat id.
func DeriveThreadID(a, b string) ThreadID {
	if a > b {
		a, b = b, a
	}
	return ThreadID(a + threadSeparator + b)
}

// Participants splits a thread id back into its two participant ids.
func (t ThreadID) Participants() (string, string, bool) {
	first, second, ok := strings.Cut(string(t), threadSeparator)
	if !ok || first == "" || second == "" {
		return "", "", false
	}
	return first, second, true
}

// Counterpart resolves the other participant for userID, or userID itself
// for a self-chat thread.
func (t ThreadID) Counterpart(userID string) string {
	first, second, ok := t.Participants()
	if !ok {
		return ""
	}
	if first == userID {
		return second
	}
	return first
}

// IsSelf reports whether both participants are the same user.
func (t ThreadID) IsSelf() bool {
	first, second, ok := t.Participants()
	return ok && first == second
}

// NormalizeParticipants trims, deduplicates and sorts participant ids.
func NormalizeParticipants(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
