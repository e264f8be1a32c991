package chat

import (
	"sort"
	"strings"
)

// Message is a single immutable chat message. Only SeenBy grows after the
// append: entries are added per user, never removed, and an entry is never
// rewound to an earlier time.
type Message struct {
	ID       string
	SenderID string
	Body     string
	SentAt   int64
	SeenBy   map[string]int64
}

// SeenAt returns the epoch-millis timestamp at which userID first viewed the
// message, or false when the marker is absent.
func (m Message) SeenAt(userID string) (int64, bool) {
	at, ok := m.SeenBy[userID]
	return at, ok
}

// UnseenBy reports whether the message counts as unread for userID: sent by
// somebody else and lacking the user's seen marker. A sender implicitly has
// seen their own message.
func (m Message) UnseenBy(userID string) bool {
	if m.SenderID == userID {
		return false
	}
	_, seen := m.SeenBy[userID]
	return !seen
}

// Clone returns a copy whose SeenBy map does not alias the original.
func (m Message) Clone() Message {
	out := m
	if m.SeenBy != nil {
		out.SeenBy = make(map[string]int64, len(m.SeenBy))
		for id, at := range m.SeenBy {
			out.SeenBy[id] = at
		}
	}
	return out
}

// SortMessages orders messages by send time ascending, ties broken by the
// store-assigned insertion key.
func SortMessages(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].SentAt != messages[j].SentAt {
			return messages[i].SentAt < messages[j].SentAt
		}
		return messages[i].ID < messages[j].ID
	})
}

// UnreadCount counts the messages in a snapshot that are unread for userID.
func UnreadCount(messages []Message, userID string) int {
	count := 0
	for _, m := range messages {
		if m.UnseenBy(userID) {
			count++
		}
	}
	return count
}

// PreviewSnippet trims a message body down to the denormalized preview stored
// on registry entries.
func PreviewSnippet(body string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(body))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}
