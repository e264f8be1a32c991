package chat

import "sort"

// RegistryEntry is a per-user denormalized summary of a thread's latest
// activity. Two entries exist per non-self thread (one per participant) and
// both are rewritten on every send; they converge eventually, not atomically.
type RegistryEntry struct {
	ThreadID      ThreadID
	CounterpartID string
	LastMessage   string
	LastMessageAt int64
}

// SortEntries orders registry entries by most recent activity first, with the
// thread id as a stable tiebreaker.
func SortEntries(entries []RegistryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LastMessageAt != entries[j].LastMessageAt {
			return entries[i].LastMessageAt > entries[j].LastMessageAt
		}
		return entries[i].ThreadID < entries[j].ThreadID
	})
}
