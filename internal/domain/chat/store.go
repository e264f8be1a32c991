package chat

import "context"

// Subscription is the cancel handle returned by the store's push primitives.
// Unsubscribe releases the listener; it is safe to call more than once.
type Subscription interface {
	Unsubscribe()
}

// MessageStore is the contract consumed from the external keyed realtime
// store for a thread's ordered message log. Subscriptions follow a
// full-snapshot-per-change model: the callback receives the complete ordered
// message list on subscribe and again after every mutation of the thread,
// delivered asynchronously.
type MessageStore interface {
	// Append writes a new message to the thread's log and returns it with
	// the store-assigned insertion key. A failed append records nothing.
	Append(ctx context.Context, threadID ThreadID, senderID, body string, sentAt int64) (Message, error)

	// MarkSeen sets SeenBy[userID] on a message. Last write wins; calling it
	// again for an already-seen message is a harmless overwrite.
	MarkSeen(ctx context.Context, threadID ThreadID, messageID, userID string, seenAt int64) error

	// Messages returns the current ordered snapshot of the thread.
	Messages(ctx context.Context, threadID ThreadID) ([]Message, error)

	// SubscribeMessages registers fn for snapshot pushes on the thread.
	SubscribeMessages(ctx context.Context, threadID ThreadID, fn func([]Message)) (Subscription, error)
}

// RegistryStore holds the per-user thread registry, keyed by the owning user.
type RegistryStore interface {
	PutEntry(ctx context.Context, ownerID string, entry RegistryEntry) error
	Entries(ctx context.Context, ownerID string) ([]RegistryEntry, error)

	// SubscribeRegistry pushes the owner's full entry list on subscribe and
	// after every registry mutation for that owner.
	SubscribeRegistry(ctx context.Context, ownerID string, fn func([]RegistryEntry)) (Subscription, error)
}

// Store combines the two keyed-store surfaces the messaging core consumes.
type Store interface {
	MessageStore
	RegistryStore
}
