package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domainchat "github.com/gtpankaj4/campusmesh-sub001/internal/domain/chat"
	"github.com/gtpankaj4/campusmesh-sub001/internal/infra/storage/memory"
)

// ErrMessageNotFound is returned when a seen marker targets an unknown message.
var ErrMessageNotFound = errors.New("redis: message not found")

// ChatStore is the redis-backed keyed realtime store. Messages live in a
// hash per thread and registry entries in a hash per owner; every mutation
// publishes a bump on the key's channel and subscribers reload the full
// snapshot, matching the hosted backend's full-snapshot-per-change model.
type ChatStore struct {
	rdb    *goredis.Client
	prefix string
	logger *slog.Logger
}

// New connects a client and verifies the server is reachable.
func New(addr, prefix string, logger *slog.Logger) (*ChatStore, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis: addr is required")
	}
	if prefix == "" {
		prefix = "campusmesh"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &ChatStore{rdb: rdb, prefix: prefix, logger: logger}, nil
}

// Close releases the underlying client.
func (s *ChatStore) Close() error {
	return s.rdb.Close()
}

type messageDoc struct {
	ID       string           `json:"id"`
	SenderID string           `json:"sender_id"`
	Body     string           `json:"body"`
	SentAt   int64            `json:"sent_at"`
	SeenBy   map[string]int64 `json:"seen_by,omitempty"`
}

type entryDoc struct {
	ThreadID      string `json:"thread_id"`
	CounterpartID string `json:"counterpart_id"`
	LastMessage   string `json:"last_message"`
	LastMessageAt int64  `json:"last_message_at"`
}

func (s *ChatStore) messagesKey(threadID domainchat.ThreadID) string {
	return s.prefix + ":thread:" + string(threadID) + ":messages"
}

func (s *ChatStore) registryKey(ownerID string) string {
	return s.prefix + ":registry:" + ownerID
}

func (s *ChatStore) bumpChannel(key string) string {
	return key + ":bump"
}

// Append writes a message into the thread hash and bumps subscribers. The
// insertion key is time-prefixed so same-timestamp messages keep a stable
// secondary order.
func (s *ChatStore) Append(ctx context.Context, threadID domainchat.ThreadID, senderID, body string, sentAt int64) (domainchat.Message, error) {
	if strings.TrimSpace(senderID) == "" {
		return domainchat.Message{}, domainchat.ErrParticipantRequired
	}
	if strings.TrimSpace(body) == "" {
		return domainchat.Message{}, domainchat.ErrBodyRequired
	}
	doc := messageDoc{
		ID:       memory.PushID(sentAt),
		SenderID: senderID,
		Body:     body,
		SentAt:   sentAt,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return domainchat.Message{}, err
	}
	key := s.messagesKey(threadID)
	if err := s.rdb.HSet(ctx, key, doc.ID, raw).Err(); err != nil {
		return domainchat.Message{}, fmt.Errorf("append message: %w", err)
	}
	s.bump(ctx, key)
	return domainchat.Message{ID: doc.ID, SenderID: senderID, Body: body, SentAt: sentAt}, nil
}

// MarkSeen rewrites one message document with the user's seen marker set.
// Last write wins, mirroring the hosted store's update semantics.
func (s *ChatStore) MarkSeen(ctx context.Context, threadID domainchat.ThreadID, messageID, userID string, seenAt int64) error {
	if strings.TrimSpace(userID) == "" {
		return domainchat.ErrParticipantRequired
	}
	key := s.messagesKey(threadID)
	raw, err := s.rdb.HGet(ctx, key, messageID).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
		}
		return fmt.Errorf("load message: %w", err)
	}
	var doc messageDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if doc.SeenBy == nil {
		doc.SeenBy = make(map[string]int64, 1)
	}
	doc.SeenBy[userID] = seenAt
	updated, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, key, messageID, updated).Err(); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	s.bump(ctx, key)
	return nil
}

// Messages loads and orders the full thread snapshot.
func (s *ChatStore) Messages(ctx context.Context, threadID domainchat.ThreadID) ([]domainchat.Message, error) {
	rows, err := s.rdb.HGetAll(ctx, s.messagesKey(threadID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	messages := make([]domainchat.Message, 0, len(rows))
	for field, raw := range rows {
		var doc messageDoc
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping bad message document", "error", err, "thread_id", threadID, "field", field)
			}
			continue
		}
		messages = append(messages, domainchat.Message{
			ID:       doc.ID,
			SenderID: doc.SenderID,
			Body:     doc.Body,
			SentAt:   doc.SentAt,
			SeenBy:   doc.SeenBy,
		})
	}
	domainchat.SortMessages(messages)
	return messages, nil
}

// SubscribeMessages reloads and pushes the thread snapshot on every bump.
func (s *ChatStore) SubscribeMessages(ctx context.Context, threadID domainchat.ThreadID, fn func([]domainchat.Message)) (domainchat.Subscription, error) {
	if fn == nil {
		return nil, errors.New("redis: subscription callback is required")
	}
	key := s.messagesKey(threadID)
	return s.subscribe(ctx, key, func(cbCtx context.Context) {
		messages, err := s.Messages(cbCtx, threadID)
		if err != nil {
			// long-lived subscription: degrade to an empty snapshot
			if s.logger != nil {
				s.logger.Warn("message snapshot reload failed", "error", err, "thread_id", threadID)
			}
			messages = []domainchat.Message{}
		}
		fn(messages)
	})
}

// PutEntry writes one registry entry and bumps the owner's subscribers.
func (s *ChatStore) PutEntry(ctx context.Context, ownerID string, entry domainchat.RegistryEntry) error {
	if strings.TrimSpace(ownerID) == "" {
		return domainchat.ErrParticipantRequired
	}
	doc := entryDoc{
		ThreadID:      string(entry.ThreadID),
		CounterpartID: entry.CounterpartID,
		LastMessage:   entry.LastMessage,
		LastMessageAt: entry.LastMessageAt,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	key := s.registryKey(ownerID)
	if err := s.rdb.HSet(ctx, key, doc.ThreadID, raw).Err(); err != nil {
		return fmt.Errorf("put registry entry: %w", err)
	}
	s.bump(ctx, key)
	return nil
}

// Entries loads the owner's registry sorted by latest activity.
func (s *ChatStore) Entries(ctx context.Context, ownerID string) ([]domainchat.RegistryEntry, error) {
	rows, err := s.rdb.HGetAll(ctx, s.registryKey(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	entries := make([]domainchat.RegistryEntry, 0, len(rows))
	for field, raw := range rows {
		var doc entryDoc
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping bad registry document", "error", err, "owner_id", ownerID, "field", field)
			}
			continue
		}
		entries = append(entries, domainchat.RegistryEntry{
			ThreadID:      domainchat.ThreadID(doc.ThreadID),
			CounterpartID: doc.CounterpartID,
			LastMessage:   doc.LastMessage,
			LastMessageAt: doc.LastMessageAt,
		})
	}
	domainchat.SortEntries(entries)
	return entries, nil
}

// SubscribeRegistry reloads and pushes the owner's entry list on every bump.
func (s *ChatStore) SubscribeRegistry(ctx context.Context, ownerID string, fn func([]domainchat.RegistryEntry)) (domainchat.Subscription, error) {
	if fn == nil {
		return nil, errors.New("redis: subscription callback is required")
	}
	key := s.registryKey(ownerID)
	return s.subscribe(ctx, key, func(cbCtx context.Context) {
		entries, err := s.Entries(cbCtx, ownerID)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("registry snapshot reload failed", "error", err, "owner_id", ownerID)
			}
			entries = []domainchat.RegistryEntry{}
		}
		fn(entries)
	})
}

func (s *ChatStore) bump(ctx context.Context, key string) {
	if err := s.rdb.Publish(ctx, s.bumpChannel(key), "1").Err(); err != nil && s.logger != nil {
		s.logger.Warn("change notification publish failed", "error", err, "key", key)
	}
}

// subscribe wires a pub/sub listener that invokes reload once immediately
// and then once per bump, until the handle is unsubscribed or ctx ends.
func (s *ChatStore) subscribe(ctx context.Context, key string, reload func(context.Context)) (domainchat.Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, s.bumpChannel(key))
	// ensures the subscription actually started before the initial snapshot
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	sub := &subscription{pubsub: pubsub}
	go func() {
		reload(ctx)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				reload(ctx)
			}
		}
	}()
	return sub, nil
}

type subscription struct {
	pubsub *goredis.PubSub
	once   sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		_ = s.pubsub.Close()
	})
}

var _ domainchat.Store = (*ChatStore)(nil)
