package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"

	domainchat "github.com/gtpankaj4/campusmesh-sub001/internal/domain/chat"
	domainnotification "github.com/gtpankaj4/campusmesh-sub001/internal/domain/notification"
)

// NotificationConsumer drains the notification topic into a notification
// log, so recipients can read what was delivered while they were away.
type NotificationConsumer struct {
	group  sarama.ConsumerGroup
	log    domainnotification.Log
	logger *slog.Logger
}

func NewNotificationConsumer(brokers []string, groupID string, cfg *sarama.Config, log domainnotification.Log, logger *slog.Logger) (*NotificationConsumer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	g, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return &NotificationConsumer{group: g, log: log, logger: logger}, nil
}

func (c *NotificationConsumer) Run(ctx context.Context, topics []string) error {
	for {
		if err := c.group.Consume(ctx, topics, consumerGroupHandler{log: c.log, logger: c.logger}); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *NotificationConsumer) Close() error {
	return c.group.Close()
}

type consumerGroupHandler struct {
	log    domainnotification.Log
	logger *slog.Logger
}

func (h consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		var evt notificationEvent
		if err := json.Unmarshal(message.Value, &evt); err != nil {
			if h.logger != nil {
				h.logger.Warn("skipping bad notification event", "error", err, "topic", message.Topic, "offset", message.Offset)
			}
			sess.MarkMessage(message, "")
			continue
		}
		record := domainnotification.Record{
			ID:          evt.ID,
			RecipientID: evt.RecipientID,
			SenderID:    evt.SenderID,
			SenderName:  evt.SenderName,
			ThreadID:    domainchat.ThreadID(evt.ThreadID),
			CreatedAt:   evt.CreatedAt,
		}
		if err := h.log.Append(sess.Context(), record); err != nil {
			// leave the offset unmarked so the record is redelivered
			if h.logger != nil {
				h.logger.Warn("notification append failed", "error", err, "recipient_id", record.RecipientID)
			}
			continue
		}
		sess.MarkMessage(message, "")
	}
	return nil
}
