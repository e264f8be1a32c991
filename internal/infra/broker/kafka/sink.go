package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	domainnotification "github.com/gtpankaj4/campusmesh-sub001/internal/domain/notification"
)

// Sink publishes chat notifications to a Kafka topic, keyed by recipient so
// one user's notifications stay ordered.
type Sink struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

func NewSink(brokers []string, topic string, cfg *sarama.Config, logger *slog.Logger) (*Sink, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return &Sink{producer: producer, topic: topic, logger: logger}, nil
}

// Notify serializes the record and produces it synchronously. Callers treat
// failures as best-effort loss.
func (s *Sink) Notify(ctx context.Context, record domainnotification.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(notificationEvent{
		ID:          record.ID,
		RecipientID: record.RecipientID,
		SenderID:    record.SenderID,
		SenderName:  record.SenderName,
		ThreadID:    string(record.ThreadID),
		CreatedAt:   record.CreatedAt,
	})
	if err != nil {
		return err
	}
	_, _, err = s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(record.RecipientID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("produce notification: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.producer.Close()
}

type notificationEvent struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipient_id"`
	SenderID    string `json:"sender_id"`
	SenderName  string `json:"sender_name"`
	ThreadID    string `json:"thread_id"`
	CreatedAt   int64  `json:"created_at"`
}

var _ domainnotification.Sink = (*Sink)(nil)
