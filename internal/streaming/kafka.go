package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/alumnigate/internal/config"
	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventPublisher streams recorded security events to a Kafka topic for
// downstream SIEM consumers. When disabled every call is a no-op.
type EventPublisher struct {
	writer  messageWriter
	logger  *slog.Logger
	enabled bool
}

func NewEventPublisher(cfg config.KafkaConfig, logger *slog.Logger) *EventPublisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info("security event stream disabled")
		return &EventPublisher{logger: logger}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to stream security events",
					slog.Int("count", len(messages)),
					slog.Any("error", err),
				)
			}
		},
	}

	logger.Info("security event stream enabled", slog.String("topic", cfg.Topic))
	return &EventPublisher{writer: w, logger: logger, enabled: true}
}

// Publish enqueues one event. Events for the same identity share a
// partition key so consumers see them in order.
func (p *EventPublisher) Publish(ctx context.Context, event *models.SecurityEvent) error {
	if !p.enabled {
		return nil
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode security event: %w", err)
	}

	key := string(event.EventType)
	switch {
	case event.Identity != nil && *event.Identity != "":
		key = *event.Identity
	case event.IPAddress != nil && *event.IPAddress != "":
		key = *event.IPAddress
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.CreatedAt,
	})
}

func (p *EventPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
