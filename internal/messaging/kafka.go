package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/internal/config"
	"github.com/temcen/seasonrec/pkg/models"
)

const (
	maxRetries     = 3
	publishTimeout = 10 * time.Second
)

// InteractionMessage carries one tracked view or cart event.
type InteractionMessage struct {
	EventID    uuid.UUID                `json:"event_id"`
	Record     models.InteractionRecord `json:"record"`
	Timestamp  time.Time                `json:"timestamp"`
	RetryCount int                      `json:"retry_count"`
}

// Handler persists one event. Returning an error triggers a retry.
type Handler func(ctx context.Context, record models.InteractionRecord) error

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Stats() kafka.ReaderStats
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type MessageBus struct {
	topic     string
	writer    messageWriter
	reader    messageReader
	dlqWriter messageWriter
	logger    *logrus.Logger

	baseDelay time.Duration
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka.brokers is empty")
	}
	topic := cfg.Kafka.Topics.UserInteractions

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // keyed by user so a user's events stay ordered
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          topic,
		GroupID:        cfg.Kafka.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.DeadLetter,
		RequiredAcks: kafka.RequireOne,
	}

	return &MessageBus{
		topic:     topic,
		writer:    writer,
		reader:    reader,
		dlqWriter: dlqWriter,
		logger:    logger,
		baseDelay: time.Second,
	}, nil
}

func encodeInteraction(record models.InteractionRecord, now time.Time) (kafka.Message, error) {
	message := InteractionMessage{
		EventID:   uuid.New(),
		Record:    record,
		Timestamp: now,
	}

	value, err := json.Marshal(message)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal message: %w", err)
	}

	return kafka.Message{
		Key:   []byte(record.UserID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(message.EventID.String())},
			{Key: "interaction_type", Value: []byte(record.Type)},
			{Key: "timestamp", Value: []byte(now.Format(time.RFC3339))},
		},
	}, nil
}

// PublishInteraction writes record to the interactions topic.
func (mb *MessageBus) PublishInteraction(ctx context.Context, record models.InteractionRecord) error {
	msg, err := encodeInteraction(record, time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := mb.writer.WriteMessages(ctx, msg); err != nil {
		mb.logger.WithError(err).WithField("user_id", record.UserID).Error("Failed to publish interaction to Kafka")
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"user_id":    record.UserID,
		"product_id": record.ProductID,
		"type":       record.Type,
		"topic":      mb.topic,
	}).Debug("Interaction published to Kafka")

	return nil
}

// ConsumeMessages feeds events to handler until ctx is done. Events that
// still fail after the retries are sent to the dead letter topic.
func (mb *MessageBus) ConsumeMessages(ctx context.Context, handler Handler) error {
	for {
		message, err := mb.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			mb.logger.WithError(err).Error("Failed to read message from Kafka")
			continue
		}

		var event InteractionMessage
		if err := json.Unmarshal(message.Value, &event); err != nil {
			mb.logger.WithError(err).Error("Failed to unmarshal Kafka message")
			if dlqErr := mb.sendToDLQ(ctx, message.Value, event.EventID, err); dlqErr != nil {
				mb.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
			}
			continue
		}

		if err := mb.processWithRetry(ctx, &event, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			mb.logger.WithError(err).WithField("event_id", event.EventID).Error("Failed to process message after retries")
			if dlqErr := mb.sendToDLQ(ctx, message.Value, event.EventID, err); dlqErr != nil {
				mb.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
			}
		}
	}
}

func (mb *MessageBus) processWithRetry(ctx context.Context, event *InteractionMessage, handler Handler) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := mb.baseDelay * time.Duration(1<<uint(attempt-1))
			mb.logger.WithFields(logrus.Fields{
				"event_id": event.EventID,
				"attempt":  attempt,
				"delay":    delay,
			}).Info("Retrying message processing")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		event.RetryCount = attempt
		if err = handler(ctx, event.Record); err == nil {
			return nil
		}
		mb.logger.WithError(err).WithFields(logrus.Fields{
			"event_id": event.EventID,
			"attempt":  attempt,
		}).Warn("Message processing failed")
	}
	return fmt.Errorf("max retries exceeded: %w", err)
}

func (mb *MessageBus) sendToDLQ(ctx context.Context, original []byte, eventID uuid.UUID, cause error) error {
	dlqMessage := map[string]interface{}{
		"original_message": json.RawMessage(original),
		"error":            cause.Error(),
		"dlq_timestamp":    time.Now(),
	}
	if !json.Valid(original) {
		dlqMessage["original_message"] = string(original)
	}

	value, err := json.Marshal(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(eventID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(eventID.String())},
			{Key: "original_topic", Value: []byte(mb.topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	}

	if err := mb.dlqWriter.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to DLQ: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"event_id": eventID,
		"error":    cause.Error(),
	}).Warn("Message sent to DLQ")

	return nil
}

func (mb *MessageBus) Close() error {
	var errors []error

	if err := mb.writer.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close producer: %w", err))
	}
	if err := mb.reader.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close consumer: %w", err))
	}
	if err := mb.dlqWriter.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close DLQ writer: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errors)
	}
	return nil
}

// GetMetrics returns consumer statistics for monitoring.
func (mb *MessageBus) GetMetrics() map[string]interface{} {
	stats := mb.reader.Stats()
	return map[string]interface{}{
		"consumer_lag":    stats.Lag,
		"consumer_offset": stats.Offset,
		"messages_read":   stats.Messages,
		"bytes_read":      stats.Bytes,
		"rebalances":      stats.Rebalances,
		"timeouts":        stats.Timeouts,
		"errors":          stats.Errors,
	}
}
