// Package events publishes chat activity to a message stream for downstream
// consumers. Publishing happens after the message is durably stored and never
// blocks or fails a send.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"freelynx/backend/internal/models"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type Sink interface {
	Publish(ctx context.Context, evt models.MessageEvent) error
	Close() error
}

// NopSink drops every event. It is used when no brokers are configured.
type NopSink struct{}

func (NopSink) Publish(context.Context, models.MessageEvent) error { return nil }
func (NopSink) Close() error                                      { return nil }

// KafkaSink writes events keyed by conversation ID, so all events of one
// conversation land on the same partition in log order.
type KafkaSink struct {
	writer messageWriter
	logger *slog.Logger
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaSink returns a sink over an asynchronous kafka.Writer: Publish only
// enqueues, and delivery failures are reported to the logger once the batch
// completes.
func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion:             logCompletion(logger.With("component", "events")),
	}
	return newKafkaSink(w, logger)
}

// logCompletion reports the outcome of an asynchronous batch write.
func logCompletion(logger *slog.Logger) func(messages []kafka.Message, err error) {
	return func(messages []kafka.Message, err error) {
		if err == nil {
			logger.Debug("events delivered", "count", len(messages))
			return
		}
		keys := make([]string, 0, len(messages))
		for _, m := range messages {
			keys = append(keys, string(m.Key))
		}
		logger.Warn("events not delivered", "count", len(messages), "conversation_ids", keys, "err", err)
	}
}

func newKafkaSink(w messageWriter, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSink{writer: w, logger: logger.With("component", "events")}
}

func (k *KafkaSink) Publish(ctx context.Context, evt models.MessageEvent) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", evt.Type, err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Message.ConversationID),
		Value: value,
		Time:  evt.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(evt.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", evt.Type, err)
	}
	k.logger.Debug("event published", "type", evt.Type, "conversation_id", evt.Message.ConversationID)
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
