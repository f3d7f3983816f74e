// internal/notify/kafka.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafkago.Writer the notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaNotifier publishes alerts to a Kafka topic keyed by transaction id,
// so alerts for one transaction stay ordered within a partition.
type KafkaNotifier struct {
	writer MessageWriter
	topic  string
	logger *zap.Logger
}

func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) *KafkaNotifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireAll,
	}
	return NewKafkaNotifierWithWriter(w, topic, logger)
}

func NewKafkaNotifierWithWriter(w MessageWriter, topic string, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{writer: w, topic: topic, logger: logger}
}

func (n *KafkaNotifier) Notify(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(alert.TransactionID),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "alert_type", Value: []byte(alert.Type)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish to %s: %w", n.topic, err)
	}

	n.logger.Debug("alert published",
		zap.String("topic", n.topic),
		zap.String("transaction_id", alert.TransactionID),
		zap.String("type", string(alert.Type)))
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
