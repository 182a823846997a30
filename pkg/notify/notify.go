// Package notify publishes one event per dataset result so downstream
// jobs can pick up new snapshots.
package notify

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlsnap/pkg/config"
	"github.com/ajitpratap0/sqlsnap/pkg/errors"
	"github.com/ajitpratap0/sqlsnap/pkg/json"
)

// Event describes the outcome of one dataset.
type Event struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Dataset   string    `json:"dataset"`
	Location  string    `json:"location,omitempty"`
	Rows      int       `json:"rows"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers events. Delivery failures are logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, e Event)
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}
func (Nop) Close() error                  { return nil }

// KafkaNotifier sends events to a topic through a sync producer.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// New returns a KafkaNotifier when brokers and topic are configured, and
// Nop otherwise.
func New(cfg config.NotifyConfig, log *zap.Logger) (Notifier, error) {
	if !cfg.Enabled() {
		return Nop{}, nil
	}
	producer, err := sarama.NewSyncProducer(cfg.KafkaBrokers, SaramaConfig(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create Kafka producer")
	}
	return NewKafkaNotifier(producer, cfg.KafkaTopic, log), nil
}

// NewKafkaNotifier wraps an existing producer.
func NewKafkaNotifier(producer sarama.SyncProducer, topic string, log *zap.Logger) *KafkaNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
		logger:   log.With(zap.String("component", "notify"), zap.String("topic", topic)),
	}
}

// SaramaConfig builds the producer configuration.
func SaramaConfig(cfg config.NotifyConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = "sqlsnap"
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = 0
	sc.Producer.Compression = sarama.CompressionSnappy
	if cfg.Timeout > 0 {
		sc.Net.DialTimeout = cfg.Timeout
		sc.Net.WriteTimeout = cfg.Timeout
		sc.Net.ReadTimeout = cfg.Timeout
		sc.Producer.Timeout = cfg.Timeout
	}
	return sc
}

// Notify implements Notifier.
func (k *KafkaNotifier) Notify(ctx context.Context, e Event) {
	if err := ctx.Err(); err != nil {
		k.logger.Warn("Skipping notification", zap.String("dataset", e.Dataset), zap.Error(err))
		return
	}

	msg, err := k.buildProducerMessage(e)
	if err != nil {
		k.logger.Warn("Failed to encode notification", zap.String("dataset", e.Dataset), zap.Error(err))
		return
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		k.logger.Warn("Failed to send notification", zap.String("dataset", e.Dataset), zap.Error(err))
		return
	}
	k.logger.Debug("Sent notification",
		zap.String("dataset", e.Dataset),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
}

func (k *KafkaNotifier) buildProducerMessage(e Event) (*sarama.ProducerMessage, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}

	status := "success"
	if e.Error != "" {
		status = "error"
	}

	return &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(e.Source + "/" + e.Dataset),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("source"), Value: []byte(e.Source)},
			{Key: []byte("dataset"), Value: []byte(e.Dataset)},
			{Key: []byte("status"), Value: []byte(status)},
			{Key: []byte("content-type"), Value: []byte("application/json")},
		},
		Timestamp: e.Timestamp,
	}, nil
}

// Close closes the producer.
func (k *KafkaNotifier) Close() error {
	if err := k.producer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close Kafka producer")
	}
	return nil
}
