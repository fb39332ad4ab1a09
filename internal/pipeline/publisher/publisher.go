// Package publisher announces finished runs to downstream consumers.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"subsnap/internal/pipeline/ports"
)

const contentTypeJSON = "application/json"

// Producer is the subset of *kgo.Client the Kafka publisher uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Kafka produces run summaries as JSON keyed by run id, so every summary of a
// rerun lands on the same partition.
type Kafka struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

type Option func(*Kafka)

func WithLogger(logger *slog.Logger) Option {
	return func(k *Kafka) {
		k.logger = logger
	}
}

func NewKafka(producer Producer, topic string, opts ...Option) (*Kafka, error) {
	if producer == nil {
		return nil, errors.New("kafka producer is required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	k := &Kafka{
		producer: producer,
		topic:    topic,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// Publish blocks until the broker acknowledges the summary.
func (k *Kafka) Publish(ctx context.Context, summary ports.RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	rec := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(summary.RunID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "content-type", Value: []byte(contentTypeJSON)},
		},
	}
	if err := k.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce run summary %s: %w", summary.RunID, err)
	}
	k.logger.DebugContext(ctx, "run summary published",
		"run_id", summary.RunID,
		"topic", k.topic,
	)
	return nil
}

// Log writes run summaries to the structured log. It is the publisher used
// when no brokers are configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Publish(ctx context.Context, summary ports.RunSummary) error {
	level := slog.LevelInfo
	if !summary.Success {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "run summary",
		"run_id", summary.RunID,
		"as_of", summary.AsOf,
		"success", summary.Success,
		"accounts", summary.Accounts,
		"failed_accounts", summary.FailedAccounts,
		"rows_loaded", summary.RowsLoaded,
		"skipped_events", summary.SkippedEvents,
		"failed_checks", summary.FailedChecks,
		"error", summary.Error,
	)
	return nil
}
