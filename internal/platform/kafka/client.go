package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"subsnap/internal/platform/config"
)

// Client wraps a franz-go client producing to the run-summary topic.
type Client struct {
	*kgo.Client
	topic string
}

// New connects to the brokers in cfg. Returns nil, nil when no brokers are
// configured.
func New(ctx context.Context, cfg config.Kafka) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	cl, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := cl.Ping(ctx); err != nil {
		cl.Close()
		return nil, fmt.Errorf("kafka ping failed: %w", err)
	}

	return &Client{Client: cl, topic: cfg.Topic}, nil
}

// Topic is the topic run summaries are produced to.
func (c *Client) Topic() string { return c.topic }

// EnsureTopic creates the topic if it does not exist yet.
func EnsureTopic(ctx context.Context, cl *kgo.Client, topic string, partitions int32, replication int16) error {
	adm := kadm.NewClient(cl)
	resp, err := adm.CreateTopic(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

// Health checks broker connectivity.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx)
}
