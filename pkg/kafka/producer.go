package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// ProducerConfig holds producer settings
type ProducerConfig struct {
	Brokers        []string
	ClientID       string
	MaxRetries     int
	RetryInterval  time.Duration
	ProduceTimeout time.Duration
}

// DefaultProducerConfig returns producer defaults
func DefaultProducerConfig() *ProducerConfig {
	return &ProducerConfig{
		Brokers:        []string{"localhost:9092"},
		ClientID:       "ticketing-service",
		MaxRetries:     3,
		RetryInterval:  2 * time.Second,
		ProduceTimeout: 10 * time.Second,
	}
}

// Message is a record to produce
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Producer wraps a franz-go client for synchronous produces
type Producer struct {
	client *kgo.Client
	config *ProducerConfig
}

// NewProducer creates a producer and pings the cluster, retrying on failure
func NewProducer(ctx context.Context, cfg *ProducerConfig) (*Producer, error) {
	if cfg == nil {
		cfg = DefaultProducerConfig()
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.ProduceTimeout <= 0 {
		cfg.ProduceTimeout = 10 * time.Second
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProduceRequestTimeout(cfg.ProduceTimeout),
		kgo.RecordDeliveryTimeout(cfg.ProduceTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	for attempt := 0; ; attempt++ {
		err = client.Ping(ctx)
		if err == nil {
			break
		}
		if attempt >= cfg.MaxRetries {
			client.Close()
			return nil, fmt.Errorf("failed to ping Kafka after %d attempts: %w", attempt+1, err)
		}
		select {
		case <-ctx.Done():
			client.Close()
			return nil, ctx.Err()
		case <-time.After(cfg.RetryInterval):
		}
	}

	return &Producer{client: client, config: cfg}, nil
}

// Produce writes one message and waits for the broker ack
func (p *Producer) Produce(ctx context.Context, msg *Message) error {
	if err := p.client.ProduceSync(ctx, toRecord(msg)).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce to %s: %w", msg.Topic, err)
	}
	return nil
}

// ProduceJSON marshals v and produces it with a JSON content type header
func (p *Producer) ProduceJSON(ctx context.Context, topic, key string, v any, headers map[string]string) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	h := make(map[string]string, len(headers)+1)
	for k, val := range headers {
		h[k] = val
	}
	if _, ok := h["content_type"]; !ok {
		h["content_type"] = "application/json"
	}
	return p.Produce(ctx, &Message{Topic: topic, Key: key, Value: value, Headers: h})
}

// Ping checks broker connectivity
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes buffered records and closes the client
func (p *Producer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.ProduceTimeout)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}

func toRecord(msg *Message) *kgo.Record {
	r := &kgo.Record{
		Topic:     msg.Topic,
		Value:     msg.Value,
		Timestamp: msg.Timestamp,
	}
	if msg.Key != "" {
		r.Key = []byte(msg.Key)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	for k, v := range msg.Headers {
		r.Headers = append(r.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return r
}
