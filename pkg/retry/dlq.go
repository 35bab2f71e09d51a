package retry

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// DLQMessage is a message that could not be delivered after all attempts
type DLQMessage struct {
	ID            string            `json:"id"`
	OriginalTopic string            `json:"original_topic"`
	OriginalKey   string            `json:"original_key"`
	Payload       json.RawMessage   `json:"payload"`
	Headers       map[string]string `json:"headers,omitempty"`
	Error         string            `json:"error"`
	Attempts      int               `json:"attempts"`
	MovedToDLQAt  time.Time         `json:"moved_to_dlq_at"`
	Source        string            `json:"source"`
}

// DLQPublisher publishes failed messages to a dead letter queue
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg *DLQMessage) error
	DLQTopic(originalTopic string) string
}

// JSONProducer is satisfied by kafka.Producer
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, v any, headers map[string]string) error
}

// KafkaDLQPublisher writes dead letters to "<topic>.dlq"
type KafkaDLQPublisher struct {
	producer JSONProducer
	suffix   string
	source   string
}

// NewKafkaDLQPublisher creates a DLQ publisher tagged with the given source service
func NewKafkaDLQPublisher(producer JSONProducer, source string) *KafkaDLQPublisher {
	return &KafkaDLQPublisher{producer: producer, suffix: ".dlq", source: source}
}

func (p *KafkaDLQPublisher) PublishToDLQ(ctx context.Context, msg *DLQMessage) error {
	if msg == nil {
		return errors.New("DLQ message cannot be nil")
	}
	msg.MovedToDLQAt = time.Now().UTC()
	msg.Source = p.source

	headers := map[string]string{
		"content_type":   "application/json",
		"original_topic": msg.OriginalTopic,
		"attempts":       strconv.Itoa(msg.Attempts),
		"source":         msg.Source,
	}
	for k, v := range msg.Headers {
		if _, taken := headers[k]; !taken {
			headers["original_"+k] = v
		}
	}

	return p.producer.ProduceJSON(ctx, p.DLQTopic(msg.OriginalTopic), msg.OriginalKey, msg, headers)
}

func (p *KafkaDLQPublisher) DLQTopic(originalTopic string) string {
	return originalTopic + p.suffix
}

// NoOpDLQPublisher drops dead letters
type NoOpDLQPublisher struct{}

func (NoOpDLQPublisher) PublishToDLQ(context.Context, *DLQMessage) error { return nil }
func (NoOpDLQPublisher) DLQTopic(originalTopic string) string { return originalTopic + ".dlq" }
