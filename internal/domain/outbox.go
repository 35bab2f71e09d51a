package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// DefaultOutboxMaxRetries bounds publish attempts before a message is dead-lettered
const DefaultOutboxMaxRetries = 5

// OutboxMessage is a lifecycle event written in the same transaction as the state change
type OutboxMessage struct {
	ID            string       `json:"id"`
	AggregateType string       `json:"aggregate_type"`
	AggregateID   string       `json:"aggregate_id"`
	EventType     string       `json:"event_type"`
	Payload       []byte       `json:"payload"`
	PartitionKey  string       `json:"partition_key"`
	Status        OutboxStatus `json:"status"`
	RetryCount    int          `json:"retry_count"`
	MaxRetries    int          `json:"max_retries"`
	LastError     string       `json:"last_error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	PublishedAt   *time.Time   `json:"published_at,omitempty"`
}

// NewOutboxMessage marshals payload into a pending message partitioned by partitionKey
func NewOutboxMessage(aggregateType, aggregateID, eventType, partitionKey string, payload any) (*OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		PartitionKey:  partitionKey,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultOutboxMaxRetries,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// CanRetry checks if the message can be retried
func (m *OutboxMessage) CanRetry() bool {
	return m.RetryCount < m.MaxRetries
}

// MarkAsPublished marks the message as successfully published
func (m *OutboxMessage) MarkAsPublished(at time.Time) {
	m.Status = OutboxStatusPublished
	m.PublishedAt = &at
}

// MarkAsFailed records a publish failure; the message stays pending until retries run out
func (m *OutboxMessage) MarkAsFailed(err string) {
	m.RetryCount++
	m.LastError = err
	if m.CanRetry() {
		m.Status = OutboxStatusPending
		return
	}
	m.Status = OutboxStatusFailed
}
