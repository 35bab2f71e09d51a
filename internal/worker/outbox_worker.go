package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
	"github.com/osamaloay/TicketsBooking-sub000/internal/metrics"
	"github.com/osamaloay/TicketsBooking-sub000/internal/repository"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/kafka"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/logger"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/retry"
	"go.uber.org/zap"
)

// Producer is satisfied by *kafka.Producer
type Producer interface {
	Produce(ctx context.Context, msg *kafka.Message) error
}

// OutboxWorkerConfig contains configuration for the outbox worker
type OutboxWorkerConfig struct {
	// PollInterval is the interval between polling for pending messages
	PollInterval time.Duration
	// BatchSize is the number of messages to fetch in each poll
	BatchSize int
	// Topic receives every lifecycle event
	Topic string
	// CleanupInterval is the interval between cleanup of old published messages
	CleanupInterval time.Duration
	// Retention is how long published messages are kept
	Retention time.Duration
}

// DefaultOutboxWorkerConfig returns default configuration
func DefaultOutboxWorkerConfig() *OutboxWorkerConfig {
	return &OutboxWorkerConfig{
		PollInterval:    500 * time.Millisecond,
		BatchSize:       100,
		Topic:           "ticketing-events",
		CleanupInterval: time.Hour,
		Retention:       7 * 24 * time.Hour,
	}
}

// OutboxWorker relays outbox rows to Kafka. Rows are claimed inside a
// transaction so several relays can share one table.
type OutboxWorker struct {
	store    repository.Store
	producer Producer
	dlq      retry.DLQPublisher
	config   *OutboxWorkerConfig
	log      *logger.Logger
	now      func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	published    atomic.Int64
	failed       atomic.Int64
	deadLettered atomic.Int64
}

// NewOutboxWorker creates a new outbox worker. A nil dlq drops exhausted messages.
func NewOutboxWorker(store repository.Store, producer Producer, dlq retry.DLQPublisher, config *OutboxWorkerConfig) *OutboxWorker {
	defaults := DefaultOutboxWorkerConfig()
	if config == nil {
		config = defaults
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Topic == "" {
		config.Topic = defaults.Topic
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	if dlq == nil {
		dlq = retry.NoOpDLQPublisher{}
	}

	return &OutboxWorker{
		store:    store,
		producer: producer,
		dlq:      dlq,
		config:   config,
		log:      logger.Get(),
		now:      func() time.Time { return time.Now().UTC() },
		stopCh:   make(chan struct{}),
	}
}

// Start starts the outbox worker
func (w *OutboxWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting outbox worker", zap.String("topic", w.config.Topic))

	w.wg.Add(1)
	go w.pollPendingMessages(ctx)

	w.wg.Add(1)
	go w.cleanupOldMessages(ctx)

	return nil
}

// Stop stops the outbox worker and waits for the loops to exit
func (w *OutboxWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping outbox worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Outbox worker stopped")
}

func (w *OutboxWorker) pollPendingMessages(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.log.Error("Failed to relay outbox batch", zap.Error(err))
			}
		}
	}
}

// ProcessBatch relays one batch of pending messages and returns how many were published
func (w *OutboxWorker) ProcessBatch(ctx context.Context) (int, error) {
	published := 0
	err := w.store.WithinTx(ctx, func(tx repository.Store) error {
		messages, err := tx.Outbox().GetPending(ctx, w.config.BatchSize)
		if err != nil {
			return fmt.Errorf("get pending messages: %w", err)
		}

		for _, msg := range messages {
			if err := w.publishMessage(ctx, msg); err != nil {
				w.handleFailure(ctx, msg, err)
			} else {
				msg.MarkAsPublished(w.now())
				published++
				w.published.Add(1)
				metrics.RecordOutboxPublished(ctx, msg.EventType)
			}
			if err := tx.Outbox().Update(ctx, msg); err != nil {
				return fmt.Errorf("update message %s: %w", msg.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

func (w *OutboxWorker) handleFailure(ctx context.Context, msg *domain.OutboxMessage, cause error) {
	msg.MarkAsFailed(cause.Error())
	w.failed.Add(1)

	if msg.CanRetry() {
		w.log.Warn("Failed to publish outbox message",
			zap.String("message_id", msg.ID),
			zap.String("event_type", msg.EventType),
			zap.Int("attempt", msg.RetryCount),
			zap.Int("max_retries", msg.MaxRetries),
			zap.Error(cause),
		)
		return
	}

	w.log.Error("Outbox message exhausted retries",
		zap.String("message_id", msg.ID),
		zap.String("event_type", msg.EventType),
		zap.Error(cause),
	)
	dead := &retry.DLQMessage{
		ID:            msg.ID,
		OriginalTopic: w.config.Topic,
		OriginalKey:   msg.PartitionKey,
		Payload:       msg.Payload,
		Headers:       w.headers(msg),
		Error:         cause.Error(),
		Attempts:      msg.RetryCount,
	}
	if err := w.dlq.PublishToDLQ(ctx, dead); err != nil {
		w.log.Error("Failed to dead-letter outbox message", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	w.deadLettered.Add(1)
	metrics.RecordOutboxDeadLettered(ctx, msg.EventType)
}

func (w *OutboxWorker) cleanupOldMessages(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if _, err := w.Cleanup(ctx); err != nil {
				w.log.Error("Failed to cleanup old messages", zap.Error(err))
			}
		}
	}
}

// Cleanup deletes published messages older than the retention window
func (w *OutboxWorker) Cleanup(ctx context.Context) (int64, error) {
	deleted, err := w.store.Outbox().DeletePublishedBefore(ctx, w.now().Add(-w.config.Retention))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		w.log.Info("Cleaned up old published messages", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}

func (w *OutboxWorker) publishMessage(ctx context.Context, msg *domain.OutboxMessage) error {
	return w.producer.Produce(ctx, &kafka.Message{
		Topic:     w.config.Topic,
		Key:       msg.PartitionKey,
		Value:     msg.Payload,
		Headers:   w.headers(msg),
		Timestamp: w.now(),
	})
}

func (w *OutboxWorker) headers(msg *domain.OutboxMessage) map[string]string {
	return map[string]string{
		"event_type":     msg.EventType,
		"aggregate_type": msg.AggregateType,
		"aggregate_id":   msg.AggregateID,
		"content_type":   "application/json",
		"source":         "outbox-worker",
	}
}

// GetStats returns worker statistics
func (w *OutboxWorker) GetStats(ctx context.Context) (*OutboxWorkerStats, error) {
	pending, err := w.store.Outbox().GetPending(ctx, 1)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	running := w.running
	w.mu.Unlock()

	return &OutboxWorkerStats{
		IsRunning:       running,
		PendingMessages: len(pending) > 0,
		Published:       w.published.Load(),
		Failed:          w.failed.Load(),
		DeadLettered:    w.deadLettered.Load(),
	}, nil
}

// OutboxWorkerStats contains worker statistics
type OutboxWorkerStats struct {
	IsRunning       bool  `json:"is_running"`
	PendingMessages bool  `json:"pending_messages"`
	Published       int64 `json:"published"`
	Failed          int64 `json:"failed"`
	DeadLettered    int64 `json:"dead_lettered"`
}
