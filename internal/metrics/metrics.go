package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/osamaloay/TicketsBooking-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Booking counters
	BookingsConfirmed *telemetry.Counter
	BookingsCanceled  *telemetry.Counter
	BookingsRejected  *telemetry.Counter
	TicketsReserved   *telemetry.Counter
	TicketsReleased   *telemetry.Counter

	// Payment
	CaptureFailures *telemetry.Counter
	Compensations   *telemetry.Counter

	// Settlement
	TransitionsTotal   *telemetry.Counter
	RefundsSucceeded   *telemetry.Counter
	RefundsFailed      *telemetry.Counter
	SettlementDuration *telemetry.Histogram

	// Outbox
	OutboxPublished    *telemetry.Counter
	OutboxDeadLettered *telemetry.Counter

	// Reconciler
	ReconcilerRuns *telemetry.Counter

	CaptureDuration *telemetry.Histogram

	initOnce sync.Once
	initErr  error
)

// Init initializes all service metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	counters := []struct {
		dst  **telemetry.Counter
		opts telemetry.MetricOpts
	}{
		{&BookingsConfirmed, telemetry.MetricOpts{Name: "booking_confirmations_total", Description: "Total number of bookings confirmed", Unit: "1"}},
		{&BookingsCanceled, telemetry.MetricOpts{Name: "booking_cancellations_total", Description: "Total number of canceled bookings by reason", Unit: "1"}},
		{&BookingsRejected, telemetry.MetricOpts{Name: "booking_rejections_total", Description: "Total number of booking requests rejected by reason", Unit: "1"}},
		{&TicketsReserved, telemetry.MetricOpts{Name: "inventory_tickets_reserved_total", Description: "Tickets taken from inventory", Unit: "1"}},
		{&TicketsReleased, telemetry.MetricOpts{Name: "inventory_tickets_released_total", Description: "Tickets returned to inventory", Unit: "1"}},
		{&CaptureFailures, telemetry.MetricOpts{Name: "payment_capture_failures_total", Description: "Total number of failed payment captures", Unit: "1"}},
		{&Compensations, telemetry.MetricOpts{Name: "booking_compensations_total", Description: "Compensating actions run after a failed booking step", Unit: "1"}},
		{&TransitionsTotal, telemetry.MetricOpts{Name: "event_transitions_total", Description: "Event status transitions by effect", Unit: "1"}},
		{&RefundsSucceeded, telemetry.MetricOpts{Name: "settlement_refunds_succeeded_total", Description: "Refunds accepted by the payment gateway", Unit: "1"}},
		{&RefundsFailed, telemetry.MetricOpts{Name: "settlement_refunds_failed_total", Description: "Refunds that failed after all retries", Unit: "1"}},
		{&OutboxPublished, telemetry.MetricOpts{Name: "outbox_published_total", Description: "Outbox messages published to Kafka", Unit: "1"}},
		{&OutboxDeadLettered, telemetry.MetricOpts{Name: "outbox_dead_lettered_total", Description: "Outbox messages moved to the DLQ", Unit: "1"}},
		{&ReconcilerRuns, telemetry.MetricOpts{Name: "refund_reconciler_runs_total", Description: "Refund reconciler passes", Unit: "1"}},
	}
	for _, c := range counters {
		counter, err := telemetry.NewCounter(c.opts)
		if err != nil {
			return err
		}
		*c.dst = counter
	}

	var err error
	SettlementDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "settlement_duration_seconds",
		Description: "Time spent refunding the bookings of one event",
		Unit:        "s",
	}, []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60})
	if err != nil {
		return err
	}

	CaptureDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "payment_capture_duration_seconds",
		Description: "Payment capture latency",
		Unit:        "s",
	}, []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10})
	return err
}

// RecordBookingConfirmed records a confirmed booking and its reservation
func RecordBookingConfirmed(ctx context.Context, eventID string, quantity int) {
	if BookingsConfirmed != nil {
		BookingsConfirmed.Inc(ctx, attribute.String("event_id", eventID))
	}
	if TicketsReserved != nil {
		TicketsReserved.Add(ctx, int64(quantity), attribute.String("event_id", eventID))
	}
}

// RecordBookingRejected records a refused booking request
func RecordBookingRejected(ctx context.Context, reason string) {
	if BookingsRejected != nil {
		BookingsRejected.Inc(ctx, attribute.String("reason", reason))
	}
}

// RecordBookingsCanceled records canceled bookings and the tickets they returned
func RecordBookingsCanceled(ctx context.Context, reason string, bookings, tickets int) {
	if BookingsCanceled != nil && bookings > 0 {
		BookingsCanceled.Add(ctx, int64(bookings), attribute.String("reason", reason))
	}
	if TicketsReleased != nil && tickets > 0 {
		TicketsReleased.Add(ctx, int64(tickets), attribute.String("reason", reason))
	}
}

// RecordCapture records a capture attempt's latency and outcome
func RecordCapture(ctx context.Context, gateway string, d time.Duration, err error) {
	if CaptureDuration != nil {
		CaptureDuration.Record(ctx, d.Seconds(), attribute.String("gateway", gateway), attribute.Bool("success", err == nil))
	}
	if err != nil && CaptureFailures != nil {
		CaptureFailures.Inc(ctx, attribute.String("gateway", gateway))
	}
}

// RecordCompensation records a compensating release or refund
func RecordCompensation(ctx context.Context, action string) {
	if Compensations != nil {
		Compensations.Inc(ctx, attribute.String("action", action))
	}
}

// RecordTransition records an event status change
func RecordTransition(ctx context.Context, from, to, effect string) {
	if TransitionsTotal != nil {
		TransitionsTotal.Inc(ctx,
			attribute.String("from", from),
			attribute.String("to", to),
			attribute.String("effect", effect),
		)
	}
}

// RecordSettlement records the refund outcome counts of one settlement pass
func RecordSettlement(ctx context.Context, mode string, succeeded, failed int, d time.Duration) {
	if RefundsSucceeded != nil && succeeded > 0 {
		RefundsSucceeded.Add(ctx, int64(succeeded), attribute.String("mode", mode))
	}
	if RefundsFailed != nil && failed > 0 {
		RefundsFailed.Add(ctx, int64(failed), attribute.String("mode", mode))
	}
	if SettlementDuration != nil {
		SettlementDuration.Record(ctx, d.Seconds(), attribute.String("mode", mode))
	}
}

// RecordOutboxPublished records relayed outbox messages
func RecordOutboxPublished(ctx context.Context, eventType string) {
	if OutboxPublished != nil {
		OutboxPublished.Inc(ctx, attribute.String("event_type", eventType))
	}
}

// RecordOutboxDeadLettered records a message given up on
func RecordOutboxDeadLettered(ctx context.Context, eventType string) {
	if OutboxDeadLettered != nil {
		OutboxDeadLettered.Inc(ctx, attribute.String("event_type", eventType))
	}
}

// RecordReconcilerRun records one reconciler pass
func RecordReconcilerRun(ctx context.Context, scanned, recovered int) {
	if ReconcilerRuns != nil {
		ReconcilerRuns.Inc(ctx, attribute.Int("scanned", scanned), attribute.Int("recovered", recovered))
	}
}
