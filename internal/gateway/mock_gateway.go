package gateway

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockGateway implements PaymentGateway in memory for development and load tests
type MockGateway struct {
	config   *MockGatewayConfig
	payments sync.Map // reference -> *mockPayment
}

// MockGatewayConfig holds configuration for the mock gateway
type MockGatewayConfig struct {
	// SuccessRate is the probability of a successful capture (0.0 to 1.0)
	SuccessRate float64
	// RefundSuccessRate is the probability of a successful refund (0.0 to 1.0)
	RefundSuccessRate float64
	// DelayMs is the simulated processing delay in milliseconds
	DelayMs int
}

type mockPayment struct {
	mu       sync.Mutex
	amount   float64
	refunded bool
}

// DefaultMockGatewayConfig returns default configuration
func DefaultMockGatewayConfig() *MockGatewayConfig {
	return &MockGatewayConfig{
		SuccessRate:       1,
		RefundSuccessRate: 1,
		DelayMs:           50,
	}
}

// NewMockGateway creates a new mock gateway
func NewMockGateway(config *MockGatewayConfig) *MockGateway {
	if config == nil {
		config = DefaultMockGatewayConfig()
	}
	config.SuccessRate = clamp01(config.SuccessRate)
	config.RefundSuccessRate = clamp01(config.RefundSuccessRate)
	return &MockGateway{config: config}
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

func (g *MockGateway) delay(ctx context.Context) error {
	if g.config.DelayMs <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(g.config.DelayMs) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Capture simulates a charge
func (g *MockGateway) Capture(ctx context.Context, req *CaptureRequest) (*CaptureResponse, error) {
	if req == nil || req.PaymentMethod == "" {
		return nil, fmt.Errorf("%w: payment method is required", ErrCaptureDeclined)
	}
	if err := g.delay(ctx); err != nil {
		return nil, err
	}
	if rand.Float64() >= g.config.SuccessRate {
		return nil, fmt.Errorf("%w: card_declined", ErrCaptureDeclined)
	}

	ref := "mock_pi_" + uuid.NewString()[:12]
	g.payments.Store(ref, &mockPayment{amount: req.Amount})
	return &CaptureResponse{Reference: ref, Status: "succeeded"}, nil
}

// Refund simulates a refund. Refunding an already refunded payment succeeds.
func (g *MockGateway) Refund(ctx context.Context, req *RefundRequest) error {
	if req == nil || req.Reference == "" {
		return fmt.Errorf("%w: payment reference is required", ErrNotRefundable)
	}
	if err := g.delay(ctx); err != nil {
		return err
	}

	v, ok := g.payments.Load(req.Reference)
	if !ok {
		return fmt.Errorf("%w: unknown reference %s", ErrNotRefundable, req.Reference)
	}
	if rand.Float64() >= g.config.RefundSuccessRate {
		return fmt.Errorf("mock refund for %s: processing_error", req.Reference)
	}

	p := v.(*mockPayment)
	p.mu.Lock()
	p.refunded = true
	p.mu.Unlock()
	return nil
}

// IsRefunded reports whether a captured reference has been refunded
func (g *MockGateway) IsRefunded(reference string) bool {
	v, ok := g.payments.Load(reference)
	if !ok {
		return false
	}
	p := v.(*mockPayment)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refunded
}

// Name returns the gateway name
func (g *MockGateway) Name() string {
	return "mock"
}
