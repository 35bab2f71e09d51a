package gateway

import (
	"context"
	"errors"
)

var (
	// ErrCaptureDeclined is returned when the processor refuses a charge
	ErrCaptureDeclined = errors.New("payment declined")
	// ErrNotRefundable is returned for references that cannot be refunded: unknown
	// or already fully refunded. Callers should not retry it.
	ErrNotRefundable = errors.New("payment not refundable")
)

// PaymentGateway captures and refunds payments with an external processor
type PaymentGateway interface {
	// Capture charges the payer and returns the processor reference
	Capture(ctx context.Context, req *CaptureRequest) (*CaptureResponse, error)
	// Refund returns a previously captured amount
	Refund(ctx context.Context, req *RefundRequest) error
	// Name returns the gateway name
	Name() string
}

// CaptureRequest represents a payment capture
type CaptureRequest struct {
	Amount        float64
	Currency      string
	PaymentMethod string
	Metadata      map[string]string
}

// CaptureResponse represents a successful capture
type CaptureResponse struct {
	Reference string
	Status    string
}

// RefundRequest represents a refund of a captured payment
type RefundRequest struct {
	Reference string
	Amount    float64
	Currency  string
	Reason    string
}

// toMinorUnits converts a major-unit amount to cents
func toMinorUnits(amount float64) int64 {
	return int64(amount*100 + 0.5)
}
