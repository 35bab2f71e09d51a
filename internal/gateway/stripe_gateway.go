package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
)

// StripeGateway implements PaymentGateway using Stripe PaymentIntents
type StripeGateway struct {
	config *StripeGatewayConfig
}

// StripeGatewayConfig holds configuration for Stripe gateway
type StripeGatewayConfig struct {
	SecretKey string
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil || config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	stripe.Key = config.SecretKey

	return &StripeGateway{config: config}, nil
}

// Capture creates and confirms a PaymentIntent with the given payment method
func (g *StripeGateway) Capture(ctx context.Context, req *CaptureRequest) (*CaptureResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("capture request is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(toMinorUnits(req.Amount)),
		Currency:      stripe.String(req.Currency),
		PaymentMethod: stripe.String(req.PaymentMethod),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
		Metadata: req.Metadata,
	}
	params.Context = ctx
	if key := req.Metadata["idempotency_key"]; key != "" {
		params.SetIdempotencyKey("capture:" + key)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Type == stripe.ErrorTypeCard {
			return nil, fmt.Errorf("%w: %s", ErrCaptureDeclined, serr.Code)
		}
		return nil, fmt.Errorf("stripe capture: %w", err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, fmt.Errorf("%w: payment intent %s is %s", ErrCaptureDeclined, pi.ID, pi.Status)
	}

	return &CaptureResponse{Reference: pi.ID, Status: string(pi.Status)}, nil
}

// Refund refunds a PaymentIntent. The idempotency key is derived from the
// reference so retries never refund twice.
func (g *StripeGateway) Refund(ctx context.Context, req *RefundRequest) error {
	if req == nil || req.Reference == "" {
		return fmt.Errorf("%w: payment reference is required", ErrNotRefundable)
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.Reference),
		Amount:        stripe.Int64(toMinorUnits(req.Amount)),
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund:" + req.Reference)

	if _, err := refund.New(params); err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) {
			switch serr.Code {
			case stripe.ErrorCodeChargeAlreadyRefunded:
				return nil
			case stripe.ErrorCodeResourceMissing:
				return fmt.Errorf("%w: %s", ErrNotRefundable, serr.Msg)
			}
		}
		return fmt.Errorf("failed to create refund: %w", err)
	}

	return nil
}

// Name returns the gateway name
func (g *StripeGateway) Name() string {
	return "stripe"
}
