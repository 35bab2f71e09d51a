package gateway

import (
	"fmt"

	"github.com/osamaloay/TicketsBooking-sub000/pkg/config"
)

// New builds the gateway selected by PAYMENT_GATEWAY
func New(cfg config.PaymentConfig) (PaymentGateway, error) {
	switch cfg.Gateway {
	case "stripe":
		return NewStripeGateway(&StripeGatewayConfig{SecretKey: cfg.StripeSecretKey})
	case "mock", "":
		return NewMockGateway(&MockGatewayConfig{
			SuccessRate:       cfg.MockSuccessRate,
			RefundSuccessRate: 1,
			DelayMs:           cfg.MockDelayMs,
		}), nil
	default:
		return nil, fmt.Errorf("unknown payment gateway %q", cfg.Gateway)
	}
}
