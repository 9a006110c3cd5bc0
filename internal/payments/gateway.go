package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Event types delivered by the gateway webhook. Everything else is ignored.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

// ErrGatewayUnavailable wraps transport failures talking to the gateway so
// callers can treat them as retryable initiation failures.
var ErrGatewayUnavailable = errors.New("payments: gateway unavailable")

// Logger defines the logging contract for gateway operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

// CreateOrderRequest captures the payload required to open a payment intent
// with the gateway. Amount is in minor currency units (paise).
type CreateOrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// GatewayOrder represents the remote payment intent returned by the gateway.
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
	Raw      map[string]any
}

// Gateway defines the capabilities consumed from the payment gateway.
type Gateway interface {
	// CreateOrder opens a remote payment intent for the given amount.
	CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error)
	// VerifyPaymentSignature checks the client-confirmation signature over
	// (gateway order id, gateway payment id) using the key secret.
	VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) bool
	// VerifyWebhookSignature checks the webhook signature over the raw body
	// using the distinct webhook secret.
	VerifyWebhookSignature(body []byte, signature string) bool
}

// WebhookEvent is the normalised projection of a gateway webhook delivery.
type WebhookEvent struct {
	Type             string
	GatewayOrderID   string
	GatewayPaymentID string
	Raw              map[string]any
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ParseWebhookEvent decodes a raw webhook body into a WebhookEvent. The full
// payload is retained in Raw for audit storage.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return WebhookEvent{}, fmt.Errorf("payments: parse webhook event: %w", err)
	}
	if strings.TrimSpace(envelope.Event) == "" {
		return WebhookEvent{}, errors.New("payments: webhook event type missing")
	}

	raw := map[string]any{}
	_ = json.Unmarshal(body, &raw)

	return WebhookEvent{
		Type:             envelope.Event,
		GatewayOrderID:   envelope.Payload.Payment.Entity.OrderID,
		GatewayPaymentID: envelope.Payload.Payment.Entity.ID,
		Raw:              raw,
	}, nil
}
