package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

const (
	defaultCurrency    = "INR"
	defaultCallTimeout = 10 * time.Second
)

// RazorpayOrderAPI matches the subset of the Razorpay SDK used for order
// creation, allowing a stub in tests.
type RazorpayOrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayConfig configures the RazorpayGateway.
type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Currency      string
	CallTimeout   time.Duration
	Logger        Logger
	Clock         func() time.Time
	Orders        RazorpayOrderAPI
}

// RazorpayGateway implements Gateway against the Razorpay APIs. Signature
// checks are computed locally from the shared secrets; only order creation
// goes over the wire.
type RazorpayGateway struct {
	orders        RazorpayOrderAPI
	keySecret     []byte
	webhookSecret []byte
	currency      string
	callTimeout   time.Duration
	clock         func() time.Time
	logger        Logger
}

// NewRazorpayGateway constructs a RazorpayGateway using the given configuration.
func NewRazorpayGateway(cfg RazorpayConfig) (*RazorpayGateway, error) {
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errors.New("razorpay: key secret is required")
	}

	orders := cfg.Orders
	if orders == nil {
		keyID := strings.TrimSpace(cfg.KeyID)
		if keyID == "" {
			return nil, errors.New("razorpay: key id is required")
		}
		orders = razorpay.NewClient(keyID, keySecret).Order
	}

	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &RazorpayGateway{
		orders:        orders,
		keySecret:     []byte(keySecret),
		webhookSecret: []byte(strings.TrimSpace(cfg.WebhookSecret)),
		currency:      currency,
		callTimeout:   callTimeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateOrder opens a Razorpay order for the given amount in minor units.
// The SDK call carries no context, so it runs in a goroutine bounded by the
// configured timeout; a timeout surfaces as a retryable initiation failure.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error) {
	if g == nil {
		return GatewayOrder{}, errors.New("razorpay: gateway is nil")
	}
	if req.Amount <= 0 {
		return GatewayOrder{}, fmt.Errorf("razorpay: invalid order amount %d", req.Amount)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = g.currency
	}

	data := map[string]interface{}{
		"amount":          req.Amount,
		"currency":        currency,
		"payment_capture": 1,
	}
	if receipt := strings.TrimSpace(req.Receipt); receipt != "" {
		data["receipt"] = receipt
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	type createResult struct {
		body map[string]interface{}
		err  error
	}
	resultCh := make(chan createResult, 1)
	go func() {
		body, err := g.orders.Create(data, nil)
		resultCh <- createResult{body: body, err: err}
	}()

	var body map[string]interface{}
	select {
	case <-callCtx.Done():
		return GatewayOrder{}, fmt.Errorf("%w: create order: %v", ErrGatewayUnavailable, callCtx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return GatewayOrder{}, fmt.Errorf("%w: create order: %v", ErrGatewayUnavailable, res.err)
		}
		body = res.body
	}

	orderID, _ := body["id"].(string)
	if strings.TrimSpace(orderID) == "" {
		return GatewayOrder{}, fmt.Errorf("%w: create order returned no id", ErrGatewayUnavailable)
	}

	g.logger(ctx, "payments.razorpay.order.created", map[string]any{
		"gatewayOrderId": orderID,
		"amount":         req.Amount,
		"currency":       currency,
	})

	return GatewayOrder{
		ID:       orderID,
		Amount:   req.Amount,
		Currency: currency,
		Raw:      body,
	}, nil
}

// VerifyPaymentSignature checks the HMAC-SHA256 hex digest the client echoes
// back after checkout, computed over "orderID|paymentID" with the key secret.
func (g *RazorpayGateway) VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if g == nil || len(g.keySecret) == 0 {
		return false
	}
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return false
	}
	payload := gatewayOrderID + "|" + gatewayPaymentID
	return verifyHexDigest(g.keySecret, []byte(payload), signature)
}

// VerifyWebhookSignature checks the HMAC-SHA256 hex digest over the raw
// webhook body against the webhook secret.
func (g *RazorpayGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	if g == nil || len(g.webhookSecret) == 0 {
		return false
	}
	if len(body) == 0 || signature == "" {
		return false
	}
	return verifyHexDigest(g.webhookSecret, body, signature)
}

func verifyHexDigest(secret, message []byte, signature string) bool {
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	return hmac.Equal(provided, mac.Sum(nil))
}
