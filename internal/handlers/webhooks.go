package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xsnapster/api/internal/services"
)

const (
	maxWebhookBodySize      = 256 * 1024
	razorpaySignatureHeader = "X-Razorpay-Signature"
)

// WebhookVerifier checks a gateway webhook signature over the raw body.
type WebhookVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// WebhookHandlers receives gateway callbacks. Responses are always 200 so the
// gateway never retries on our processing failures; reconciliation is
// idempotent on the payment side.
type WebhookHandlers struct {
	verifier WebhookVerifier
	payments services.PaymentService
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(verifier WebhookVerifier, payments services.PaymentService, logger func(ctx context.Context, event string, fields map[string]any)) *WebhookHandlers {
	return &WebhookHandlers{
		verifier: verifier,
		payments: payments,
		logger:   logger,
	}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/razorpay", h.razorpay)
}

func (h *WebhookHandlers) razorpay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		h.log(ctx, "webhook.razorpay.read_failed", map[string]any{"error": err.Error()})
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "invalid payload"})
		return
	}

	signature := strings.TrimSpace(r.Header.Get(razorpaySignatureHeader))
	if h.verifier == nil || !h.verifier.VerifyWebhookSignature(body, signature) {
		h.log(ctx, "webhook.razorpay.signature_mismatch", map[string]any{"bytes": len(body)})
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "invalid signature"})
		return
	}

	if h.payments != nil {
		if err := h.payments.HandleGatewayEvent(ctx, body); err != nil {
			h.log(ctx, "webhook.razorpay.dispatch_failed", map[string]any{"error": err.Error()})
		}
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WebhookHandlers) log(ctx context.Context, event string, fields map[string]any) {
	if h.logger == nil {
		return
	}
	h.logger(ctx, event, fields)
}
