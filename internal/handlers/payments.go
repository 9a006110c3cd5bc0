package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xsnapster/api/internal/platform/auth"
	"github.com/xsnapster/api/internal/platform/httpx"
	"github.com/xsnapster/api/internal/services"
)

const maxVerifyBodySize = 8 * 1024

type verifyPaymentRequest struct {
	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	Signature        string `json:"razorpay_signature"`
}

// PaymentHandlers exposes the client-side payment confirmation endpoint.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{
		authn:    authn,
		payments: payments,
	}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/verify", h.verifyPayment)
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxVerifyBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req verifyPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	payment, err := h.payments.VerifyPayment(ctx, services.VerifyPaymentCommand{
		GatewayOrderID:   strings.TrimSpace(req.GatewayOrderID),
		GatewayPaymentID: strings.TrimSpace(req.GatewayPaymentID),
		Signature:        strings.TrimSpace(req.Signature),
		UserID:           identity.UserID,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, verifyPaymentResponse{
		Payment: buildPaymentPayload(payment),
	})
}

type verifyPaymentResponse struct {
	Payment paymentPayload `json:"payment"`
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentSignatureInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("signature_invalid", "payment signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "payment does not belong to the caller", http.StatusForbidden))
	case errors.Is(err, services.ErrPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", "payment not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment request", http.StatusInternalServerError))
	}
}
