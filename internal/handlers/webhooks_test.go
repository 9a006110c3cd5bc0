package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type stubWebhookVerifier struct {
	valid bool
	body  []byte
	sig   string
}

func (s *stubWebhookVerifier) VerifyWebhookSignature(body []byte, signature string) bool {
	s.body = append([]byte(nil), body...)
	s.sig = signature
	return s.valid
}

func newWebhookRouter(handler *WebhookHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)
	return router
}

func TestWebhookHandlersRazorpayInvalidSignature(t *testing.T) {
	verifier := &stubWebhookVerifier{valid: false}
	dispatched := false
	service := &stubPaymentService{
		eventFn: func(context.Context, []byte) error {
			dispatched = true
			return nil
		},
	}
	router := newWebhookRouter(NewWebhookHandlers(verifier, service, nil))

	body := `{"event":"payment.captured"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", bytes.NewBufferString(body))
	req.Header.Set("X-Razorpay-Signature", "bad-signature")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if dispatched {
		t.Fatal("expected no dispatch on signature mismatch")
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "invalid signature" {
		t.Fatalf("expected invalid signature status, got %q", resp["status"])
	}
	if verifier.sig != "bad-signature" {
		t.Fatalf("expected header signature forwarded, got %q", verifier.sig)
	}
}

func TestWebhookHandlersRazorpayDispatch(t *testing.T) {
	verifier := &stubWebhookVerifier{valid: true}
	var received []byte
	service := &stubPaymentService{
		eventFn: func(ctx context.Context, body []byte) error {
			received = append([]byte(nil), body...)
			return nil
		},
	}
	router := newWebhookRouter(NewWebhookHandlers(verifier, service, nil))

	body := `{"event":"payment.captured","payload":{}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", bytes.NewBufferString(body))
	req.Header.Set("X-Razorpay-Signature", "good-signature")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if string(received) != body {
		t.Fatalf("expected raw body forwarded, got %q", string(received))
	}
	if string(verifier.body) != body {
		t.Fatalf("expected signature verified over the raw body, got %q", string(verifier.body))
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("expected ok status, got %q", resp["status"])
	}
}

func TestWebhookHandlersRazorpayAcksDispatchFailure(t *testing.T) {
	verifier := &stubWebhookVerifier{valid: true}
	service := &stubPaymentService{
		eventFn: func(context.Context, []byte) error {
			return errors.New("firestore unavailable")
		},
	}

	var loggedEvent string
	logger := func(ctx context.Context, event string, fields map[string]any) {
		loggedEvent = event
	}
	router := newWebhookRouter(NewWebhookHandlers(verifier, service, logger))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", bytes.NewBufferString(`{"event":"payment.failed"}`))
	req.Header.Set("X-Razorpay-Signature", "good-signature")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("expected ok status despite dispatch failure, got %q", resp["status"])
	}
	if loggedEvent != "webhook.razorpay.dispatch_failed" {
		t.Fatalf("expected dispatch failure logged, got %q", loggedEvent)
	}
}
