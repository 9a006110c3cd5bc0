package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/xsnapster/api/internal/domain"
	"github.com/xsnapster/api/internal/payments"
	"github.com/xsnapster/api/internal/repositories"
)

const (
	paymentEventCaptured = "payment.captured"
	paymentEventFailed   = "payment.failed"
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotFound indicates no payment carries the given gateway order id.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentSignatureInvalid indicates the client-supplied gateway signature
	// failed verification. Terminal for the request; the payment is untouched.
	ErrPaymentSignatureInvalid = errors.New("payment: invalid signature")
	// ErrPaymentUnauthorized indicates the payment's order belongs to another user.
	ErrPaymentUnauthorized = errors.New("payment: unauthorized")
)

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Payments repositories.PaymentRepository
	Orders   repositories.OrderRepository
	Gateway  payments.Gateway
	Clock    func() time.Time
	Events   PaymentEventPublisher
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	payments repositories.PaymentRepository
	orders   repositories.OrderRepository
	gateway  payments.Gateway
	clock    func() time.Time
	events   PaymentEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		payments: deps.Payments,
		orders:   deps.Orders,
		gateway:  deps.Gateway,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: deps.Events,
		logger: logger,
	}, nil
}

// FinalizeSuccess settles the payment carrying gatewayOrderID as SUCCESS and
// confirms its order. Unknown gateway order ids return nil without error so
// webhook retries for foreign events stay quiet; a payment already SUCCESS is
// returned unchanged. The captured event fires only when this call performed
// the transition.
func (s *paymentService) FinalizeSuccess(ctx context.Context, gatewayOrderID string, gatewayPaymentID string, raw map[string]any) (*domain.Payment, error) {
	return s.finalize(ctx, gatewayOrderID, gatewayPaymentID, nil, raw, domain.PaymentStatusSuccess)
}

// FinalizeFailure mirrors FinalizeSuccess for the FAILED status. A payment
// that already reached SUCCESS is never downgraded.
func (s *paymentService) FinalizeFailure(ctx context.Context, gatewayOrderID string, gatewayPaymentID string, raw map[string]any) (*domain.Payment, error) {
	return s.finalize(ctx, gatewayOrderID, gatewayPaymentID, nil, raw, domain.PaymentStatusFailed)
}

func (s *paymentService) finalize(ctx context.Context, gatewayOrderID, gatewayPaymentID string, signature *string, raw map[string]any, status domain.PaymentStatus) (*domain.Payment, error) {
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	if gatewayOrderID == "" {
		return nil, fmt.Errorf("%w: gateway order id is required", ErrPaymentInvalidInput)
	}

	payment, err := s.payments.FindByGatewayOrderID(ctx, gatewayOrderID, domain.PaymentMethodRazorpay)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			s.logger(ctx, "payment.finalize.unknown_gateway_order", map[string]any{
				"gatewayOrder": gatewayOrderID,
			})
			return nil, nil
		}
		return nil, err
	}

	if payment.Status == domain.PaymentStatusSuccess {
		return &payment, nil
	}

	result, err := s.payments.Finalize(ctx, repositories.PaymentFinalizeRequest{
		OrderID:          payment.OrderID,
		Status:           status,
		GatewayPaymentID: gatewayPaymentID,
		Signature:        signature,
		RawResponse:      raw,
		ConfirmOrder:     status == domain.PaymentStatusSuccess,
		Now:              s.clock(),
	})
	if err != nil {
		return nil, err
	}

	if result.Transitioned {
		eventType := paymentEventCaptured
		if status == domain.PaymentStatusFailed {
			eventType = paymentEventFailed
		}
		s.publishEvent(ctx, PaymentEvent{
			Type:             eventType,
			OrderID:          result.Payment.OrderID,
			GatewayOrderID:   gatewayOrderID,
			GatewayPaymentID: strings.TrimSpace(gatewayPaymentID),
			Amount:           result.Payment.Amount,
			OccurredAt:       s.clock(),
		})
	}

	return &result.Payment, nil
}

// VerifyPayment handles the client-side confirmation call. The signature is
// checked before anything is read, then the payment's order is ownership
// checked against the caller, and only then is the payment finalized.
func (s *paymentService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (domain.Payment, error) {
	gatewayOrderID := strings.TrimSpace(cmd.GatewayOrderID)
	gatewayPaymentID := strings.TrimSpace(cmd.GatewayPaymentID)
	signature := strings.TrimSpace(cmd.Signature)
	userID := strings.TrimSpace(cmd.UserID)

	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return domain.Payment{}, fmt.Errorf("%w: gateway order id, payment id and signature are required", ErrPaymentInvalidInput)
	}
	if userID == "" {
		return domain.Payment{}, fmt.Errorf("%w: user id is required", ErrPaymentInvalidInput)
	}

	if !s.gateway.VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature) {
		s.logger(ctx, "payment.verify.signature_mismatch", map[string]any{
			"gatewayOrder": gatewayOrderID,
		})
		return domain.Payment{}, ErrPaymentSignatureInvalid
	}

	payment, err := s.payments.FindByGatewayOrderID(ctx, gatewayOrderID, domain.PaymentMethodRazorpay)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Payment{}, fmt.Errorf("%w: gateway order %s", ErrPaymentNotFound, gatewayOrderID)
		}
		return domain.Payment{}, err
	}

	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return domain.Payment{}, err
	}
	if order.UserID == nil || *order.UserID != userID {
		return domain.Payment{}, fmt.Errorf("%w: order %s", ErrPaymentUnauthorized, payment.OrderID)
	}

	finalized, err := s.finalize(ctx, gatewayOrderID, gatewayPaymentID, &signature, nil, domain.PaymentStatusSuccess)
	if err != nil {
		return domain.Payment{}, err
	}
	if finalized == nil {
		return domain.Payment{}, fmt.Errorf("%w: gateway order %s", ErrPaymentNotFound, gatewayOrderID)
	}
	return *finalized, nil
}

// HandleGatewayEvent dispatches a verified webhook body. Unknown event types
// and unknown gateway order ids are acknowledged silently; the gateway must
// never be provoked into retry storms by domain-level mismatches.
func (s *paymentService) HandleGatewayEvent(ctx context.Context, body []byte) error {
	event, err := payments.ParseWebhookEvent(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	}

	switch event.Type {
	case payments.EventPaymentCaptured:
		_, err := s.FinalizeSuccess(ctx, event.GatewayOrderID, event.GatewayPaymentID, event.Raw)
		return err
	case payments.EventPaymentFailed:
		_, err := s.FinalizeFailure(ctx, event.GatewayOrderID, event.GatewayPaymentID, event.Raw)
		return err
	default:
		s.logger(ctx, "payment.webhook.ignored", map[string]any{"event": event.Type})
		return nil
	}
}

func (s *paymentService) publishEvent(ctx context.Context, event PaymentEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishPaymentEvent(ctx, event); err != nil {
		s.logger(ctx, "payment.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}
