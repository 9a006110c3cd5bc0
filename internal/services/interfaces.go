package services

import (
	"context"
	"time"

	domain "github.com/xsnapster/api/internal/domain"
)

// PricingEngine computes per-dimension display prices for catalog products
// and the effective unit price used by cart validation.
type PricingEngine interface {
	PriceForDimensions(ctx context.Context, labels []string, basePrice int64, discountedPrice *int64) (map[string]domain.DimensionPrice, error)
	UnitPrice(ctx context.Context, product domain.Product, dimension string) (int64, error)
}

// CartService validates client cart payloads against the catalog and prices
// them server-side.
type CartService interface {
	ValidateAndPrice(ctx context.Context, items []domain.CartItemInput) (domain.PricedCart, error)
}

// OrderService assembles orders from validated carts and manages their
// lifecycle.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderResult, error)
	GetOrder(ctx context.Context, orderID string, userID string) (domain.Order, error)
	GetOrderWithPayment(ctx context.Context, orderID string, userID string) (domain.Order, *domain.Payment, error)
	ListOrders(ctx context.Context, userID string, query OrderListQuery) (domain.CursorPage[domain.Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (domain.Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error)
}

// PaymentService reconciles gateway payments into their terminal status. It
// is the only component that writes PaymentStatusSuccess.
type PaymentService interface {
	FinalizeSuccess(ctx context.Context, gatewayOrderID string, gatewayPaymentID string, raw map[string]any) (*domain.Payment, error)
	FinalizeFailure(ctx context.Context, gatewayOrderID string, gatewayPaymentID string, raw map[string]any) (*domain.Payment, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (domain.Payment, error)
	HandleGatewayEvent(ctx context.Context, body []byte) error
}

// SystemService exposes aggregate health reports for the health endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}

// MultiplierSource looks up dimension multipliers. The catalog repository is
// the canonical implementation, optionally fronted by a cache.
type MultiplierSource interface {
	GetMultipliers(ctx context.Context, labels []string) (map[string]float64, error)
}

// CreateOrderCommand carries everything needed to place an order. Items are
// client input and are re-validated and re-priced against the catalog.
type CreateOrderCommand struct {
	UserID         string
	Items          []domain.CartItemInput
	AddressID      string
	PaymentMethod  domain.PaymentMethod
	IdempotencyKey string
}

// OrderResult is the outcome of order creation. GatewayOrderID is set only
// for gateway payments and is what the client hands to the checkout widget.
type OrderResult struct {
	Order          domain.Order
	Payment        domain.Payment
	GatewayOrderID *string
}

// OrderListQuery narrows and pages order listings.
type OrderListQuery struct {
	Status    *domain.OrderStatus
	PageSize  int
	PageToken string
}

// OrderStatusTransitionCommand moves an order along its lifecycle. UserID,
// when set, restricts the transition to orders owned by that user.
type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus domain.OrderStatus
	UserID       string
	ActorID      string
}

// CancelOrderCommand cancels an order that has not shipped yet.
type CancelOrderCommand struct {
	OrderID string
	UserID  string
	Reason  string
}

// VerifyPaymentCommand is the client-side confirmation of a gateway checkout.
// The signature covers "<gateway order id>|<gateway payment id>".
type VerifyPaymentCommand struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	UserID           string
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// PaymentEventPublisher publishes payment domain events for downstream consumers.
type PaymentEventPublisher interface {
	PublishPaymentEvent(ctx context.Context, event PaymentEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	UserID         string
	PreviousStatus domain.OrderStatus
	CurrentStatus  domain.OrderStatus
	Amount         int64
	OccurredAt     time.Time
	Metadata       map[string]any
}

// PaymentEvent captures metadata for emitted payment domain events.
type PaymentEvent struct {
	Type             string
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Amount           int64
	OccurredAt       time.Time
}
