package repositories

import (
	"context"
	"time"

	domain "github.com/xsnapster/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Catalog() CatalogRepository
	Addresses() AddressRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CatalogRepository reads products and dimension multipliers. Catalog writes happen
// through admin tooling outside this service.
type CatalogRepository interface {
	GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	GetMultipliers(ctx context.Context, labels []string) (map[string]float64, error)
}

// AddressRepository reads saved delivery addresses scoped to their owner.
type AddressRepository interface {
	Get(ctx context.Context, addressID string, userID string) (domain.Address, error)
}

// OrderRepository persists order aggregates. Creation writes the order, its payment
// row and the per-user idempotency reservation in a single transaction.
type OrderRepository interface {
	Create(ctx context.Context, req OrderCreateRequest) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	UpdateStatus(ctx context.Context, req OrderStatusUpdateRequest) (domain.Order, error)
}

// PaymentRepository persists payment rows keyed one-to-one by order id. Finalize is
// the only write path to terminal payment statuses and runs as a transaction that
// re-checks the current status before writing.
type PaymentRepository interface {
	FindByOrderID(ctx context.Context, orderID string) (domain.Payment, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string, method domain.PaymentMethod) (domain.Payment, error)
	Finalize(ctx context.Context, req PaymentFinalizeRequest) (PaymentFinalizeResult, error)
}

// HealthRepository aggregates datastore dependency probes for health endpoints.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Request/result DTOs --------------------------------------------------------

// OrderCreateRequest bundles the documents written when an order is placed.
// IdempotencyFingerprint, when set, reserves a deterministic document so a
// retried request with the same key surfaces as a conflict instead of a
// second order.
type OrderCreateRequest struct {
	Order                  domain.Order
	Payment                domain.Payment
	IdempotencyFingerprint string
	Now                    time.Time
}

// OrderStatusUpdateRequest moves an order between statuses. The write only
// happens while the stored status is in From; anything else is a conflict.
type OrderStatusUpdateRequest struct {
	OrderID string
	From    []domain.OrderStatus
	To      domain.OrderStatus
	Now     time.Time
}

// PaymentFinalizeRequest settles a payment into a terminal status. ConfirmOrder
// cascades the owning order to CONFIRMED in the same transaction.
type PaymentFinalizeRequest struct {
	OrderID          string
	Status           domain.PaymentStatus
	GatewayPaymentID string
	Signature        *string
	RawResponse      map[string]any
	ConfirmOrder     bool
	Now              time.Time
}

// PaymentFinalizeResult reports the settled payment and whether this call
// performed the transition. Transitioned is false when the payment had
// already reached a terminal status before the transaction ran.
type PaymentFinalizeResult struct {
	Payment      domain.Payment
	Order        domain.Order
	Transitioned bool
}

// OrderListFilter narrows and pages user order listings, newest first.
type OrderListFilter struct {
	Status    *domain.OrderStatus
	PageSize  int
	PageToken string
}
