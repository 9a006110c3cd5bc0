package domain

import (
	"time"
)

// Product is a catalog item. Identity is immutable; pricing and the
// active flag are owned by catalog admin workflows.
type Product struct {
	ID              string
	Name            string
	Description     string
	BasePrice       int64
	DiscountedPrice *int64
	Dimensions      []string
	CategoryID      string
	ImagePath       string
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasDimension reports whether label is one of the product's declared
// dimension variants.
func (p Product) HasDimension(label string) bool {
	for _, d := range p.Dimensions {
		if d == label {
			return true
		}
	}
	return false
}

// UnitPrice returns the discounted price when one is set, else the base price.
func (p Product) UnitPrice() int64 {
	if p.DiscountedPrice != nil {
		return *p.DiscountedPrice
	}
	return p.BasePrice
}

// DimensionPricing maps a dimension label to a price multiplier. Global,
// shared across all products; labels without an entry use multiplier 1.0.
type DimensionPricing struct {
	Label      string
	Multiplier float64
	UpdatedAt  time.Time
}

// DimensionPrice is the priced projection of one dimension label.
type DimensionPrice struct {
	Price           int64
	DiscountedPrice *int64
	Multiplier      float64
}

// Address represents a delivery address owned by a user.
type Address struct {
	ID         string
	UserID     string
	Name       string
	Phone      string
	Line1      string
	Line2      *string
	City       string
	State      string
	PostalCode string
	Type       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AddressSnapshot is the by-value copy of a delivery address stored on an
// order at creation time. Later edits to the Address entity never alter it.
type AddressSnapshot struct {
	Name       string
	Phone      string
	Line1      string
	Line2      *string
	City       string
	State      string
	PostalCode string
	Type       string
}

// Snapshot copies the address fields into an immutable order-bound value.
func (a Address) Snapshot() AddressSnapshot {
	var line2 *string
	if a.Line2 != nil {
		v := *a.Line2
		line2 = &v
	}
	return AddressSnapshot{
		Name:       a.Name,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Type:       a.Type,
	}
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusCreated indicates the order is persisted but not yet paid.
	OrderStatusCreated OrderStatus = "created"
	// OrderStatusConfirmed indicates payment succeeded or a cash order was accepted.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped indicates the order has been handed to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusFulfilled indicates the order has been delivered.
	OrderStatusFulfilled OrderStatus = "fulfilled"
	// OrderStatusCancelled indicates the order was cancelled before fulfilment.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is one delivery transaction. The user reference is nullable so the
// record survives user deletion; the address is snapshotted by value.
type Order struct {
	ID             string
	UserID         *string
	Address        AddressSnapshot
	Items          []OrderItem
	TotalQuantity  int
	Amount         int64
	Status         OrderStatus
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderItem is one line of an order. The unit price is snapshotted at
// assembly time and never mutated afterwards.
type OrderItem struct {
	ProductID string
	Quantity  int
	Dimension string
	UnitPrice int64
}

// LineTotal returns the item's contribution to the order amount.
func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// PaymentMethod is the closed set of supported payment methods.
type PaymentMethod string

const (
	// PaymentMethodCOD is cash on delivery, settled without an external gateway.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodRazorpay is an online payment through the Razorpay gateway.
	PaymentMethodRazorpay PaymentMethod = "razorpay"
)

// PaymentStatus enumerates payment lifecycle states. Success and failed are
// terminal; success is never overwritten.
type PaymentStatus string

const (
	// PaymentStatusCreated indicates the payment awaits gateway confirmation.
	PaymentStatusCreated PaymentStatus = "created"
	// PaymentStatusSuccess indicates the payment was captured.
	PaymentStatusSuccess PaymentStatus = "success"
	// PaymentStatusFailed indicates the gateway reported a terminal failure.
	PaymentStatusFailed PaymentStatus = "failed"
)

// Payment is the single payment record for an order (1:1, keyed by order id).
type Payment struct {
	ID             string
	OrderID        string
	Method         PaymentMethod
	GatewayOrderID *string
	TransactionID  *string
	Signature      *string
	Amount         int64
	Status         PaymentStatus
	RawResponse    map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CartItemInput is one requested cart line as submitted by a client. Prices
// are never read from the client; they are recomputed from the catalog.
type CartItemInput struct {
	ProductID string
	Quantity  int
	Dimension string
}

// PricedItem is a catalog-validated cart line with the server-computed
// unit price.
type PricedItem struct {
	ProductID string
	Quantity  int
	Dimension string
	UnitPrice int64
}

// PricedCart is the output of cart validation: ordered priced lines plus
// the rolled-up totals.
type PricedCart struct {
	Items         []PricedItem
	Amount        int64
	TotalQuantity int
}

// CursorPage carries one page of results and the opaque token for the next page.
// An empty NextPageToken means the listing is exhausted.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
