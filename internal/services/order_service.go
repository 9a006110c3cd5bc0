package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/xsnapster/api/internal/domain"
	"github.com/xsnapster/api/internal/payments"
	"github.com/xsnapster/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix = "ord_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order or a referenced entity could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates duplicate idempotency keys or concurrent updates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderPaymentInitiation indicates the gateway rejected or timed out during
	// payment initiation. Nothing was persisted; the request can be retried.
	ErrOrderPaymentInitiation = errors.New("order: payment initiation failed")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusCreated:   {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:   {domain.OrderStatusFulfilled},
}

var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusCreated,
	domain.OrderStatusConfirmed,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Payments    repositories.PaymentRepository
	Addresses   repositories.AddressRepository
	Cart        CartService
	Gateway     payments.Gateway
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	payments  repositories.PaymentRepository
	addresses repositories.AddressRepository
	cart      CartService
	gateway   payments.Gateway
	currency  string
	clock     func() time.Time
	newID     func() string
	events    OrderEventPublisher
	logger    func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("order service: address repository is required")
	}
	if deps.Cart == nil {
		return nil, errors.New("order service: cart service is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:    deps.Orders,
		payments:  deps.Payments,
		addresses: deps.Addresses,
		cart:      deps.Cart,
		gateway:   deps.Gateway,
		currency:  currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return OrderResult{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	addressID := strings.TrimSpace(cmd.AddressID)
	if addressID == "" {
		return OrderResult{}, fmt.Errorf("%w: address id is required", ErrOrderInvalidInput)
	}

	switch cmd.PaymentMethod {
	case domain.PaymentMethodCOD, domain.PaymentMethodRazorpay:
	default:
		return OrderResult{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}

	priced, err := s.cart.ValidateAndPrice(ctx, cmd.Items)
	if err != nil {
		if errors.Is(err, ErrCartInvalidInput) {
			return OrderResult{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		return OrderResult{}, err
	}

	address, err := s.addresses.Get(ctx, addressID, userID)
	if err != nil {
		return OrderResult{}, s.mapRepositoryError(err)
	}

	now := s.now()
	order := domain.Order{
		ID:             s.nextOrderID(),
		UserID:         &userID,
		Address:        address.Snapshot(),
		Items:          buildOrderItems(priced.Items),
		TotalQuantity:  priced.TotalQuantity,
		Amount:         priced.Amount,
		Status:         domain.OrderStatusCreated,
		IdempotencyKey: strings.TrimSpace(cmd.IdempotencyKey),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	payment, gatewayOrderID, err := s.initiatePayment(ctx, &order, cmd.PaymentMethod, now)
	if err != nil {
		return OrderResult{}, err
	}

	req := repositories.OrderCreateRequest{
		Order:   order,
		Payment: payment,
		Now:     now,
	}
	if order.IdempotencyKey != "" {
		req.IdempotencyFingerprint = idempotencyFingerprint(userID, order.IdempotencyKey)
	}
	if err := s.orders.Create(ctx, req); err != nil {
		return OrderResult{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		UserID:        userID,
		CurrentStatus: order.Status,
		Amount:        order.Amount,
		OccurredAt:    now,
		Metadata: map[string]any{
			"paymentMethod": string(cmd.PaymentMethod),
			"totalQuantity": order.TotalQuantity,
		},
	})

	return OrderResult{
		Order:          order,
		Payment:        payment,
		GatewayOrderID: gatewayOrderID,
	}, nil
}

// initiatePayment builds the payment row for the chosen method, calling out
// to the gateway for online payments. Cash orders settle immediately and
// confirm the order; gateway orders stay CREATED until reconciliation.
func (s *orderService) initiatePayment(ctx context.Context, order *domain.Order, method domain.PaymentMethod, now time.Time) (domain.Payment, *string, error) {
	payment := domain.Payment{
		ID:        order.ID,
		OrderID:   order.ID,
		Method:    method,
		Amount:    order.Amount,
		Status:    domain.PaymentStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch method {
	case domain.PaymentMethodCOD:
		payment.Status = domain.PaymentStatusSuccess
		order.Status = domain.OrderStatusConfirmed
		return payment, nil, nil

	case domain.PaymentMethodRazorpay:
		if s.gateway == nil {
			return domain.Payment{}, nil, errors.New("order service: payment gateway not configured")
		}
		gatewayOrder, err := s.gateway.CreateOrder(ctx, payments.CreateOrderRequest{
			Amount:   order.Amount * 100,
			Currency: s.currency,
			Receipt:  order.ID,
			Notes:    map[string]string{"orderId": order.ID},
		})
		if err != nil {
			s.logger(ctx, "order.payment.initiation.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
			return domain.Payment{}, nil, fmt.Errorf("%w: %v", ErrOrderPaymentInitiation, err)
		}
		gid := gatewayOrder.ID
		payment.GatewayOrderID = &gid
		payment.RawResponse = gatewayOrder.Raw
		return payment, &gid, nil

	default:
		return domain.Payment{}, nil, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, method)
	}
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, userID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if !orderOwnedBy(order, userID) {
		return domain.Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

// GetOrderWithPayment loads an order together with its payment row. The
// payment is keyed by the order id, so a missing row only means the order
// predates payment tracking and is not an error.
func (s *orderService) GetOrderWithPayment(ctx context.Context, orderID string, userID string) (domain.Order, *domain.Payment, error) {
	order, err := s.GetOrder(ctx, orderID, userID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	if s.payments == nil {
		return order, nil, nil
	}

	payment, err := s.payments.FindByOrderID(ctx, order.ID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return order, nil, nil
		}
		return domain.Order{}, nil, s.mapRepositoryError(err)
	}
	return order, &payment, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID string, query OrderListQuery) (domain.CursorPage[domain.Order], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	page, err := s.orders.ListByUser(ctx, userID, repositories.OrderListFilter{
		Status:    query.Status,
		PageSize:  query.PageSize,
		PageToken: query.PageToken,
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.TargetStatus == "" {
		return domain.Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if cmd.UserID != "" && !orderOwnedBy(order, cmd.UserID) {
		return domain.Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	if order.Status == cmd.TargetStatus {
		return order, nil
	}
	if !canTransition(order.Status, cmd.TargetStatus) {
		return domain.Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, order.Status, cmd.TargetStatus)
	}

	now := s.now()
	prev := order.Status
	updated, err := s.orders.UpdateStatus(ctx, repositories.OrderStatusUpdateRequest{
		OrderID: orderID,
		From:    []domain.OrderStatus{order.Status},
		To:      cmd.TargetStatus,
		Now:     now,
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		UserID:         optionalValue(updated.UserID),
		PreviousStatus: prev,
		CurrentStatus:  updated.Status,
		Amount:         updated.Amount,
		OccurredAt:     now,
	})

	return updated, nil
}

func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if cmd.UserID != "" && !orderOwnedBy(order, cmd.UserID) {
		return domain.Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	if !slices.Contains(cancellableStatuses, order.Status) {
		return domain.Order{}, fmt.Errorf("%w: order status %q cannot be cancelled", ErrOrderInvalidState, order.Status)
	}

	now := s.now()
	prev := order.Status
	updated, err := s.orders.UpdateStatus(ctx, repositories.OrderStatusUpdateRequest{
		OrderID: orderID,
		From:    cancellableStatuses,
		To:      domain.OrderStatusCancelled,
		Now:     now,
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	event := OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		UserID:         optionalValue(updated.UserID),
		PreviousStatus: prev,
		CurrentStatus:  updated.Status,
		Amount:         updated.Amount,
		OccurredAt:     now,
	}
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		event.Metadata = map[string]any{"reason": reason}
	}
	s.publishEvent(ctx, event)

	return updated, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func buildOrderItems(items []domain.PricedItem) []domain.OrderItem {
	lines := make([]domain.OrderItem, len(items))
	for i, item := range items {
		lines[i] = domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Dimension: item.Dimension,
			UnitPrice: item.UnitPrice,
		}
	}
	return lines
}

// idempotencyFingerprint derives the deterministic reservation document id
// for a user's idempotency key. The key itself is hashed so arbitrary client
// input never becomes a raw document id.
func idempotencyFingerprint(userID string, key string) string {
	sum := sha256.Sum256([]byte(key))
	return userID + "_" + hex.EncodeToString(sum[:])
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

func orderOwnedBy(order domain.Order, userID string) bool {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return true
	}
	return order.UserID != nil && *order.UserID == userID
}

func optionalValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
