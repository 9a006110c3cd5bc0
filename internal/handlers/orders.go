package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/xsnapster/api/internal/domain"
	"github.com/xsnapster/api/internal/platform/auth"
	"github.com/xsnapster/api/internal/platform/httpx"
	"github.com/xsnapster/api/internal/platform/pagination"
	"github.com/xsnapster/api/internal/services"
)

const (
	defaultOrderPageSize    = 20
	maxOrderPageSize        = 100
	maxOrderCreateBodySize  = 16 * 1024
	maxOrderCancelBodySize  = 4 * 1024
	idempotencyKeyHeader    = "Idempotency-Key"
	maxIdempotencyKeyLength = 128
)

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusCreated:   {},
	domain.OrderStatusConfirmed: {},
	domain.OrderStatusShipped:   {},
	domain.OrderStatusFulfilled: {},
	domain.OrderStatusCancelled: {},
}

type createOrderRequest struct {
	Items         []createOrderItem `json:"items"`
	AddressID     string            `json:"address_id"`
	PaymentMethod string            `json:"payment_method"`
}

type createOrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Dimension string `json:"dimension"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type transitionOrderRequest struct {
	Status string `json:"status"`
}

// OrderHandlers exposes order endpoints for authenticated users.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	limiter     rateLimiter
	idempotency func(http.Handler) http.Handler
}

// OrderHandlersOption customises the order handlers before construction.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderRateLimiter enables per-user rate limiting on order creation.
func WithOrderRateLimiter(limiter rateLimiter) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.limiter = limiter
	}
}

// WithOrderRateLimit enables the built-in in-memory limiter with the given
// per-user quota. A non-positive limit or window disables limiting.
func WithOrderRateLimit(limit int, window time.Duration) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.limiter = newFixedWindowLimiter(limit, window, time.Now)
	}
}

// WithOrderIdempotency wraps order creation with response-replay idempotency.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	if h.idempotency != nil {
		r.With(h.idempotency).Post("/", h.createOrder)
	} else {
		r.Post("/", h.createOrder)
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:transition", h.transitionOrder)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	if h.limiter != nil && !h.limiter.Allow(identity.UserID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order requests, retry later", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxOrderCreateBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	if len(req.Items) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "items must not be empty", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.AddressID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "address_id is required", http.StatusBadRequest))
		return
	}

	method, ok := parsePaymentMethod(req.PaymentMethod)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payment_method must be cod or razorpay", http.StatusBadRequest))
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if len(idempotencyKey) > maxIdempotencyKeyLength {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Idempotency-Key header is too long", http.StatusBadRequest))
		return
	}

	items := make([]domain.CartItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.CartItemInput{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
			Dimension: strings.TrimSpace(item.Dimension),
		})
	}

	result, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		UserID:         identity.UserID,
		Items:          items,
		AddressID:      strings.TrimSpace(req.AddressID),
		PaymentMethod:  method,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := createOrderResponse{
		Order:          buildOrderPayload(result.Order),
		Payment:        buildPaymentPayload(result.Payment),
		GatewayOrderID: cloneStringPointer(result.GatewayOrderID),
	}
	writeJSONResponse(w, http.StatusCreated, payload)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()

	var statusFilter *domain.OrderStatus
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, ok := parseOrderStatus(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
			return
		}
		statusFilter = &status
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, identity.UserID, services.OrderListQuery{
		Status:    statusFilter,
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, payment, err := h.orders.GetOrderWithPayment(ctx, orderID, identity.UserID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	resp := orderResponse{Order: buildOrderPayload(order)}
	if payment != nil {
		p := buildPaymentPayload(*payment)
		resp.Payment = &p
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderCancelBodySize)
	switch {
	case errors.Is(err, errEmptyBody):
		// cancellation reason is optional
	case err != nil:
		writeBodyError(ctx, w, err)
		return
	default:
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	}

	cancelled, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		UserID:  identity.UserID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(cancelled)})
}

func (h *OrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !identity.HasRole(auth.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "admin role required", http.StatusForbidden))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderCancelBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req transitionOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	target, ok := parseOrderStatus(req.Status)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      orderID,
		TargetStatus: target,
		ActorID:      identity.UserID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type createOrderResponse struct {
	Order          orderPayload   `json:"order"`
	Payment        paymentPayload `json:"payment"`
	GatewayOrderID *string        `json:"gateway_order_id,omitempty"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	TotalQuantity int    `json:"total_quantity"`
	Amount        int64  `json:"amount"`
	CreatedAt     string `json:"created_at"`
}

type orderResponse struct {
	Order   orderPayload    `json:"order"`
	Payment *paymentPayload `json:"payment,omitempty"`
}

type orderPayload struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id,omitempty"`
	Status        string             `json:"status"`
	Items         []orderItemPayload `json:"items"`
	TotalQuantity int                `json:"total_quantity"`
	Amount        int64              `json:"amount"`
	Address       addressPayload     `json:"address"`
	CreatedAt     string             `json:"created_at"`
	UpdatedAt     string             `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Dimension string `json:"dimension,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Total     int64  `json:"total"`
}

type addressPayload struct {
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Type       string  `json:"type,omitempty"`
}

type paymentPayload struct {
	ID             string  `json:"id"`
	OrderID        string  `json:"order_id"`
	Method         string  `json:"method"`
	Status         string  `json:"status"`
	Amount         int64   `json:"amount"`
	GatewayOrderID *string `json:"gateway_order_id,omitempty"`
	TransactionID  *string `json:"transaction_id,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at,omitempty"`
}

func buildOrderSummary(order domain.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            order.ID,
		Status:        string(order.Status),
		TotalQuantity: order.TotalQuantity,
		Amount:        order.Amount,
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Dimension: item.Dimension,
			UnitPrice: item.UnitPrice,
			Total:     item.LineTotal(),
		})
	}

	payload := orderPayload{
		ID:            order.ID,
		Status:        string(order.Status),
		Items:         items,
		TotalQuantity: order.TotalQuantity,
		Amount:        order.Amount,
		Address:       buildAddressPayload(order.Address),
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
	if order.UserID != nil {
		payload.UserID = *order.UserID
	}
	return payload
}

func buildAddressPayload(address domain.AddressSnapshot) addressPayload {
	return addressPayload{
		Name:       address.Name,
		Phone:      address.Phone,
		Line1:      address.Line1,
		Line2:      cloneStringPointer(address.Line2),
		City:       address.City,
		State:      address.State,
		PostalCode: address.PostalCode,
		Type:       address.Type,
	}
}

func buildPaymentPayload(payment domain.Payment) paymentPayload {
	return paymentPayload{
		ID:             payment.ID,
		OrderID:        payment.OrderID,
		Method:         string(payment.Method),
		Status:         string(payment.Status),
		Amount:         payment.Amount,
		GatewayOrderID: cloneStringPointer(payment.GatewayOrderID),
		TransactionID:  cloneStringPointer(payment.TransactionID),
		CreatedAt:      formatTime(payment.CreatedAt),
		UpdatedAt:      formatTime(payment.UpdatedAt),
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderPaymentInitiation):
		httpx.WriteError(ctx, w, httpx.NewError("payment_initiation_failed", "payment could not be initiated, retry later", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds the allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
	}
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func parseOrderStatus(raw string) (domain.OrderStatus, bool) {
	status := domain.OrderStatus(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := validOrderStatuses[status]; !ok {
		return "", false
	}
	return status, true
}

func parsePaymentMethod(raw string) (domain.PaymentMethod, bool) {
	switch domain.PaymentMethod(strings.TrimSpace(strings.ToLower(raw))) {
	case domain.PaymentMethodCOD:
		return domain.PaymentMethodCOD, true
	case domain.PaymentMethodRazorpay:
		return domain.PaymentMethodRazorpay, true
	default:
		return "", false
	}
}
