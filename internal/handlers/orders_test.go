package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/xsnapster/api/internal/domain"
	"github.com/xsnapster/api/internal/platform/auth"
	"github.com/xsnapster/api/internal/platform/pagination"
	"github.com/xsnapster/api/internal/services"
)

type stubOrderService struct {
	createFn         func(context.Context, services.CreateOrderCommand) (services.OrderResult, error)
	getFn            func(context.Context, string, string) (domain.Order, error)
	getWithPaymentFn func(context.Context, string, string) (domain.Order, *domain.Payment, error)
	listFn           func(context.Context, string, services.OrderListQuery) (domain.CursorPage[domain.Order], error)
	transitionFn     func(context.Context, services.OrderStatusTransitionCommand) (domain.Order, error)
	cancelFn         func(context.Context, services.CancelOrderCommand) (domain.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.OrderResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.OrderResult{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, userID string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, userID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrderWithPayment(ctx context.Context, orderID string, userID string) (domain.Order, *domain.Payment, error) {
	if s.getWithPaymentFn != nil {
		return s.getWithPaymentFn(ctx, orderID, userID)
	}
	order, err := s.GetOrder(ctx, orderID, userID)
	return order, nil, err
}

func (s *stubOrderService) ListOrders(ctx context.Context, userID string, query services.OrderListQuery) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, query)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

var _ services.OrderService = (*stubOrderService)(nil)

func newOrderRouter(handler *OrderHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)
	return router
}

func authedRequest(req *http.Request, identity *auth.Identity) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func TestOrderHandlersCreateOrderSuccess(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	userID := "user-1"
	gatewayOrderID := "order_rzp123"

	var captured services.CreateOrderCommand
	service := &stubOrderService{
		createFn: func(ctx context.Context, cmd services.CreateOrderCommand) (services.OrderResult, error) {
			captured = cmd
			order := domain.Order{
				ID:     "ord_123",
				UserID: &userID,
				Items: []domain.OrderItem{
					{ProductID: "prod-1", Quantity: 2, Dimension: "12x18", UnitPrice: 249},
				},
				TotalQuantity: 2,
				Amount:        498,
				Status:        domain.OrderStatusCreated,
				Address:       domain.AddressSnapshot{Name: "Asha", Phone: "9999999999", Line1: "12 MG Road", City: "Pune", State: "MH", PostalCode: "411001"},
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			payment := domain.Payment{
				ID:             "ord_123",
				OrderID:        "ord_123",
				Method:         domain.PaymentMethodRazorpay,
				GatewayOrderID: &gatewayOrderID,
				Amount:         498,
				Status:         domain.PaymentStatusCreated,
				CreatedAt:      now,
			}
			return services.OrderResult{Order: order, Payment: payment, GatewayOrderID: &gatewayOrderID}, nil
		},
	}

	router := newOrderRouter(NewOrderHandlers(nil, service))

	body := `{"items":[{"product_id":"prod-1","quantity":2,"dimension":"12x18"}],"address_id":"addr-1","payment_method":"razorpay"}`
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
	req.Header.Set("Idempotency-Key", "idem-42")
	req = authedRequest(req, &auth.Identity{UserID: userID})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	if captured.UserID != userID {
		t.Fatalf("expected user %s, got %s", userID, captured.UserID)
	}
	if captured.AddressID != "addr-1" {
		t.Fatalf("expected address addr-1, got %s", captured.AddressID)
	}
	if captured.PaymentMethod != domain.PaymentMethodRazorpay {
		t.Fatalf("expected razorpay method, got %s", captured.PaymentMethod)
	}
	if captured.IdempotencyKey != "idem-42" {
		t.Fatalf("expected idempotency key idem-42, got %s", captured.IdempotencyKey)
	}
	if len(captured.Items) != 1 || captured.Items[0].ProductID != "prod-1" || captured.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %#v", captured.Items)
	}

	var resp createOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.ID != "ord_123" || resp.Order.Amount != 498 {
		t.Fatalf("unexpected order payload: %#v", resp.Order)
	}
	if resp.Payment.Status != string(domain.PaymentStatusCreated) {
		t.Fatalf("expected payment status created, got %s", resp.Payment.Status)
	}
	if resp.GatewayOrderID == nil || *resp.GatewayOrderID != gatewayOrderID {
		t.Fatalf("expected gateway order id %s, got %#v", gatewayOrderID, resp.GatewayOrderID)
	}
	if len(resp.Order.Items) != 1 || resp.Order.Items[0].Total != 498 {
		t.Fatalf("unexpected order items: %#v", resp.Order.Items)
	}
}

func TestOrderHandlersCreateOrderInvalidMethod(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, &stubOrderService{}))

	body := `{"items":[{"product_id":"prod-1","quantity":1}],"address_id":"addr-1","payment_method":"paypal"}`
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
	req = authedRequest(req, &auth.Identity{UserID: "user-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersCreateOrderUnauthenticated(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, &stubOrderService{}))

	body := `{"items":[{"product_id":"prod-1","quantity":1}],"address_id":"addr-1","payment_method":"cod"}`
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestOrderHandlersCreateOrderRateLimited(t *testing.T) {
	service := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.OrderResult, error) {
			return services.OrderResult{Order: domain.Order{ID: "ord_1"}}, nil
		},
	}
	limiter := newFixedWindowLimiter(1, time.Minute, nil)
	router := newOrderRouter(NewOrderHandlers(nil, service, WithOrderRateLimiter(limiter)))

	body := `{"items":[{"product_id":"prod-1","quantity":1}],"address_id":"addr-1","payment_method":"cod"}`
	for i, want := range []int{http.StatusCreated, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
		req = authedRequest(req, &auth.Identity{UserID: "user-1"})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("request %d: expected status %d, got %d", i, want, rr.Code)
		}
	}
}

func TestOrderHandlersListOrdersSuccess(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

	var capturedUser string
	var capturedQuery services.OrderListQuery
	service := &stubOrderService{
		listFn: func(ctx context.Context, userID string, query services.OrderListQuery) (domain.CursorPage[domain.Order], error) {
			capturedUser = userID
			capturedQuery = query
			return domain.CursorPage[domain.Order]{
				Items: []domain.Order{
					{ID: "ord_123", Status: domain.OrderStatusConfirmed, TotalQuantity: 2, Amount: 498, CreatedAt: now},
				},
				NextPageToken: "tok-next",
			}, nil
		},
	}

	router := newOrderRouter(NewOrderHandlers(nil, service))

	token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{"2024-03-14T00:00:00Z", "ord_100"}})
	if err != nil {
		t.Fatalf("encode token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/orders?status=confirmed&page_size=10&page_token="+token, nil)
	req = authedRequest(req, &auth.Identity{UserID: "user-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if capturedUser != "user-1" {
		t.Fatalf("expected user user-1, got %s", capturedUser)
	}
	if capturedQuery.PageSize != 10 || capturedQuery.PageToken != token {
		t.Fatalf("unexpected query: %#v", capturedQuery)
	}
	if capturedQuery.Status == nil || *capturedQuery.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed status filter, got %#v", capturedQuery.Status)
	}

	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != "ord_123" || resp.Items[0].Amount != 498 {
		t.Fatalf("unexpected items: %#v", resp.Items)
	}
	if resp.NextPageToken != "tok-next" {
		t.Fatalf("expected next page token tok-next, got %s", resp.NextPageToken)
	}
}

func TestOrderHandlersListOrdersInvalidPageSize(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, &stubOrderService{}))

	req := httptest.NewRequest(http.MethodGet, "/orders?page_size=abc", nil)
	req = authedRequest(req, &auth.Identity{UserID: "user-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrderIncludesPayment(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	userID := "user-1"
	transactionID := "pay_rzp987"

	service := &stubOrderService{
		getWithPaymentFn: func(ctx context.Context, orderID string, uid string) (domain.Order, *domain.Payment, error) {
			if orderID != "ord_123" || uid != userID {
				t.Fatalf("unexpected lookup: order=%s user=%s", orderID, uid)
			}
			order := domain.Order{
				ID:            "ord_123",
				UserID:        &userID,
				Status:        domain.OrderStatusConfirmed,
				TotalQuantity: 1,
				Amount:        249,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			payment := domain.Payment{
				ID:            "ord_123",
				OrderID:       "ord_123",
				Method:        domain.PaymentMethodRazorpay,
				Status:        domain.PaymentStatusSuccess,
				Amount:        249,
				TransactionID: &transactionID,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			return order, &payment, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service))

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_123", nil)
	req = authedRequest(req, &auth.Identity{UserID: userID})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.ID != "ord_123" {
		t.Fatalf("unexpected order payload: %#v", resp.Order)
	}
	if resp.Payment == nil {
		t.Fatal("expected payment in response")
	}
	if resp.Payment.Status != string(domain.PaymentStatusSuccess) {
		t.Fatalf("expected payment status success, got %s", resp.Payment.Status)
	}
	if resp.Payment.TransactionID == nil || *resp.Payment.TransactionID != transactionID {
		t.Fatalf("expected transaction id %s, got %#v", transactionID, resp.Payment.TransactionID)
	}
}

func TestOrderHandlersGetOrderOmitsPaymentWhenAbsent(t *testing.T) {
	userID := "user-1"
	service := &stubOrderService{
		getWithPaymentFn: func(ctx context.Context, orderID string, uid string) (domain.Order, *domain.Payment, error) {
			return domain.Order{ID: orderID, UserID: &userID, Status: domain.OrderStatusCreated}, nil, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service))

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_123", nil)
	req = authedRequest(req, &auth.Identity{UserID: userID})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if bytes.Contains(rr.Body.Bytes(), []byte(`"payment"`)) {
		t.Fatalf("expected no payment key in response: %s", rr.Body.String())
	}
}

func TestOrderHandlersGetOrderNotFound(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, orderID string, userID string) (domain.Order, error) {
			return domain.Order{}, fmt.Errorf("%w: %s", services.ErrOrderNotFound, orderID)
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service))

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_missing", nil)
	req = authedRequest(req, &auth.Identity{UserID: "user-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestOrderHandlersCancelOrderInvalidState(t *testing.T) {
	service := &stubOrderService{
		cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
			return domain.Order{}, fmt.Errorf("%w: order already shipped", services.ErrOrderInvalidState)
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service))

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123:cancel", bytes.NewBufferString(`{"reason":"changed my mind"}`))
	req = authedRequest(req, &auth.Identity{UserID: "user-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestOrderHandlersCancelOrderEmptyBodyAllowed(t *testing.T) {
	var captured services.CancelOrderCommand
	service := &stubOrderService{
		cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
			captured = cmd
			return domain.Order{ID: cmd.OrderID, Status: domain.OrderStatusCancelled}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service))

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123:cancel", nil)
	req = authedRequest(req, &auth.Identity{UserID: "user-1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_123" || captured.UserID != "user-1" || captured.Reason != "" {
		t.Fatalf("unexpected command: %#v", captured)
	}
}

func TestOrderHandlersTransitionRequiresAdmin(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, &stubOrderService{}))

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123:transition", bytes.NewBufferString(`{"status":"shipped"}`))
	req = authedRequest(req, &auth.Identity{UserID: "user-1", Roles: []string{auth.RoleUser}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestOrderHandlersTransitionSuccess(t *testing.T) {
	var captured services.OrderStatusTransitionCommand
	service := &stubOrderService{
		transitionFn: func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error) {
			captured = cmd
			return domain.Order{ID: cmd.OrderID, Status: cmd.TargetStatus}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, service))

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_123:transition", bytes.NewBufferString(`{"status":"shipped"}`))
	req = authedRequest(req, &auth.Identity{UserID: "admin-1", Roles: []string{auth.RoleAdmin}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_123" || captured.TargetStatus != domain.OrderStatusShipped || captured.ActorID != "admin-1" {
		t.Fatalf("unexpected command: %#v", captured)
	}
}
