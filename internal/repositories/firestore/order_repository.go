package firestore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/xsnapster/api/internal/domain"
	pfirestore "github.com/xsnapster/api/internal/platform/firestore"
	"github.com/xsnapster/api/internal/platform/pagination"
	"github.com/xsnapster/api/internal/repositories"
)

const (
	ordersCollection          = "orders"
	paymentsCollection        = "payments"
	idempotencyKeysCollection = "orderIdempotencyKeys"
)

// OrderRepository persists order aggregates in Firestore. Payments live in
// their own collection keyed by the order id, which enforces the one payment
// per order constraint at the storage layer.
type OrderRepository struct {
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

// Create writes the order, its payment row and, when a fingerprint is
// supplied, the idempotency reservation in one transaction. A fingerprint
// that already exists aborts the whole write with a conflict, so a retried
// request never produces a second order.
func (r *OrderRepository) Create(ctx context.Context, req repositories.OrderCreateRequest) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(req.Order.ID) == "" {
		return errors.New("order create: order id is required")
	}
	if req.Payment.OrderID != req.Order.ID {
		return errors.New("order create: payment must reference the order")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	now := req.Now.UTC()
	orderDoc := newOrderDocument(req.Order)
	paymentDoc := newPaymentDocument(req.Payment)

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if fp := strings.TrimSpace(req.IdempotencyFingerprint); fp != "" {
			idemRef := client.Collection(idempotencyKeysCollection).Doc(fp)
			if err := tx.Create(idemRef, idempotencyDocument{
				OrderRef:  req.Order.ID,
				CreatedAt: now,
			}); err != nil {
				if status.Code(err) == codes.AlreadyExists {
					return pfirestore.NewConflictError("orders.create", fmt.Sprintf("idempotency key already used for order creation by user %s", optionalValue(req.Order.UserID)))
				}
				return err
			}
		}
		if err := tx.Create(client.Collection(ordersCollection).Doc(req.Order.ID), orderDoc); err != nil {
			return err
		}
		if err := tx.Create(client.Collection(paymentsCollection).Doc(req.Order.ID), paymentDoc); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return pfirestore.WrapError("orders.create", err)
	}
	return nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order find: order id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := client.Collection(ordersCollection).Doc(id).Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findByID", err)
	}
	return decodeOrderDocument(snap)
}

// ListByUser pages a user's orders newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order list: user id is required")
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	query := client.Collection(ordersCollection).Query.Where("userRef", "==", uid)
	if filter.Status != nil {
		query = query.Where("status", "==", string(*filter.Status))
	}
	query = query.
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.listByUser", err)
		}
		createdAt, orderID, err := orderCursorValues(cursor)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.listByUser", err)
		}
		query = query.StartAfter(createdAt, orderID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.listByUser", err)
		}
		order, err := decodeOrderDocument(snap)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		orders = append(orders, order)
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.listByUser", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{
		Items:         orders,
		NextPageToken: nextToken,
	}, nil
}

// UpdateStatus moves the order to req.To while its stored status is still one
// of req.From. The transaction re-reads the order so concurrent writers
// serialize; a status outside req.From aborts with a conflict.
func (r *OrderRepository) UpdateStatus(ctx context.Context, req repositories.OrderStatusUpdateRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(req.OrderID)
	if id == "" {
		return domain.Order{}, errors.New("order update status: order id is required")
	}
	if req.To == "" {
		return domain.Order{}, errors.New("order update status: target status is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	now := req.Now.UTC()
	var updated domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := client.Collection(ordersCollection).Doc(id)
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		current := domain.OrderStatus(doc.Status)
		if current == req.To {
			updated = doc.toDomain(snap.Ref.ID)
			return nil
		}
		if len(req.From) > 0 && !slices.Contains(req.From, current) {
			return pfirestore.NewConflictError("orders.updateStatus", fmt.Sprintf("order %s is %s, expected one of %v", id, current, req.From))
		}
		doc.Status = string(req.To)
		doc.UpdatedAt = now
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(snap.Ref.ID)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.updateStatus", err)
	}
	return updated, nil
}

// Document mapping ------------------------------------------------------------

type orderDocument struct {
	UserRef        *string             `firestore:"userRef"`
	Address        addressSnapshotDoc  `firestore:"address"`
	Items          []orderItemDocument `firestore:"items"`
	TotalQuantity  int                 `firestore:"totalQuantity"`
	Amount         int64               `firestore:"amount"`
	Status         string              `firestore:"status"`
	IdempotencyKey string              `firestore:"idempotencyKey,omitempty"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	UpdatedAt      time.Time           `firestore:"updatedAt"`
}

type addressSnapshotDoc struct {
	Name       string  `firestore:"name"`
	Phone      string  `firestore:"phone"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city"`
	State      string  `firestore:"state"`
	PostalCode string  `firestore:"postalCode"`
	Type       string  `firestore:"type,omitempty"`
}

type orderItemDocument struct {
	ProductRef string `firestore:"productRef"`
	Quantity   int    `firestore:"qty"`
	Dimension  string `firestore:"dimension,omitempty"`
	UnitPrice  int64  `firestore:"unitPrice"`
}

type idempotencyDocument struct {
	OrderRef  string    `firestore:"orderRef"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ProductRef: item.ProductID,
			Quantity:   item.Quantity,
			Dimension:  item.Dimension,
			UnitPrice:  item.UnitPrice,
		}
	}
	return orderDocument{
		UserRef:        cloneOptionalString(order.UserID),
		Address:        newAddressSnapshotDoc(order.Address),
		Items:          items,
		TotalQuantity:  order.TotalQuantity,
		Amount:         order.Amount,
		Status:         string(order.Status),
		IdempotencyKey: order.IdempotencyKey,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
	}
}

func newAddressSnapshotDoc(addr domain.AddressSnapshot) addressSnapshotDoc {
	return addressSnapshotDoc{
		Name:       addr.Name,
		Phone:      addr.Phone,
		Line1:      addr.Line1,
		Line2:      cloneOptionalString(addr.Line2),
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Type:       addr.Type,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ProductID: item.ProductRef,
			Quantity:  item.Quantity,
			Dimension: item.Dimension,
			UnitPrice: item.UnitPrice,
		}
	}
	return domain.Order{
		ID:     id,
		UserID: cloneOptionalString(d.UserRef),
		Address: domain.AddressSnapshot{
			Name:       d.Address.Name,
			Phone:      d.Address.Phone,
			Line1:      d.Address.Line1,
			Line2:      cloneOptionalString(d.Address.Line2),
			City:       d.Address.City,
			State:      d.Address.State,
			PostalCode: d.Address.PostalCode,
			Type:       d.Address.Type,
		},
		Items:          items,
		TotalQuantity:  d.TotalQuantity,
		Amount:         d.Amount,
		Status:         domain.OrderStatus(d.Status),
		IdempotencyKey: d.IdempotencyKey,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func decodeOrderDocument(snap *firestore.DocumentSnapshot) (domain.Order, error) {
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// orderCursorValues unpacks the listing cursor: createdAt RFC3339Nano, then
// the order id as the tiebreaker.
func orderCursorValues(cursor pagination.Cursor) (time.Time, string, error) {
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", fmt.Errorf("%w: expected createdAt and order id", pagination.ErrInvalidPageToken)
	}
	rawTime, ok := cursor.StartAfter[0].(string)
	if !ok {
		return time.Time{}, "", fmt.Errorf("%w: createdAt must be a string", pagination.ErrInvalidPageToken)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	orderID, ok := cursor.StartAfter[1].(string)
	if !ok || strings.TrimSpace(orderID) == "" {
		return time.Time{}, "", fmt.Errorf("%w: order id must be a string", pagination.ErrInvalidPageToken)
	}
	return createdAt, orderID, nil
}

func optionalValue(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

// Ensure interface compliance.
var _ repositories.OrderRepository = (*OrderRepository)(nil)
