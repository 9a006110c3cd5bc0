package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/xsnapster/api/internal/domain"
	pfirestore "github.com/xsnapster/api/internal/platform/firestore"
	"github.com/xsnapster/api/internal/repositories"
)

// PaymentRepository persists payment rows in Firestore. Payment documents are
// keyed by their order id; creation happens alongside the order in
// OrderRepository.Create.
type PaymentRepository struct {
	provider *pfirestore.Provider
	payments *pfirestore.CollectionReader[paymentDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{
		provider: provider,
		payments: pfirestore.NewCollectionReader[paymentDocument](provider, paymentsCollection, nil),
	}, nil
}

// FindByOrderID loads the payment row for an order.
func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	if r == nil || r.payments == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Payment{}, errors.New("payment find: order id is required")
	}
	doc, err := r.payments.Get(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByGatewayOrderID locates the payment carrying the given gateway order
// reference for the given method. Gateway order ids are unique per gateway,
// so at most one document matches.
func (r *PaymentRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string, method domain.PaymentMethod) (domain.Payment, error) {
	if r == nil || r.provider == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	gid := strings.TrimSpace(gatewayOrderID)
	if gid == "" {
		return domain.Payment{}, errors.New("payment find: gateway order id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Payment{}, err
	}

	iter := client.Collection(paymentsCollection).
		Where("gatewayOrderRef", "==", gid).
		Where("method", "==", string(method)).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snaps, err := iter.GetAll()
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.Payment{}, pfirestore.NewNotFoundError("payments.findByGatewayOrderID", fmt.Sprintf("payment for gateway order %s not found", gid))
		}
		return domain.Payment{}, pfirestore.WrapError("payments.findByGatewayOrderID", err)
	}
	if len(snaps) == 0 {
		return domain.Payment{}, pfirestore.NewNotFoundError("payments.findByGatewayOrderID", fmt.Sprintf("payment for gateway order %s not found", gid))
	}
	return decodePaymentDocument(snaps[0])
}

// Finalize settles the payment into req.Status inside one transaction. The
// payment is re-read so concurrent finalizers serialize: a payment already in
// a terminal status is returned unchanged with Transitioned false, and
// success is never overwritten by failure. ConfirmOrder cascades the owning
// order to CONFIRMED in the same transaction.
func (r *PaymentRepository) Finalize(ctx context.Context, req repositories.PaymentFinalizeRequest) (repositories.PaymentFinalizeResult, error) {
	if r == nil || r.provider == nil {
		return repositories.PaymentFinalizeResult{}, errors.New("payment repository not initialised")
	}
	id := strings.TrimSpace(req.OrderID)
	if id == "" {
		return repositories.PaymentFinalizeResult{}, errors.New("payment finalize: order id is required")
	}
	if req.Status != domain.PaymentStatusSuccess && req.Status != domain.PaymentStatusFailed {
		return repositories.PaymentFinalizeResult{}, fmt.Errorf("payment finalize: %q is not a terminal status", req.Status)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.PaymentFinalizeResult{}, err
	}

	now := req.Now.UTC()
	var result repositories.PaymentFinalizeResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		payRef := client.Collection(paymentsCollection).Doc(id)
		paySnap, err := tx.Get(payRef)
		if err != nil {
			return err
		}
		var payDoc paymentDocument
		if err := paySnap.DataTo(&payDoc); err != nil {
			return fmt.Errorf("decode payment %s: %w", paySnap.Ref.ID, err)
		}

		orderRef := client.Collection(ordersCollection).Doc(id)
		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var orderDoc orderDocument
		if err := orderSnap.DataTo(&orderDoc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderSnap.Ref.ID, err)
		}

		current := domain.PaymentStatus(payDoc.Status)
		if current == domain.PaymentStatusSuccess || current == req.Status {
			result = repositories.PaymentFinalizeResult{
				Payment:      payDoc.toDomain(paySnap.Ref.ID),
				Order:        orderDoc.toDomain(orderSnap.Ref.ID),
				Transitioned: false,
			}
			return nil
		}

		payDoc.Status = string(req.Status)
		payDoc.UpdatedAt = now
		if gpid := strings.TrimSpace(req.GatewayPaymentID); gpid != "" {
			payDoc.TransactionRef = &gpid
		}
		if req.Signature != nil {
			sig := strings.TrimSpace(*req.Signature)
			if sig != "" {
				payDoc.Signature = &sig
			}
		}
		if req.RawResponse != nil {
			payDoc.RawResponse = req.RawResponse
		}
		if err := tx.Set(payRef, payDoc); err != nil {
			return err
		}

		if req.ConfirmOrder && req.Status == domain.PaymentStatusSuccess {
			orderDoc.Status = string(domain.OrderStatusConfirmed)
			orderDoc.UpdatedAt = now
			if err := tx.Set(orderRef, orderDoc); err != nil {
				return err
			}
		}

		result = repositories.PaymentFinalizeResult{
			Payment:      payDoc.toDomain(paySnap.Ref.ID),
			Order:        orderDoc.toDomain(orderSnap.Ref.ID),
			Transitioned: true,
		}
		return nil
	})
	if err != nil {
		return repositories.PaymentFinalizeResult{}, pfirestore.WrapError("payments.finalize", err)
	}
	return result, nil
}

// Document mapping ------------------------------------------------------------

type paymentDocument struct {
	OrderRef        string         `firestore:"orderRef"`
	Method          string         `firestore:"method"`
	GatewayOrderRef *string        `firestore:"gatewayOrderRef,omitempty"`
	TransactionRef  *string        `firestore:"transactionRef,omitempty"`
	Signature       *string        `firestore:"signature,omitempty"`
	Amount          int64          `firestore:"amount"`
	Status          string         `firestore:"status"`
	RawResponse     map[string]any `firestore:"rawResponse,omitempty"`
	CreatedAt       time.Time      `firestore:"createdAt"`
	UpdatedAt       time.Time      `firestore:"updatedAt"`
}

func newPaymentDocument(payment domain.Payment) paymentDocument {
	return paymentDocument{
		OrderRef:        payment.OrderID,
		Method:          string(payment.Method),
		GatewayOrderRef: cloneOptionalString(payment.GatewayOrderID),
		TransactionRef:  cloneOptionalString(payment.TransactionID),
		Signature:       cloneOptionalString(payment.Signature),
		Amount:          payment.Amount,
		Status:          string(payment.Status),
		RawResponse:     payment.RawResponse,
		CreatedAt:       payment.CreatedAt.UTC(),
		UpdatedAt:       payment.UpdatedAt.UTC(),
	}
}

func (d paymentDocument) toDomain(id string) domain.Payment {
	return domain.Payment{
		ID:             id,
		OrderID:        d.OrderRef,
		Method:         domain.PaymentMethod(d.Method),
		GatewayOrderID: cloneOptionalString(d.GatewayOrderRef),
		TransactionID:  cloneOptionalString(d.TransactionRef),
		Signature:      cloneOptionalString(d.Signature),
		Amount:         d.Amount,
		Status:         domain.PaymentStatus(d.Status),
		RawResponse:    d.RawResponse,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func decodePaymentDocument(snap *firestore.DocumentSnapshot) (domain.Payment, error) {
	var doc paymentDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Payment{}, fmt.Errorf("decode payment %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// Ensure interface compliance.
var _ repositories.PaymentRepository = (*PaymentRepository)(nil)
