package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/xsnapster/api/internal/platform/firestore"
	"github.com/xsnapster/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider  *pfirestore.Provider
	catalog   *CatalogRepository
	addresses *AddressRepository
	orders    *OrderRepository
	payments  *PaymentRepository
	health    repositories.HealthRepository
}

// NewRegistry wires every repository against the shared provider. Extra
// health checks are forwarded to the health repository so callers can probe
// dependencies beyond Firestore.
func NewRegistry(provider *pfirestore.Provider, extraHealthChecks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, err
	}
	addresses, err := NewAddressRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	payments, err := NewPaymentRepository(provider)
	if err != nil {
		return nil, err
	}
	health, err := NewHealthRepository(provider, extraHealthChecks...)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		catalog:   catalog,
		addresses: addresses,
		orders:    orders,
		payments:  payments,
		health:    health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Catalog() repositories.CatalogRepository   { return r.catalog }
func (r *Registry) Addresses() repositories.AddressRepository { return r.addresses }
func (r *Registry) Orders() repositories.OrderRepository      { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository  { return r.payments }
func (r *Registry) Health() repositories.HealthRepository     { return r.health }

// Ensure interface compliance.
var _ repositories.Registry = (*Registry)(nil)
