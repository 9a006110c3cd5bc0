package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	domain "github.com/xsnapster/api/internal/domain"
	"github.com/xsnapster/api/internal/repositories"
)

var (
	// ErrCartInvalidInput signals a cart payload that fails catalog validation.
	ErrCartInvalidInput = errors.New("cart: invalid input")
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Catalog repositories.CatalogRepository
	Pricing PricingEngine
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	catalog repositories.CatalogRepository
	pricing PricingEngine
	logger  func(context.Context, string, map[string]any)
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("cart service: pricing engine is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		catalog: deps.Catalog,
		pricing: deps.Pricing,
		logger:  logger,
	}, nil
}

// ValidateAndPrice checks every line against the catalog and prices it
// server-side. Client-supplied prices never enter the computation; a single
// invalid line rejects the whole cart.
func (s *cartService) ValidateAndPrice(ctx context.Context, items []domain.CartItemInput) (domain.PricedCart, error) {
	if len(items) == 0 {
		return domain.PricedCart{}, fmt.Errorf("%w: cart must contain at least one item", ErrCartInvalidInput)
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return domain.PricedCart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
		}
		ids = append(ids, id)
	}

	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return domain.PricedCart{}, s.mapRepositoryError(err)
	}

	priced := domain.PricedCart{
		Items: make([]domain.PricedItem, 0, len(items)),
	}
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		product, ok := products[productID]
		if !ok {
			return domain.PricedCart{}, fmt.Errorf("%w: product %s not found", ErrCartInvalidInput, productID)
		}
		if !product.IsActive {
			return domain.PricedCart{}, fmt.Errorf("%w: product %s is not available", ErrCartInvalidInput, productID)
		}
		if item.Quantity < 1 {
			return domain.PricedCart{}, fmt.Errorf("%w: product %s quantity must be at least 1", ErrCartInvalidInput, productID)
		}

		dimension := strings.TrimSpace(item.Dimension)
		if len(product.Dimensions) > 0 || dimension != "" {
			if !product.HasDimension(dimension) {
				return domain.PricedCart{}, fmt.Errorf("%w: dimension %q is not offered for product %s", ErrCartInvalidInput, dimension, productID)
			}
		}

		unitPrice, err := s.pricing.UnitPrice(ctx, product, dimension)
		if err != nil {
			return domain.PricedCart{}, err
		}

		lineTotal := unitPrice * int64(item.Quantity)
		if unitPrice > 0 && lineTotal/unitPrice != int64(item.Quantity) {
			return domain.PricedCart{}, fmt.Errorf("%w: product %s line total overflow", ErrCartInvalidInput, productID)
		}
		if priced.Amount > math.MaxInt64-lineTotal {
			return domain.PricedCart{}, fmt.Errorf("%w: cart total overflow", ErrCartInvalidInput)
		}

		priced.Items = append(priced.Items, domain.PricedItem{
			ProductID: productID,
			Quantity:  item.Quantity,
			Dimension: dimension,
			UnitPrice: unitPrice,
		})
		priced.Amount += lineTotal
		priced.TotalQuantity += item.Quantity
	}

	return priced, nil
}

func (s *cartService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
	}
	return err
}
