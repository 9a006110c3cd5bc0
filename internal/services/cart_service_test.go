package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/xsnapster/api/internal/domain"
	pfirestore "github.com/xsnapster/api/internal/platform/firestore"
)

type stubCatalogRepository struct {
	getProductsFn func(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	multipliersFn func(ctx context.Context, labels []string) (map[string]float64, error)
}

func (s *stubCatalogRepository) GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	return s.getProductsFn(ctx, productIDs)
}

func (s *stubCatalogRepository) GetMultipliers(ctx context.Context, labels []string) (map[string]float64, error) {
	return s.multipliersFn(ctx, labels)
}

type stubPricingEngine struct {
	priceFn func(ctx context.Context, labels []string, basePrice int64, discountedPrice *int64) (map[string]domain.DimensionPrice, error)
	unitFn  func(ctx context.Context, product domain.Product, dimension string) (int64, error)
}

func (s *stubPricingEngine) PriceForDimensions(ctx context.Context, labels []string, basePrice int64, discountedPrice *int64) (map[string]domain.DimensionPrice, error) {
	return s.priceFn(ctx, labels, basePrice, discountedPrice)
}

func (s *stubPricingEngine) UnitPrice(ctx context.Context, product domain.Product, dimension string) (int64, error) {
	return s.unitFn(ctx, product, dimension)
}

func newCartFixture(t *testing.T, catalog *stubCatalogRepository, pricing *stubPricingEngine) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{Catalog: catalog, Pricing: pricing})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc
}

func activeProduct(id string, basePrice int64, dimensions ...string) domain.Product {
	return domain.Product{
		ID:         id,
		Name:       "Frame " + id,
		BasePrice:  basePrice,
		Dimensions: dimensions,
		IsActive:   true,
	}
}

func TestValidateAndPriceComputesServerSideTotals(t *testing.T) {
	catalog := &stubCatalogRepository{
		getProductsFn: func(_ context.Context, ids []string) (map[string]domain.Product, error) {
			return map[string]domain.Product{
				"prod-1": activeProduct("prod-1", 220, "S", "L"),
				"prod-2": activeProduct("prod-2", 500),
			}, nil
		},
	}
	pricing := &stubPricingEngine{
		unitFn: func(_ context.Context, product domain.Product, dimension string) (int64, error) {
			if product.ID == "prod-1" && dimension == "L" {
				return 249, nil
			}
			return product.BasePrice, nil
		},
	}
	svc := newCartFixture(t, catalog, pricing)

	priced, err := svc.ValidateAndPrice(context.Background(), []domain.CartItemInput{
		{ProductID: "prod-1", Quantity: 2, Dimension: "L"},
		{ProductID: " prod-2 ", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("ValidateAndPrice: %v", err)
	}

	if len(priced.Items) != 2 {
		t.Fatalf("expected 2 priced items, got %d", len(priced.Items))
	}
	if priced.Items[0].UnitPrice != 249 {
		t.Errorf("expected server-priced unit 249, got %d", priced.Items[0].UnitPrice)
	}
	if priced.Items[1].ProductID != "prod-2" {
		t.Errorf("expected trimmed product id, got %q", priced.Items[1].ProductID)
	}
	if priced.Amount != 2*249+500 {
		t.Errorf("unexpected amount %d", priced.Amount)
	}
	if priced.TotalQuantity != 3 {
		t.Errorf("unexpected total quantity %d", priced.TotalQuantity)
	}
}

func TestValidateAndPriceRejectsEmptyCart(t *testing.T) {
	svc := newCartFixture(t, &stubCatalogRepository{}, &stubPricingEngine{})
	if _, err := svc.ValidateAndPrice(context.Background(), nil); !errors.Is(err, ErrCartInvalidInput) {
		t.Errorf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestValidateAndPriceRejectsUnknownProduct(t *testing.T) {
	catalog := &stubCatalogRepository{
		getProductsFn: func(context.Context, []string) (map[string]domain.Product, error) {
			return map[string]domain.Product{}, nil
		},
	}
	svc := newCartFixture(t, catalog, &stubPricingEngine{})

	_, err := svc.ValidateAndPrice(context.Background(), []domain.CartItemInput{{ProductID: "missing", Quantity: 1}})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Errorf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestValidateAndPriceRejectsInactiveProduct(t *testing.T) {
	inactive := activeProduct("prod-1", 220)
	inactive.IsActive = false
	catalog := &stubCatalogRepository{
		getProductsFn: func(context.Context, []string) (map[string]domain.Product, error) {
			return map[string]domain.Product{"prod-1": inactive}, nil
		},
	}
	svc := newCartFixture(t, catalog, &stubPricingEngine{})

	_, err := svc.ValidateAndPrice(context.Background(), []domain.CartItemInput{{ProductID: "prod-1", Quantity: 1}})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Errorf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestValidateAndPriceRejectsBadQuantity(t *testing.T) {
	catalog := &stubCatalogRepository{
		getProductsFn: func(context.Context, []string) (map[string]domain.Product, error) {
			return map[string]domain.Product{"prod-1": activeProduct("prod-1", 220)}, nil
		},
	}
	svc := newCartFixture(t, catalog, &stubPricingEngine{})

	_, err := svc.ValidateAndPrice(context.Background(), []domain.CartItemInput{{ProductID: "prod-1", Quantity: 0}})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Errorf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestValidateAndPriceDimensionRules(t *testing.T) {
	catalog := &stubCatalogRepository{
		getProductsFn: func(context.Context, []string) (map[string]domain.Product, error) {
			return map[string]domain.Product{
				"dimensioned": activeProduct("dimensioned", 220, "S", "L"),
				"plain":       activeProduct("plain", 500),
			}, nil
		},
	}
	pricing := &stubPricingEngine{
		unitFn: func(_ context.Context, product domain.Product, _ string) (int64, error) {
			return product.BasePrice, nil
		},
	}
	svc := newCartFixture(t, catalog, pricing)

	// A dimensioned product requires one of its declared labels.
	_, err := svc.ValidateAndPrice(context.Background(), []domain.CartItemInput{{ProductID: "dimensioned", Quantity: 1}})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Errorf("expected error for missing dimension, got %v", err)
	}
	_, err = svc.ValidateAndPrice(context.Background(), []domain.CartItemInput{{ProductID: "dimensioned", Quantity: 1, Dimension: "XL"}})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Errorf("expected error for unknown dimension, got %v", err)
	}

	// A plain product rejects any dimension.
	_, err = svc.ValidateAndPrice(context.Background(), []domain.CartItemInput{{ProductID: "plain", Quantity: 1, Dimension: "S"}})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Errorf("expected error for dimension on plain product, got %v", err)
	}

	// The valid combinations pass.
	if _, err := svc.ValidateAndPrice(context.Background(), []domain.CartItemInput{
		{ProductID: "dimensioned", Quantity: 1, Dimension: "S"},
		{ProductID: "plain", Quantity: 1},
	}); err != nil {
		t.Errorf("expected valid cart, got %v", err)
	}
}

func TestValidateAndPriceMapsRepositoryNotFound(t *testing.T) {
	catalog := &stubCatalogRepository{
		getProductsFn: func(context.Context, []string) (map[string]domain.Product, error) {
			return nil, pfirestore.NewNotFoundError("catalog.getProducts", "collection missing")
		},
	}
	svc := newCartFixture(t, catalog, &stubPricingEngine{})

	_, err := svc.ValidateAndPrice(context.Background(), []domain.CartItemInput{{ProductID: "prod-1", Quantity: 1}})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Errorf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestValidateAndPricePropagatesPricingError(t *testing.T) {
	catalog := &stubCatalogRepository{
		getProductsFn: func(context.Context, []string) (map[string]domain.Product, error) {
			return map[string]domain.Product{"prod-1": activeProduct("prod-1", 220)}, nil
		},
	}
	wantErr := errors.New("multiplier lookup failed")
	pricing := &stubPricingEngine{
		unitFn: func(context.Context, domain.Product, string) (int64, error) {
			return 0, wantErr
		},
	}
	svc := newCartFixture(t, catalog, pricing)

	_, err := svc.ValidateAndPrice(context.Background(), []domain.CartItemInput{{ProductID: "prod-1", Quantity: 1}})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected pricing error, got %v", err)
	}
}
