package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/xsnapster/api/internal/domain"
	pfirestore "github.com/xsnapster/api/internal/platform/firestore"
	"github.com/xsnapster/api/internal/repositories"
)

const (
	productsCollection         = "products"
	dimensionPricingCollection = "dimensionPricing"
)

// CatalogRepository reads products and dimension multipliers from Firestore.
// Catalog documents are written by admin tooling; this repository is read-only.
type CatalogRepository struct {
	products    *pfirestore.CollectionReader[productDocument]
	multipliers *pfirestore.CollectionReader[dimensionPricingDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog reader.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		products:    pfirestore.NewCollectionReader[productDocument](provider, productsCollection, nil),
		multipliers: pfirestore.NewCollectionReader[dimensionPricingDocument](provider, dimensionPricingCollection, nil),
	}, nil
}

// GetProducts batch-loads the given product ids. Ids without a backing
// document are simply absent from the result; callers decide whether a
// missing product is an error.
func (r *CatalogRepository) GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.products == nil {
		return nil, errors.New("catalog repository not initialised")
	}

	docs, err := r.products.GetAll(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	products := make(map[string]domain.Product, len(docs))
	for _, doc := range docs {
		products[doc.ID] = doc.Data.toDomain(doc.ID)
	}
	return products, nil
}

// GetMultipliers batch-loads dimension multipliers for the given labels.
// Labels without a pricing document are absent from the result.
func (r *CatalogRepository) GetMultipliers(ctx context.Context, labels []string) (map[string]float64, error) {
	if r == nil || r.multipliers == nil {
		return nil, errors.New("catalog repository not initialised")
	}

	docs, err := r.multipliers.GetAll(ctx, labels)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return map[string]float64{}, nil
		}
		return nil, err
	}

	multipliers := make(map[string]float64, len(docs))
	for _, doc := range docs {
		multipliers[doc.ID] = doc.Data.Multiplier
	}
	return multipliers, nil
}

type productDocument struct {
	Name            string    `firestore:"name"`
	Description     string    `firestore:"description,omitempty"`
	BasePrice       int64     `firestore:"basePrice"`
	DiscountedPrice *int64    `firestore:"discountedPrice,omitempty"`
	Dimensions      []string  `firestore:"dimensions,omitempty"`
	CategoryRef     string    `firestore:"categoryRef,omitempty"`
	ImagePath       string    `firestore:"imagePath,omitempty"`
	IsActive        bool      `firestore:"isActive"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	var discounted *int64
	if d.DiscountedPrice != nil {
		v := *d.DiscountedPrice
		discounted = &v
	}
	dimensions := make([]string, len(d.Dimensions))
	copy(dimensions, d.Dimensions)
	return domain.Product{
		ID:              id,
		Name:            d.Name,
		Description:     d.Description,
		BasePrice:       d.BasePrice,
		DiscountedPrice: discounted,
		Dimensions:      dimensions,
		CategoryID:      strings.TrimSpace(d.CategoryRef),
		ImagePath:       d.ImagePath,
		IsActive:        d.IsActive,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type dimensionPricingDocument struct {
	Multiplier float64   `firestore:"multiplier"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

// Ensure interface compliance.
var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
