package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/xsnapster/api/internal/domain"
)

var (
	// ErrPricingInvalidInput signals bad pricing input such as a negative base price.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
)

// DimensionPricingEngineDeps bundles collaborators for the pricing engine.
type DimensionPricingEngineDeps struct {
	Multipliers MultiplierSource
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// DimensionPricingEngine prices products across their dimension variants by
// applying the global per-label multipliers and the round-to-nine display rule.
type DimensionPricingEngine struct {
	multipliers MultiplierSource
	logger      func(context.Context, string, map[string]any)
}

// NewDimensionPricingEngine wires dependencies into a concrete PricingEngine.
func NewDimensionPricingEngine(deps DimensionPricingEngineDeps) (*DimensionPricingEngine, error) {
	if deps.Multipliers == nil {
		return nil, errors.New("pricing engine: multiplier source is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &DimensionPricingEngine{
		multipliers: deps.Multipliers,
		logger:      logger,
	}, nil
}

// PriceForDimensions computes the display price for every label. Labels
// without a configured multiplier price at 1.0; both the base and the
// discounted price pass through the multiplier and the round-to-nine rule.
func (e *DimensionPricingEngine) PriceForDimensions(ctx context.Context, labels []string, basePrice int64, discountedPrice *int64) (map[string]domain.DimensionPrice, error) {
	if basePrice < 0 {
		return nil, fmt.Errorf("%w: base price cannot be negative", ErrPricingInvalidInput)
	}
	if discountedPrice != nil && *discountedPrice < 0 {
		return nil, fmt.Errorf("%w: discounted price cannot be negative", ErrPricingInvalidInput)
	}

	cleaned := make([]string, 0, len(labels))
	for _, label := range labels {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}

	multipliers := map[string]float64{}
	if len(cleaned) > 0 {
		found, err := e.multipliers.GetMultipliers(ctx, cleaned)
		if err != nil {
			return nil, err
		}
		multipliers = found
	}

	prices := make(map[string]domain.DimensionPrice, len(cleaned))
	for _, label := range cleaned {
		multiplier, ok := multipliers[label]
		if !ok || multiplier <= 0 {
			if !ok {
				e.logger(ctx, "pricing.multiplier.missing", map[string]any{"label": label})
			}
			multiplier = 1.0
		}

		price := domain.DimensionPrice{
			Price:      applyMultiplier(basePrice, multiplier),
			Multiplier: multiplier,
		}
		if discountedPrice != nil {
			discounted := applyMultiplier(*discountedPrice, multiplier)
			price.DiscountedPrice = &discounted
		}
		prices[label] = price
	}
	return prices, nil
}

// UnitPrice returns the effective unit price for a product, honouring the
// discounted price when present and the dimension multiplier when a
// dimension is given.
func (e *DimensionPricingEngine) UnitPrice(ctx context.Context, product domain.Product, dimension string) (int64, error) {
	base := product.UnitPrice()
	label := strings.TrimSpace(dimension)
	if label == "" {
		return base, nil
	}

	multipliers, err := e.multipliers.GetMultipliers(ctx, []string{label})
	if err != nil {
		return 0, err
	}
	multiplier, ok := multipliers[label]
	if !ok || multiplier <= 0 {
		if !ok {
			e.logger(ctx, "pricing.multiplier.missing", map[string]any{"label": label, "product": product.ID})
		}
		multiplier = 1.0
	}
	return applyMultiplier(base, multiplier), nil
}

func applyMultiplier(price int64, multiplier float64) int64 {
	if price <= 0 {
		return 0
	}
	return domain.RoundToNine(float64(price) * multiplier)
}

var _ PricingEngine = (*DimensionPricingEngine)(nil)
