package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/xsnapster/api/internal/payments"
	"github.com/xsnapster/api/internal/platform/config"
	"github.com/xsnapster/api/internal/repositories"
	"github.com/xsnapster/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Pricing  services.PricingEngine
	Cart     services.CartService
	Orders   services.OrderService
	Payments services.PaymentService
	System   services.SystemService
}

// Dependencies carries the externally constructed collaborators the container
// wires into services. The registry and gateway are required; the rest are
// optional and degrade gracefully when absent.
type Dependencies struct {
	Config        config.Config
	Registry      repositories.Registry
	Gateway       payments.Gateway
	OrderEvents   services.OrderEventPublisher
	PaymentEvents services.PaymentEventPublisher
	Redis         redis.Cmdable
	Build         services.BuildInfo
	Logger        func(ctx context.Context, event string, fields map[string]any)
	Clock         func() time.Time
}

// Container wires repositories, services, and shared infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies.
func NewContainer(ctx context.Context, deps Dependencies) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment gateway is required")
	}

	svc, err := buildServices(ctx, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, deps Dependencies) (Services, error) {
	var svc Services
	reg := deps.Registry

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	multipliers, err := services.NewCachedMultiplierSource(services.CachedMultiplierSourceDeps{
		Source: reg.Catalog(),
		Client: deps.Redis,
		TTL:    deps.Config.Redis.MultiplierTTL,
		Logger: deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build multiplier source: %w", err)
	}

	pricing, err := services.NewDimensionPricingEngine(services.DimensionPricingEngineDeps{
		Multipliers: multipliers,
		Logger:      deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	cart, err := services.NewCartService(services.CartServiceDeps{
		Catalog: reg.Catalog(),
		Pricing: pricing,
		Logger:  deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cart

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:    reg.Orders(),
		Payments:  reg.Payments(),
		Addresses: reg.Addresses(),
		Cart:      cart,
		Gateway:   deps.Gateway,
		Currency:  deps.Config.Razorpay.Currency,
		Clock:     clock,
		Events:    deps.OrderEvents,
		Logger:    deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Payments: reg.Payments(),
		Orders:   reg.Orders(),
		Gateway:  deps.Gateway,
		Clock:    clock,
		Events:   deps.PaymentEvents,
		Logger:   deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}
