package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/solestride/api/internal/payments"
	"github.com/solestride/api/internal/platform/auth"
	"github.com/solestride/api/internal/platform/config"
	pstorage "github.com/solestride/api/internal/platform/storage"
	"github.com/solestride/api/internal/repositories"
	"github.com/solestride/api/internal/services"
	"github.com/solestride/api/internal/shipping"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog    services.CatalogService
	Inventory  services.InventoryService
	Carts      services.CartService
	Orders     services.OrderService
	Reviews    services.ReviewService
	Users      services.UserService
	Statistics services.StatisticsService
	System     services.SystemService
	Assets     services.AssetService
	Jobs       services.BackgroundJobDispatcher
	Counters   services.CounterService
	Audit      services.AuditLogService
}

// Deps carries the external collaborators the container cannot construct on its own:
// persistence, signed URL generation, carrier and PSP gateways, and job transport.
type Deps struct {
	Config       config.Config
	Repositories repositories.Registry
	Storage      *pstorage.Client
	Shipping     *shipping.Manager
	Payments     *payments.Manager
	JobPublisher services.JobPublisher
	Firebase     auth.UserGetter
	Build        services.BuildInfo
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries and stub gateways.
func NewContainer(ctx context.Context, deps Deps) (*Container, error) {
	if deps.Repositories == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Repositories,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, deps Deps) (Services, error) {
	var svc Services
	reg := deps.Repositories

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	if auditRepo := reg.AuditLogs(); auditRepo != nil {
		auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
			Repository: auditRepo,
			Clock:      clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build audit log service: %w", err)
		}
		svc.Audit = auditSvc
	}

	counterRepo := reg.Counters()
	if counterRepo != nil {
		counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
			Repository: counterRepo,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build counter service: %w", err)
		}
		svc.Counters = counterSvc
	}

	if inventoryRepo := reg.Inventory(); inventoryRepo != nil {
		inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
			Inventory: inventoryRepo,
			Audit:     svc.Audit,
			Clock:     clock,
			Logger:    deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build inventory service: %w", err)
		}
		svc.Inventory = inventorySvc
	}

	if deps.Storage != nil {
		assetSvc, err := services.NewAssetService(services.AssetServiceDeps{
			Storage:     deps.Storage,
			Bucket:      deps.Config.Storage.AssetsBucket,
			Clock:       clock,
			IDGenerator: deps.IDGenerator,
			Logger:      deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build asset service: %w", err)
		}
		svc.Assets = assetSvc
	}

	catalogRepo := reg.Catalog()
	if catalogRepo != nil {
		catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
			Catalog:     catalogRepo,
			Reviews:     reg.Reviews(),
			Signer:      svc.Assets,
			Audit:       svc.Audit,
			Clock:       clock,
			IDGenerator: deps.IDGenerator,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build catalog service: %w", err)
		}
		svc.Catalog = catalogSvc
	}

	cartRepo := reg.Carts()
	if cartRepo != nil && catalogRepo != nil {
		cartSvc, err := services.NewCartService(services.CartServiceDeps{
			Repository:      cartRepo,
			Catalog:         catalogRepo,
			Clock:           clock,
			DefaultCurrency: deps.Config.Commerce.DefaultCurrency,
			Logger:          deps.Logger,
			IDGenerator:     deps.IDGenerator,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build cart service: %w", err)
		}
		svc.Carts = cartSvc
	}

	if deps.JobPublisher != nil {
		jobSvc, err := services.NewBackgroundJobDispatcher(services.BackgroundJobDispatcherDeps{
			Publisher: deps.JobPublisher,
			Clock:     clock,
			Logger:    deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build job dispatcher: %w", err)
		}
		svc.Jobs = jobSvc
	}

	ordersRepo := reg.Orders()
	if ordersRepo != nil && cartRepo != nil && catalogRepo != nil && counterRepo != nil && deps.Shipping != nil {
		var events services.OrderEventPublisher
		if publisher, ok := svc.Jobs.(services.OrderEventPublisher); ok {
			events = publisher
		}
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:          ordersRepo,
			Sales:           reg.Sales(),
			Carts:           cartRepo,
			Catalog:         catalogRepo,
			Inventory:       reg.Inventory(),
			Addresses:       reg.Addresses(),
			Counters:        counterRepo,
			UnitOfWork:      reg,
			Shipping:        deps.Shipping,
			Payments:        deps.Payments,
			Clock:           clock,
			IDGenerator:     deps.IDGenerator,
			Events:          events,
			Logger:          deps.Logger,
			PairWeightGrams: deps.Config.Commerce.PairWeightGrams,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if reviewRepo := reg.Reviews(); reviewRepo != nil && ordersRepo != nil {
		reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
			Reviews:     reviewRepo,
			Orders:      ordersRepo,
			Clock:       clock,
			IDGenerator: deps.IDGenerator,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build review service: %w", err)
		}
		svc.Reviews = reviewSvc
	}

	if usersRepo := reg.Users(); usersRepo != nil {
		userSvc, err := services.NewUserService(services.UserServiceDeps{
			Users:     usersRepo,
			Addresses: reg.Addresses(),
			Favorites: reg.Favorites(),
			Audit:     svc.Audit,
			Firebase:  deps.Firebase,
			Clock:     clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build user service: %w", err)
		}
		svc.Users = userSvc
	}

	if salesRepo := reg.Sales(); salesRepo != nil && ordersRepo != nil {
		statsSvc, err := services.NewStatisticsService(services.StatisticsServiceDeps{
			Sales:  salesRepo,
			Orders: ordersRepo,
			Clock:  clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build statistics service: %w", err)
		}
		svc.Statistics = statsSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            deps.Build,
			Audit:            svc.Audit,
			Counters:         svc.Counters,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
