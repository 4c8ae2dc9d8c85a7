package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/perfume-decants/api/internal/payments"
	"github.com/perfume-decants/api/internal/platform/auth"
	"github.com/perfume-decants/api/internal/platform/config"
	"github.com/perfume-decants/api/internal/repositories"
	"github.com/perfume-decants/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled in NewContainer.
type Services struct {
	Catalog  services.CatalogService
	Orders   services.OrderService
	Users    services.UserService
	Payments services.PaymentService
}

// Deps carries the infrastructure collaborators the container wires into
// services. Tests can supply stub registries and nil optionals.
type Deps struct {
	Registry repositories.Registry
	Tokens   *auth.TokenManager
	Gateway  *payments.Manager
	Mock     *payments.MockProvider
	Events   services.OrderEventPublisher
	Logger   *zap.Logger
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies.
func NewContainer(_ context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("token manager is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment manager is required")
	}

	svc, err := buildServices(cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases repository clients and other held resources.
func (c *Container) Close() error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close()
}

func buildServices(cfg config.Config, deps Deps) (Services, error) {
	var svc Services
	reg := deps.Registry

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:  reg.Products(),
		AuditLogs: reg.AuditLogs(),
		Clock:     time.Now,
		Logger:    eventLogger(logger.Named("catalog")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:    reg.Orders(),
		Counters:  reg.Counters(),
		AuditLogs: reg.AuditLogs(),
		Clock:     time.Now,
		Events:    deps.Events,
		Logger:    eventLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:      reg.Users(),
		Tokens:     deps.Tokens,
		BcryptCost: cfg.Auth.BcryptCost,
		Clock:      time.Now,
		Logger:     eventLogger(logger.Named("users")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:  orderSvc,
		Gateway: deps.Gateway,
		Mock:    deps.Mock,
		Logger:  eventLogger(logger.Named("payments")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	return svc, nil
}

func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service log", zFields...)
	}
}
