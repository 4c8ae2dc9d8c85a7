package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/perfume-decants/api/internal/di"
	"github.com/perfume-decants/api/internal/handlers"
	"github.com/perfume-decants/api/internal/payments"
	"github.com/perfume-decants/api/internal/platform/auth"
	"github.com/perfume-decants/api/internal/platform/config"
	pfirestore "github.com/perfume-decants/api/internal/platform/firestore"
	"github.com/perfume-decants/api/internal/platform/jobs"
	"github.com/perfume-decants/api/internal/platform/observability"
	firestoreRepo "github.com/perfume-decants/api/internal/repositories/firestore"
	"github.com/perfume-decants/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger(os.Getenv("ENVIRONMENT"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider, err := pfirestore.NewProvider(ctx, cfg.Firestore)
	if err != nil {
		logger.Fatal("failed to initialise firestore provider", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	tokenManager, err := auth.NewTokenManager(cfg.Auth.JWTSecret, auth.WithTokenTTL(cfg.Auth.TokenTTL))
	if err != nil {
		logger.Fatal("failed to initialise token manager", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(tokenManager)

	gateway, mockProvider, err := buildPaymentGateway(logger.Named("payments"), cfg)
	if err != nil {
		logger.Fatal("failed to initialise payment gateway", zap.Error(err))
	}

	eventPublisher, closePublisher, err := buildEventPublisher(ctx, logger.Named("events"), cfg)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	if closePublisher != nil {
		defer closePublisher()
	}

	container, err := di.NewContainer(ctx, cfg, di.Deps{
		Registry: registry,
		Tokens:   tokenManager,
		Gateway:  gateway,
		Mock:     mockProvider,
		Events:   eventPublisher,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}

	authHandlers := handlers.NewAuthHandlers(authenticator, container.Services.Users)
	productHandlers := handlers.NewProductHandlers(container.Services.Catalog)
	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, container.Services.Payments)
	adminHandlers := handlers.NewAdminHandlers(authenticator, container.Services.Catalog, container.Services.Orders)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthReadiness(registry.Health()),
		handlers.WithHealthVersion(strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAuthRoutes(authHandlers.Routes),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("perfume-decants api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildPaymentGateway(logger *zap.Logger, cfg config.Config) (*payments.Manager, *payments.MockProvider, error) {
	providers := make(map[string]payments.Provider, 2)

	mockProvider := payments.NewMockProvider()
	providers["mock"] = mockProvider

	if strings.TrimSpace(cfg.Payments.StripeAPIKey) != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:     cfg.Payments.StripeAPIKey,
			SuccessURL: cfg.Payments.SuccessURL,
			CancelURL:  cfg.Payments.CancelURL,
			Logger: func(_ context.Context, event string, fields map[string]any) {
				zFields := make([]zap.Field, 0, len(fields)+1)
				zFields = append(zFields, zap.String("event", event))
				for k, v := range fields {
					zFields = append(zFields, zap.Any(k, v))
				}
				logger.Debug("stripe log", zFields...)
			},
			Clock: time.Now,
		})
		if err != nil {
			return nil, nil, err
		}
		providers["stripe"] = stripeProvider
	}

	manager, err := payments.NewManager(providers, cfg.Payments.Provider)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Payments.Provider != "mock" {
		mockProvider = nil
	}
	return manager, mockProvider, nil
}

func buildEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.Config) (services.OrderEventPublisher, func(), error) {
	if strings.TrimSpace(cfg.Events.TopicID) == "" {
		logger.Info("order event publishing disabled; no topic configured")
		return nil, nil, nil
	}

	projectID := strings.TrimSpace(cfg.Events.ProjectID)
	if projectID == "" {
		projectID = strings.TrimSpace(cfg.Firestore.ProjectID)
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}

	topic := client.Topic(cfg.Events.TopicID)
	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	closeFn := func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
	return publisher, closeFn, nil
}
