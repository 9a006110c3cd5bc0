package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/xsnapster/api/internal/di"
	"github.com/xsnapster/api/internal/handlers"
	"github.com/xsnapster/api/internal/payments"
	"github.com/xsnapster/api/internal/platform/auth"
	"github.com/xsnapster/api/internal/platform/config"
	pfirestore "github.com/xsnapster/api/internal/platform/firestore"
	"github.com/xsnapster/api/internal/platform/idempotency"
	"github.com/xsnapster/api/internal/platform/jobs"
	"github.com/xsnapster/api/internal/platform/observability"
	"github.com/xsnapster/api/internal/platform/secrets"
	"github.com/xsnapster/api/internal/repositories"
	firestoreRepo "github.com/xsnapster/api/internal/repositories/firestore"
	"github.com/xsnapster/api/internal/services"
)

const (
	createOrderRateLimit  = 30
	createOrderRateWindow = time.Minute
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets("Auth.JWTSecret", "Razorpay.KeySecret", "Razorpay.WebhookSecret"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	var redisClient *redis.Client
	var extraHealthChecks []repositories.DependencyCheck
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable; multiplier cache degraded", zap.Error(err))
		}
		cancel()
		extraHealthChecks = append(extraHealthChecks, repositories.DependencyCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, extraHealthChecks...)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	orderTopic := pubsubClient.Topic(cfg.Events.OrderTopic)
	paymentTopic := pubsubClient.Topic(cfg.Events.PaymentTopic)
	defer func() {
		orderTopic.Stop()
		paymentTopic.Stop()
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()

	eventPublisher, err := jobs.NewPubSubEventPublisher(orderTopic, paymentTopic)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}

	gateway, err := payments.NewRazorpayGateway(payments.RazorpayConfig{
		KeyID:         cfg.Razorpay.KeyID,
		KeySecret:     cfg.Razorpay.KeySecret,
		WebhookSecret: cfg.Razorpay.WebhookSecret,
		Currency:      cfg.Razorpay.Currency,
		CallTimeout:   cfg.Razorpay.CallTimeout,
		Logger:        eventLogger(logger.Named("razorpay")),
	})
	if err != nil {
		logger.Fatal("failed to initialise razorpay gateway", zap.Error(err))
	}

	deps := di.Dependencies{
		Config:        cfg,
		Registry:      registry,
		Gateway:       gateway,
		OrderEvents:   eventPublisher,
		PaymentEvents: eventPublisher,
		Build:         buildInfo,
		Logger:        eventLogger(logger.Named("services")),
		Clock:         time.Now,
	}
	if redisClient != nil {
		deps.Redis = redisClient
	}

	container, err := di.NewContainer(ctx, deps)
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		logger.Fatal("failed to initialise token verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(verifier)

	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders,
		handlers.WithOrderRateLimit(createOrderRateLimit, createOrderRateWindow),
		handlers.WithOrderIdempotency(idempotencyMiddleware),
	)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, container.Services.Payments)
	webhookHandlers := handlers.NewWebhookHandlers(gateway, container.Services.Payments, eventLogger(logger.Named("webhooks")))
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(container.Services.System),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
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
		serverLogger.Info("xsnapster api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// eventLogger adapts a zap logger to the service-level logging callback.
func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(event, zFields...)
	}
}

func buildInfoFromEnv(env map[string]string, started time.Time) services.BuildInfo {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}
	version := lookup("API_BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	commit := lookup("API_BUILD_COMMIT_SHA")
	if commit == "" {
		commit = "unknown"
	}
	environment := lookup("API_ENVIRONMENT")
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_SECRET_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}
