package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solestride/api/internal/di"
	"github.com/solestride/api/internal/handlers"
	"github.com/solestride/api/internal/payments"
	"github.com/solestride/api/internal/platform/auth"
	"github.com/solestride/api/internal/platform/config"
	pfirestore "github.com/solestride/api/internal/platform/firestore"
	"github.com/solestride/api/internal/platform/idempotency"
	"github.com/solestride/api/internal/platform/jobs"
	"github.com/solestride/api/internal/platform/observability"
	"github.com/solestride/api/internal/platform/secrets"
	platformstorage "github.com/solestride/api/internal/platform/storage"
	"github.com/solestride/api/internal/repositories"
	firestoreRepo "github.com/solestride/api/internal/repositories/firestore"
	"github.com/solestride/api/internal/services"
	"github.com/solestride/api/internal/shipping"

	"github.com/oklog/ulid/v2"
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

	requiredSecrets := requiredSecretNames(envValues)
	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecrets...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	healthRepo, err := newHealthRepository(firestoreClient, fetcher)
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repository registry", zap.Error(err))
	}

	signerKey := strings.TrimSpace(cfg.Storage.SignedURLKey)
	if signerKey == "" {
		logger.Fatal("storage signer key is required")
	}
	signer, err := platformstorage.NewServiceAccountSignerFromJSON([]byte(signerKey))
	if err != nil {
		logger.Fatal("failed to parse storage signer key", zap.Error(err))
	}
	signedURLClient, err := platformstorage.NewClient(signer)
	if err != nil {
		logger.Fatal("failed to initialise signed url client", zap.Error(err))
	}

	ghnProvider, err := shipping.NewGHNProvider(shipping.GHNConfig{
		BaseURL: cfg.Shipping.GHNBaseURL,
		Token:   cfg.Shipping.GHNToken,
		ShopID:  cfg.Shipping.GHNShopID,
	})
	if err != nil {
		logger.Fatal("failed to initialise ghn carrier", zap.Error(err))
	}
	shippingManager, err := shipping.NewManager(map[string]shipping.Provider{
		"ghn": ghnProvider,
	}, shipping.WithDefaultCarrier(cfg.Shipping.DefaultCarrier))
	if err != nil {
		logger.Fatal("failed to initialise shipping manager", zap.Error(err))
	}

	if strings.TrimSpace(cfg.PSP.StripeAPIKey) == "" {
		logger.Fatal("stripe api key is required")
	}
	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.PSP.StripeAPIKey,
		Logger: newEventLogger(logger.Named("payments")),
		Clock:  time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
	}
	paymentManager, err := payments.NewManager(map[string]payments.Provider{
		"stripe": stripeProvider,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()
	orderEventsTopic := pubsubClient.Topic(cfg.PubSub.OrderEventsTopic)
	cartCleanupTopic := pubsubClient.Topic(cfg.PubSub.CartCleanupTopic)
	defer orderEventsTopic.Stop()
	defer cartCleanupTopic.Stop()
	jobPublisher, err := jobs.NewPubSubJobPublisher(orderEventsTopic, cartCleanupTopic)
	if err != nil {
		logger.Fatal("failed to initialise job publisher", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	container, err := di.NewContainer(ctx, di.Deps{
		Config:       cfg,
		Repositories: registry,
		Storage:      signedURLClient,
		Shipping:     shippingManager,
		Payments:     paymentManager,
		JobPublisher: jobPublisher,
		Firebase:     firebaseVerifier,
		Build:        buildInfo,
		Clock:        time.Now,
		IDGenerator:  func() string { return ulid.Make().String() },
		Logger:       newEventLogger(logger.Named("services")),
	})
	if err != nil {
		logger.Fatal("failed to assemble service container", zap.Error(err))
	}
	svc := container.Services

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	stopSweeper := startIdempotencySweeper(logger.Named("idempotency"), idempotencyStore, cfg.Idempotency)

	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg)
	hmacMiddleware := buildHMACMiddleware(logger.Named("auth"), cfg)

	catalogHandlers := handlers.NewCatalogHandlers(svc.Catalog, svc.Reviews, svc.Orders)
	meHandlers := handlers.NewMeHandlers(authenticator, svc.Users, svc.Reviews)
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Carts)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders)
	adminHandlers := handlers.NewAdminHandlers(handlers.AdminHandlersDeps{
		Authenticator: authenticator,
		Catalog:       svc.Catalog,
		Inventory:     svc.Inventory,
		Assets:        svc.Assets,
		Orders:        svc.Orders,
		Statistics:    svc.Statistics,
		System:        svc.System,
	})
	webhookHandlers := handlers.NewWebhookHandlers(handlers.WebhookHandlersDeps{
		Orders:                svc.Orders,
		StripeSigningSecret:   cfg.PSP.StripeWebhookSecret,
		Logger:                newEventLogger(logger.Named("webhooks")),
		CarrierBurstPerMinute: cfg.RateLimits.WebhookBurst,
	})
	internalHandlers := handlers.NewInternalHandlers(svc.Orders, svc.Jobs)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
		idempotencyMiddleware,
	}

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithPublicRoutes(catalogHandlers.Routes))
	opts = append(opts, handlers.WithMeRoutes(meHandlers.Routes))
	opts = append(opts, handlers.WithCartRoutes(cartHandlers.Routes))
	opts = append(opts, handlers.WithOrderRoutes(orderHandlers.Routes))
	opts = append(opts, handlers.WithAdminRoutes(adminHandlers.Routes))
	opts = append(opts, handlers.WithWebhookRoutes(webhookHandlers.Routes))
	opts = append(opts, handlers.WithInternalRoutes(internalHandlers.Routes))
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}
	if hmacMiddleware != nil {
		opts = append(opts, handlers.WithWebhookMiddlewares(hmacMiddleware))
	}

	router := handlers.NewRouter(opts...)
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
		serverLogger.Info("solestride api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if err := container.Close(closeCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
}

// startIdempotencySweeper periodically purges expired idempotency records so
// the collection does not grow without bound. The returned stop function
// blocks until the sweep goroutine has exited.
func startIdempotencySweeper(logger *zap.Logger, store *idempotency.FirestoreStore, cfg config.IdempotencyConfig) func() {
	if cfg.CleanupInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			sweepCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			removed, err := store.CleanupExpired(sweepCtx, time.Now().UTC(), cfg.CleanupBatchSize)
			cancel()
			switch {
			case err != nil:
				logger.Error("idempotency sweep failed", zap.Error(err))
			case removed > 0:
				logger.Info("idempotency sweep purged records", zap.Int("count", removed))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// newEventLogger adapts a zap logger to the event/field callback the services accept.
func newEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
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

func newHealthRepository(client *firestore.Client, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	var checks []repositories.DependencyCheck
	if client != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check:   firestoreProbe(client),
		})
	}
	if fetcher != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check:   secretManagerProbe(fetcher),
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

// firestoreProbe lists a single collection to confirm the datastore answers.
func firestoreProbe(client *firestore.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if _, err := client.Collections(ctx).Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
		return nil
	}
}

// secretManagerProbe resolves a well-known reference. NotFound still means
// Secret Manager answered, so only transport errors fail the probe.
func secretManagerProbe(fetcher *secrets.Fetcher) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := fetcher.Resolve(ctx, "secret://system/healthz?version=latest")
		if err == nil {
			return nil
		}
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return nil
		}
		return err
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	adapter := observability.NewPrintfAdapter(logger)
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(adapter))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

func buildHMACMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	secrets := make(map[string]string)
	for key, value := range cfg.Security.HMAC.Secrets {
		if strings.TrimSpace(value) == "" {
			continue
		}
		secrets[strings.ToLower(key)] = value
	}
	if cfg.Webhooks.SigningSecret != "" {
		if _, ok := secrets["default"]; !ok {
			secrets["default"] = cfg.Webhooks.SigningSecret
		}
	}
	if len(secrets) == 0 {
		return nil
	}

	provider := staticSecretProvider{secrets: secrets}
	nonces := auth.NewInMemoryNonceStore()
	adapter := observability.NewPrintfAdapter(logger)
	validator := auth.NewHMACValidator(provider, nonces,
		auth.WithHMACLogger(adapter),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACClockSkew(cfg.Security.HMAC.ClockSkew),
		auth.WithHMACNonceTTL(cfg.Security.HMAC.NonceTTL),
	)

	resolver := webhookSecretResolver(secrets)
	return validator.RequireHMACResolver(resolver)
}

type staticSecretProvider struct {
	secrets map[string]string
}

func (p staticSecretProvider) GetSecret(_ context.Context, name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", errors.New("auth: secret name required")
	}
	secret := p.secrets[name]
	if secret == "" {
		return "", fmt.Errorf("auth: no hmac secret registered for %q", name)
	}
	return secret, nil
}

// webhookSecretResolver picks the HMAC secret for a webhook request from its
// path. "/webhooks/ghn/status" tries "ghn/status", then "ghn", then "default",
// so one carrier can carry a dedicated secret while the rest share one.
func webhookSecretResolver(secrets map[string]string) func(*http.Request) (string, bool) {
	lookup := func(name string) (string, bool) {
		if secret := secrets[name]; secret != "" {
			return name, true
		}
		return "", false
	}

	return func(r *http.Request) (string, bool) {
		_, rest, found := strings.Cut(r.URL.Path, "/webhooks/")
		if !found {
			rest = r.URL.Path
		}
		rest = strings.ToLower(strings.Trim(rest, "/"))

		carrier, sub, _ := strings.Cut(rest, "/")
		if carrier != "" {
			if sub != "" {
				sub, _, _ = strings.Cut(sub, "/")
				if name, ok := lookup(carrier + "/" + sub); ok {
					return name, ok
				}
			}
			if name, ok := lookup(carrier); ok {
				return name, ok
			}
		}
		return lookup("default")
	}
}

func traceProjectID(cfg config.Config) string {
	for _, id := range []string{cfg.Firebase.ProjectID, cfg.Firestore.ProjectID} {
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}
	return ""
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key, fallback string) string {
		if value := strings.TrimSpace(env[key]); value != "" {
			return value
		}
		return fallback
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(strings.ToLower(lookup("API_SECURITY_ENVIRONMENT", "local"))),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(lookup("API_SECRET_FALLBACK_FILE", ".secrets.local")),
	}
	if projectMap := secretProjectMapFromEnv(env); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if project := lookup("API_SECRET_DEFAULT_PROJECT_ID", lookup("API_FIREBASE_PROJECT_ID", "")); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE", ""); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the config fields that must resolve before the
// store can take traffic. Extra HMAC secrets declared through the environment
// join the baseline set.
func requiredSecretNames(env map[string]string) []string {
	required := []string{
		"Storage.SignedURLKey",
		"PSP.StripeAPIKey",
		"PSP.StripeWebhookSecret",
		"Shipping.GHNToken",
		"Webhooks.SigningSecret",
	}
	for _, key := range parseHMACSecretKeys(env["API_SECURITY_HMAC_SECRETS"]) {
		required = append(required, fmt.Sprintf("Security.HMAC.Secrets[%s]", key))
	}
	return uniqueStrings(required)
}

// secretProjectMapFromEnv reads API_SECRET_PROJECT_IDS, a comma list of
// env=project pairs such as "staging=ss-staging,prod=ss-prod".
func secretProjectMapFromEnv(env map[string]string) map[string]string {
	projects := make(map[string]string)
	if env == nil {
		return projects
	}
	for envLabel, project := range parseKeyValueList(env["API_SECRET_PROJECT_IDS"]) {
		projects[strings.ToLower(envLabel)] = project
	}
	return projects
}

func parseHMACSecretKeys(raw string) []string {
	values := parseKeyValueList(raw)
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, strings.ToLower(key))
	}
	sort.Strings(keys)
	return keys
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
