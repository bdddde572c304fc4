package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	// Root certificates for distroless images without a system bundle
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/Amund211/deckcache/internal/adapters/database"
	"github.com/Amund211/deckcache/internal/adapters/fetcher"
	"github.com/Amund211/deckcache/internal/adapters/store"
	"github.com/Amund211/deckcache/internal/app"
	"github.com/Amund211/deckcache/internal/config"
	"github.com/Amund211/deckcache/internal/events"
	"github.com/Amund211/deckcache/internal/inflight"
	"github.com/Amund211/deckcache/internal/logging"
	"github.com/Amund211/deckcache/internal/offline"
	"github.com/Amund211/deckcache/internal/ports"
	"github.com/Amund211/deckcache/internal/ratelimiting"
	"github.com/Amund211/deckcache/internal/reporting"
	"github.com/Amund211/deckcache/internal/responsecache"
	"github.com/Amund211/deckcache/internal/swr"
	"github.com/Amund211/deckcache/internal/telemetry"
)

// TODO: Put in config
const PROD_DOMAIN_SUFFIX = "deckcache.app"
const STAGING_DOMAIN_SUFFIX = "deckcache-web.pages.dev"

// Upstream request budget shared by every reader in this instance
const UPSTREAM_REQUEST_LIMIT = 300
const UPSTREAM_REQUEST_WINDOW = 1 * time.Minute

func openStore(conf config.Config, logger *slog.Logger) func(ctx context.Context) (store.Store, error) {
	return func(ctx context.Context) (store.Store, error) {
		switch conf.StoreBackend() {
		case config.StoreBackendMemory:
			return store.NewMemoryStore(), nil
		case config.StoreBackendPostgres:
			logger.Info("Initializing database connection")
			db, err := database.NewCloudsqlPostgresDatabase(ctx, conf)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize database: %w", err)
			}

			schemaName := database.GetSchemaName(!conf.IsProduction())
			err = database.NewDatabaseMigrator(db, logger.With("component", "migrator")).Migrate(ctx, schemaName)
			if err != nil {
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
			logger.Info("Initialized database connection")

			return store.NewPostgres(db, schemaName), nil
		case config.StoreBackendRedis:
			client := redis.NewClient(&redis.Options{Addr: conf.RedisAddr()})
			if err := client.Ping(ctx).Err(); err != nil {
				return nil, fmt.Errorf("failed to connect to redis: %w", err)
			}
			logger.Info("Initialized redis connection")

			return store.NewRedis(client), nil
		case config.StoreBackendPebble:
			pebbleStore, err := store.OpenPebble(conf.PebblePath())
			if err != nil {
				return nil, fmt.Errorf("failed to open pebble store: %w", err)
			}
			logger.Info("Opened pebble store", "path", conf.PebblePath())

			return pebbleStore, nil
		}

		return nil, fmt.Errorf("unknown store backend %s", conf.StoreBackend())
	}
}

func main() {
	ctx := context.Background()

	instanceID := uuid.NewString()
	logger := slog.New(logging.NewTracingLogHandler(slog.NewJSONHandler(os.Stdout, nil))).With("instanceID", instanceID)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	config, err := config.ConfigFromEnv()
	if err != nil {
		fail("Failed to load config", "error", err.Error())
	}
	logger.Info("Loaded config", "config", config.NonSensitiveString())

	if !config.IsDevelopment() {
		shutdown, err := telemetry.SetupOTelSDK(ctx, "deckcache")
		if err != nil {
			fail("Failed to set up OpenTelemetry", "error", err.Error())
		}
		defer func() {
			err := shutdown(context.Background())
			if err != nil {
				logger.Error("Failed to shut down OpenTelemetry", "error", err.Error())
			}
		}()
		logger.Info("Initialized OpenTelemetry")
	}

	sentryMiddleware, flush, err := reporting.NewSentryMiddlewareOrMock(config)
	if err != nil {
		fail("Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()
	logger.Info("Initialized Sentry middleware")

	cacheStore := store.NewLazy(openStore(config, logger.With("component", "store")))
	sweeperCtx := logging.WithComponent(ctx, logger, "sweeper")
	go store.RunExpirySweeper(sweeperCtx, cacheStore, store.PartitionAPICache, store.DefaultSweepInterval, time.Now)

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	upstreamFetcher := fetcher.NewRateLimited(
		fetcher.NewHTTP(httpClient, config.UpstreamToken()),
		ratelimiting.NewWindowLimiter(UPSTREAM_REQUEST_LIMIT, UPSTREAM_REQUEST_WINDOW, time.Now, time.After),
		httpClient.Timeout,
	)
	logger.Info("Initialized upstream fetcher", "baseURL", config.UpstreamBaseURL())

	swrClient := swr.NewClient(
		cacheStore,
		upstreamFetcher,
		inflight.NewTracker[json.RawMessage](),
		events.NewBus(),
		time.Now,
	)

	responseCache := responsecache.New()
	defer responseCache.Stop()

	queueCtx := logging.WithComponent(ctx, logger, "offline")
	queue, err := offline.NewQueue(queueCtx, cacheStore, upstreamFetcher, config.UpstreamBaseURL(), true, time.Now)
	if err != nil {
		fail("Failed to load offline queue", "error", err.Error())
	}
	logger.Info("Loaded offline queue", "pending", len(queue.Pending()))

	allowedOrigins, err := ports.NewDomainSuffixes(PROD_DOMAIN_SUFFIX, STAGING_DOMAIN_SUFFIX)
	if err != nil {
		fail("Failed to initialize allowed origins", "error", err.Error())
	}

	getResource := app.BuildGetResource(swrClient, config.UpstreamBaseURL())
	mutateResource := app.BuildMutateResource(swrClient, config.UpstreamBaseURL())
	subscribeResource := app.BuildSubscribeResource(swrClient, config.UpstreamBaseURL())
	revalidateOnFocus := app.BuildRevalidateOnFocus(swrClient)

	queueChange := app.BuildQueueChange(queue)
	setOnline := app.BuildSetOnline(queue)
	syncChanges := app.BuildSyncChanges(queue)
	getOfflineStatus := app.BuildGetOfflineStatus(queue)

	http.HandleFunc(
		"OPTIONS /v1/resource",
		ports.BuildCORSHandler(allowedOrigins),
	)
	http.HandleFunc(
		"GET /v1/resource",
		ports.MakeGetResourceHandler(
			getResource,
			responseCache,
			allowedOrigins,
			logger.With("port", "resource"),
			sentryMiddleware,
		),
	)

	http.HandleFunc(
		"OPTIONS /v1/resource/mutate",
		ports.BuildCORSHandler(allowedOrigins),
	)
	http.HandleFunc(
		"POST /v1/resource/mutate",
		ports.MakeMutateResourceHandler(
			mutateResource,
			responseCache,
			allowedOrigins,
			logger.With("port", "mutate"),
			sentryMiddleware,
		),
	)

	http.HandleFunc(
		"GET /v1/subscribe",
		ports.MakeSubscribeHandler(
			subscribeResource,
			allowedOrigins,
			logger.With("port", "subscribe"),
			sentryMiddleware,
		),
	)

	http.HandleFunc(
		"OPTIONS /v1/focus",
		ports.BuildCORSHandler(allowedOrigins),
	)
	http.HandleFunc(
		"POST /v1/focus",
		ports.MakeFocusHandler(
			revalidateOnFocus,
			allowedOrigins,
			logger.With("port", "focus"),
			sentryMiddleware,
		),
	)

	http.HandleFunc(
		"OPTIONS /v1/offline/changes",
		ports.BuildCORSHandler(allowedOrigins),
	)
	http.HandleFunc(
		"POST /v1/offline/changes",
		ports.MakeQueueChangeHandler(
			queueChange,
			allowedOrigins,
			logger.With("port", "offlinechanges"),
			sentryMiddleware,
		),
	)

	http.HandleFunc(
		"OPTIONS /v1/offline/online",
		ports.BuildCORSHandler(allowedOrigins),
	)
	http.HandleFunc(
		"POST /v1/offline/online",
		ports.MakeSetOnlineHandler(
			setOnline,
			allowedOrigins,
			logger.With("port", "offlineonline"),
			sentryMiddleware,
		),
	)

	http.HandleFunc(
		"OPTIONS /v1/offline/sync",
		ports.BuildCORSHandler(allowedOrigins),
	)
	http.HandleFunc(
		"POST /v1/offline/sync",
		ports.MakeSyncChangesHandler(
			syncChanges,
			allowedOrigins,
			logger.With("port", "offlinesync"),
			sentryMiddleware,
		),
	)

	http.HandleFunc(
		"OPTIONS /v1/offline/status",
		ports.BuildCORSHandler(allowedOrigins),
	)
	http.HandleFunc(
		"GET /v1/offline/status",
		ports.MakeGetOfflineStatusHandler(
			getOfflineStatus,
			allowedOrigins,
			logger.With("port", "offlinestatus"),
			sentryMiddleware,
		),
	)

	logger.Info("Init complete")
	err = http.ListenAndServe(fmt.Sprintf(":%s", config.Port()), nil)
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("Server shutdown")
	} else {
		fail("Server error", "error", err.Error())
	}
}
