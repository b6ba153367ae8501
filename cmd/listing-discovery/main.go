package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"listing-discovery/common/database"
	logpkg "listing-discovery/common/logger"
	mqttcommon "listing-discovery/common/mqtt"
	rediscommon "listing-discovery/common/redis"
	"listing-discovery/internal/cache"
	"listing-discovery/internal/config"
	"listing-discovery/internal/consumer"
	"listing-discovery/internal/httpapi"
	"listing-discovery/internal/metrics"
	"listing-discovery/internal/places"
	"listing-discovery/internal/repository"
	"listing-discovery/internal/resolver"
	"listing-discovery/internal/service"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "listing-discovery")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting listing-discovery service",
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("events_mode", cfg.Events.Mode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// GeoStore
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open geo store", zap.Error(err))
	}
	defer closeStore()
	geoStore := repository.NewTimedGeoStore(store, cfg.StoreTimeout)

	// Redis cache
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	defer rediscommon.Close(redisClient)
	if err := rediscommon.WaitReady(ctx, redisClient, 5, time.Second); err != nil {
		// cache failures degrade to store reads, so keep going
		log.Warn("Redis not reachable, serving from the geo store until it recovers", zap.Error(err))
	}
	backend := cache.NewRedisBackend(redisClient)
	cacheCfg := cache.Config{
		KeyPrefix:   cfg.Cache.KeyPrefix,
		LocalityTTL: cfg.Cache.LocalityTTL,
		OpTimeout:   cfg.Cache.OpTimeout,
	}
	listingCache := cache.NewListingCache(backend, cacheCfg, log)
	popularity := cache.NewPopularityTracker(backend, cacheCfg, log)

	// Places
	placesClient := places.NewClient(places.Config{
		BaseURL: cfg.Places.BaseURL,
		APIKey:  cfg.Places.APIKey,
		Region:  cfg.Places.Region,
		Timeout: cfg.Places.Timeout,
	}, log)
	localityResolver := resolver.NewLocalityResolver(placesClient, cfg.Places.AutocompleteTypes, log)

	discovery := service.NewDiscoveryService(geoStore, localityResolver, listingCache, popularity,
		service.DiscoveryConfig{
			PopularLimit:       cfg.Discovery.PopularLimit,
			HydrateConcurrency: cfg.Discovery.HydrateConcurrency,
		}, log)
	listings := service.NewListingService(geoStore, listingCache, discovery, log)

	// Listing events from other writers
	errChan := make(chan error, 2)
	dispatcher := consumer.NewDispatcher(discovery, geoStore, log)
	switch cfg.Events.Mode {
	case "stream":
		sc := consumer.NewStreamConsumer(redisClient, dispatcher, consumer.StreamConfig{
			Stream:    cfg.Events.Stream,
			Group:     cfg.Events.ConsumerGroup,
			Consumer:  cfg.Events.ConsumerName,
			BatchSize: int64(cfg.Events.BatchSize),
		}, log)
		go func() {
			if err := sc.Start(ctx); err != nil {
				errChan <- fmt.Errorf("stream consumer: %w", err)
			}
		}()
	case "mqtt":
		mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, log)
		if err != nil {
			log.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		defer mqttClient.Disconnect()
		listener := consumer.NewMQTTListener(mqttClient, dispatcher, cfg.MQTT.Topic, cfg.MQTT.QoS, log)
		go func() {
			if err := listener.Start(ctx); err != nil {
				errChan <- fmt.Errorf("mqtt listener: %w", err)
			}
		}()
	case "none", "":
	default:
		log.Fatal("Unknown EVENTS_MODE", zap.String("events_mode", cfg.Events.Mode))
	}

	// HTTP
	router := httpapi.NewRouter(log)
	router.RegisterHealthRoutes()
	router.RegisterDiscoveryRoutes(httpapi.NewDiscoveryHandler(discovery, log))
	router.RegisterListingRoutes(httpapi.NewListingHandler(listings, log))
	router.HandleHandler("GET /metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errChan:
		log.Error("Service error", zap.Error(err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Error stopping HTTP server", zap.Error(err))
	}

	log.Info("Service stopped")
}

// openStore builds the configured GeoStore backend and its close func
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.GeoStore, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		pg := repository.NewPostgresGeoStore(db, log)
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = database.Close(db)
			return nil, nil, err
		}
		return pg, func() { _ = database.Close(db) }, nil

	case "mongo":
		client, err := database.NewMongoClient(ctx, &cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		coll := client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
		ms := repository.NewMongoGeoStore(coll, log)
		if err := ms.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return ms, func() { _ = client.Disconnect(context.Background()) }, nil

	case "memory":
		log.Warn("Using in-memory geo store; listings are lost on restart")
		return repository.NewMemoryGeoStore(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
