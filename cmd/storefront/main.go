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

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	c "github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/config"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/lock"
	"github.com/fjod/storefront/internal/publisher"
	"github.com/fjod/storefront/internal/repository"
	s "github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/pkg/logger"
)

type orderPublisher interface {
	s.OrderPublisher
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	// prices render as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	ctx := context.Background()
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	cartRepo, closeCarts, err := newCartRepository(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to set up cart store", zap.Error(err))
	}
	closers = append(closers, closeCarts)

	orderRepo, closeOrders, err := newOrderRepository(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to set up order store", zap.Error(err))
	}
	closers = append(closers, closeOrders)

	var cartCache c.CartCache = c.NoopCache{}
	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       0,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("redis connection failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		log.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))

		cartCache = c.NewRedisCache(redisClient, cfg.CartCacheTTL)
		locker = lock.NewRedisLocker(redisClient, 0, log)
	}

	catalogClient := catalog.NewClient(cfg.CatalogBaseURL, cfg.CatalogTimeout,
		catalog.WithBreaker(cfg.CatalogBreakerThreshold, cfg.CatalogBreakerCooldown),
		catalog.WithLogger(log),
	)

	var pub orderPublisher = publisher.Noop{}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		pub = publisher.NewKafkaPublisher(cfg.KafkaOrdersTopic, brokers...)
		log.Info("publishing order events", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaOrdersTopic))
	}
	closers = append(closers, func() {
		if err := pub.Close(); err != nil {
			log.Warn("failed to close publisher", zap.Error(err))
		}
	})

	cartService := s.NewCartService(cartRepo, cartCache, locker, log)
	reconciler := s.NewReconciler(catalogClient, log)
	checkoutService := s.NewCheckoutService(cartService, orderRepo, catalogClient, pub, s.PricePolicy(cfg.PricePolicy), log)

	router := h.NewRouter(h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodyBytes,
		SessionCookie:      cfg.SessionCookie,
	}, h.Handlers{
		Cart:     h.NewCartHandler(cartService, reconciler, catalogClient, log),
		Checkout: h.NewCheckoutHandler(checkoutService, log),
		Products: h.NewProductHandler(catalogClient, log),
		Orders:   h.NewOrdersHandler(orderRepo, log),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("storefront starting",
			zap.String("port", cfg.HTTPPort),
			zap.String("cart_store", cfg.CartStore),
			zap.String("order_store", cfg.OrderStore),
			zap.String("price_policy", cfg.PricePolicy),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

func newCartRepository(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.CartRepository, func(), error) {
	switch cfg.CartStore {
	case config.StoreMongo:
		db, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewMongoCartRepository(db)
		if err := repo.CreateIndexes(ctx); err != nil {
			_ = db.Client().Disconnect(ctx)
			return nil, nil, err
		}
		log.Info("connected to MongoDB", zap.String("db", cfg.MongoDBName))
		return repo, func() { _ = db.Client().Disconnect(context.Background()) }, nil
	default:
		log.Info("using in-memory cart store")
		return repository.NewMemoryCartRepository(), func() {}, nil
	}
}

func newOrderRepository(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.OrderRepository, func(), error) {
	switch cfg.OrderStore {
	case config.StorePostgres:
		cred := cfg.PostgresCredentials()
		repo, err := repository.NewPostgresOrderRepository(cred)
		if err != nil {
			return nil, nil, err
		}
		if err := repo.RunMigrations(cred); err != nil {
			_ = repo.Close()
			return nil, nil, err
		}
		log.Info("connected to PostgreSQL", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
		return repo, func() { _ = repo.Close() }, nil
	case config.StoreDynamoDB:
		client, err := repository.NewDynamoDBClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewDynamoOrderRepository(client, cfg.OrderTableName)
		if err := repo.EnsureTable(ctx); err != nil {
			return nil, nil, err
		}
		log.Info("using DynamoDB order table", zap.String("table", cfg.OrderTableName))
		return repo, func() {}, nil
	default:
		log.Info("using in-memory order store")
		return repository.NewMemoryOrderRepository(), func() {}, nil
	}
}
