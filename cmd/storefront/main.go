package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mlionhart/hartmart/internal/catalog"
	"github.com/mlionhart/hartmart/internal/checkout"
	"github.com/mlionhart/hartmart/internal/config"
	"github.com/mlionhart/hartmart/internal/gateway"
	h "github.com/mlionhart/hartmart/internal/http"
	"github.com/mlionhart/hartmart/internal/metrics"
	"github.com/mlionhart/hartmart/internal/orders"
	"github.com/mlionhart/hartmart/internal/pricing"
	"github.com/mlionhart/hartmart/internal/publisher"
	"github.com/mlionhart/hartmart/internal/session"
	"github.com/mlionhart/hartmart/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Options{Service: cfg.ServiceName, Env: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("storefront stopped with error", zap.Error(err))
	}
	log.Info("storefront exited")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	reg := metrics.NewRegistry()

	products, err := catalog.NewSQLiteRepository(cfg.CatalogDBPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer products.Close()
	if err := products.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	log.Info("catalog ready", zap.String("path", cfg.CatalogDBPath))
	provider := catalog.NewCached(products, cfg.CatalogCacheTTL)

	sessions, closeSessions, err := buildSessions(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSessions()

	orderRepo, err := buildOrders(cfg, log)
	if err != nil {
		return err
	}
	defer orderRepo.Close()

	var paymentGateway checkout.Gateway
	var paymentPage http.Handler
	if cfg.GatewayURL != "" {
		paymentGateway = gateway.NewClient(gateway.Config{
			BaseURL: cfg.GatewayURL,
			APIKey:  cfg.GatewayAPIKey,
			Logger:  log,
		})
		log.Info("payment gateway configured", zap.String("url", cfg.GatewayURL))
	} else {
		stub := &gateway.Stub{RedirectBase: "http://localhost:" + cfg.HTTPPort + gateway.StubPaymentPath + "/"}
		paymentGateway, paymentPage = stub, stub.Handler()
		log.Warn("PAYMENT_GATEWAY_URL not set, using stub gateway")
	}

	checkoutOpts := []checkout.Option{checkout.WithTimeout(cfg.GatewayTimeout)}

	g, gctx := errgroup.WithContext(ctx)

	if len(cfg.KafkaBrokers) > 0 {
		ordersWriter := publisher.NewKafkaWriter(publisher.OrdersTopic, cfg.KafkaBrokers...)
		reconWriter := publisher.NewKafkaWriter(publisher.ReconciliationTopic, cfg.KafkaBrokers...)
		defer ordersWriter.Close()
		defer reconWriter.Close()

		checkoutOpts = append(checkoutOpts, checkout.WithEscalator(publisher.NewEscalator(reconWriter, reg, log)))
		poller := publisher.NewOutboxPoller(orderRepo, ordersWriter, reg, log)
		g.Go(func() error {
			poller.Run(gctx)
			return nil
		})
		log.Info("order events publishing to kafka", zap.Strings("brokers", cfg.KafkaBrokers))
	} else {
		log.Warn("KAFKA_BROKERS not set, order events stay in the outbox")
	}

	srv := h.NewServer(h.Deps{
		Catalog:         provider,
		Sessions:        sessions,
		Orders:          orderRepo,
		Gateway:         paymentGateway,
		Metrics:         reg,
		Logger:          log,
		Policy:          pricing.Policy{ShippingCents: cfg.ShippingCents},
		Currency:        cfg.Currency,
		CheckoutOptions: checkoutOpts,
		PaymentPage:     paymentPage,
	})
	router := srv.Router(h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, cfg.ServiceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcSrv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthSrv := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g.Go(func() error {
		log.Info("http server starting", zap.String("port", cfg.HTTPPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("grpc health server starting", zap.String("port", cfg.GRPCPort))
		healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		healthSrv.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("http server forced to shutdown", zap.Error(err))
		}
		grpcSrv.GracefulStop()
		return nil
	})

	return g.Wait()
}

func buildSessions(ctx context.Context, cfg *config.Config, log *zap.Logger) (*session.Service, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var repo session.Repository
	if cfg.Mongo.URI != "" {
		db, err := session.ConnectMongoDB(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = db.Client().Disconnect(context.Background()) })
		mongoRepo := session.NewMongoRepository(db)
		if err := mongoRepo.CreateIndexes(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		repo = mongoRepo
		log.Info("cart sessions stored in mongodb",
			zap.String("database", cfg.Mongo.Database),
			zap.Uint64("max_pool_size", cfg.Mongo.MaxPoolSize))
	} else {
		repo = session.NewMemoryRepository()
		log.Warn("MONGO_URI not set, cart sessions kept in memory")
	}

	var cache session.Cache = session.NoopCache{}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			closeAll()
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		cache = session.NewRedisCache(client)
		log.Info("cart session cache on redis", zap.String("addr", cfg.RedisAddr))
	}

	return session.NewService(repo, cache, log), closeAll, nil
}

type orderStore interface {
	orders.Repository
	orders.Outbox
}

func buildOrders(cfg *config.Config, log *zap.Logger) (orderStore, error) {
	if cfg.Postgres == nil {
		log.Warn("ORDERS_DB_HOST not set, orders kept in memory")
		return orders.NewMemoryRepository(), nil
	}

	repo, err := orders.NewPostgresRepository(cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if err := repo.RunMigrations(cfg.Postgres); err != nil {
		repo.Close()
		return nil, err
	}
	log.Info("connected to postgres", zap.String("host", cfg.Postgres.Host))
	return repo, nil
}
