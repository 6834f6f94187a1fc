package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-storefront/internal/config"
	"github.com/ariefcatur/go-storefront/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/memstore"
	"github.com/ariefcatur/go-storefront/internal/observability"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/postgres"
	"github.com/ariefcatur/go-storefront/internal/redisx"
)

func serve(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := observability.NewLogger(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTELEndpoint, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Warn("redis unavailable at startup; cache and idempotency degrade", zap.Error(err))
	}

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("kafka"))
	prod.Start(ctx)
	defer prod.Close()

	engine := &orders.Engine{
		Store:    store,
		Cache:    &redisx.OrderCache{Redis: rdb, Log: log},
		Notifier: &kafkax.EventPublisher{Producer: prod, Service: cfg.ServiceName, Log: log},
		Log:      log.Named("engine"),
		Attempts: cfg.TxAttempts,
	}
	router := httpx.NewRouter(log.Named("http"),
		&httpx.ItemsHandler{Engine: engine, Log: log},
		&httpx.OrdersHandler{Engine: engine, Idempotency: &redisx.Idempotency{Redis: rdb}, Log: log},
		&httpx.NotificationsHandler{Feed: &redisx.Feed{Redis: rdb, Limit: cfg.FeedLimit}, Log: log},
	)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (orders.Store, func(), error) {
	if cfg.StoreBackend == config.BackendMemory {
		s := memstore.New()
		s.LockWait = cfg.LockTimeout
		n, err := postgres.Seed(ctx, s)
		if err != nil {
			return nil, nil, err
		}
		log.Info("in-memory store seeded", zap.Int("items", n))
		return s, func() {}, nil
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMax)
	if err != nil {
		return nil, nil, err
	}
	return &postgres.Store{DB: db, LockTimeout: cfg.LockTimeout}, db.Close, nil
}
