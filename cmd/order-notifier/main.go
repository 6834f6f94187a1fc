package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-storefront/internal/config"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/notify"
	"github.com/ariefcatur/go-storefront/internal/observability"
	"github.com/ariefcatur/go-storefront/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:   "order-notifier",
		Usage:  "project order events into per-subject notification feeds",
		Action: func(c *cli.Context) error { return run(c.Context) },
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "order-notifier:", err)
		os.Exit(1)
	}
}

func run(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	name := cfg.ServiceName + "-notifier"
	log, err := observability.NewLogger(cfg.LogLevel, name)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTELEndpoint, name)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		return err
	}

	svc := &notify.Service{
		Redis:       rdb,
		Feed:        &redisx.Feed{Redis: rdb, Limit: cfg.FeedLimit},
		ServiceName: name,
		Log:         log,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, notify.Topics, cfg.NotifierWorkers, log.Named("kafka"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("notifier consuming",
			zap.String("group", cfg.NotifierGroup), zap.Strings("topics", notify.Topics), zap.Int("workers", cfg.NotifierWorkers))
		return cons.Start(gctx, svc.Handle)
	})
	err = g.Wait()
	log.Info("notifier stopped", zap.Error(err))
	return err
}
