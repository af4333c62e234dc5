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

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/balance"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/inventory"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/notification"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application/order"
	catalog "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/product"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/config"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/customer"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/memory"
	notifykafka "github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/notify/kafka"
	notifyredis "github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/notify/redis"
	infraobs "github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	httppresentation "github.com/Zhima-Mochi/minishop-fulfillment/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-fulfillment/internal/presentation/worker"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	baseLogger, err := zaplogger.New(zaplogger.Options{
		Service: cfg.Service,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		LogFile: cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer func() { _ = baseLogger.Sync() }()
	systemLogger := baseLogger.With(observability.F("component", "system"))

	if cfg.Tracing.Enabled {
		shutdownTracing, err := oteltrace.Setup(cfg.Service, os.Stdout)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := infraobs.RegisterMetrics(prometrics.New(registry, ""))
	if err != nil {
		return err
	}
	tel := infraobs.New(oteltrace.New(cfg.Service), baseLogger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var handlerOpts []httppresentation.Option

	var uow application.UnitOfWork
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pg, err := postgres.New(ctx, postgres.Config{URL: cfg.Store.DatabaseURL, MaxConns: cfg.Store.MaxConns}, tel)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		handlerOpts = append(handlerOpts, httppresentation.WithHealthCheck("postgres", pg.Ping))
		uow = pg
	default:
		uow = memory.NewStore(memory.WithObservability(tel))
	}
	if err := seedStore(ctx, uow, cfg.Seed); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	var (
		sinks []notification.Sink
		live  httppresentation.LiveFeed
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer func() { _ = client.Close() }()
		sink := notifyredis.NewSink(client, cfg.Redis.Channel, notifyredis.WithBacklog(cfg.Redis.Backlog))
		handlerOpts = append(handlerOpts, httppresentation.WithHealthCheck("redis", sink.Ping))
		sinks = append(sinks, sink)
		live = sink
	}
	if len(cfg.Kafka.Brokers) > 0 {
		sink := notifykafka.NewSink(notifykafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		defer func() { _ = sink.Close() }()
		sinks = append(sinks, sink)
	}

	bus := outbox.NewBus(tel)
	workerpresentation.NewNotificationWorker(bus, notification.NewDeliverUseCase(tel, sinks...), tel).Start()
	bus.Start(ctx)

	ids := id.NewSequence()
	handler := httppresentation.NewHandler(httppresentation.Services{
		Orders:        order.NewService(uow, ids, bus, tel),
		Carts:         cart.NewService(uow, ids, tel),
		Catalog:       catalog.NewService(uow, ids, inventory.NewLedger(uow, tel), tel),
		Balances:      balance.NewLedger(uow, tel),
		Notifications: notification.NewService(uow, tel),
		Live:          live,
	}, tel, append(handlerOpts,
		httppresentation.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	)...)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		systemLogger.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("store", cfg.Store.Driver),
			observability.F("sinks", len(sinks)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			systemLogger.Error("http_server_error", observability.F("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		systemLogger.Error("event_bus_shutdown_error", observability.F("error", err.Error()))
	}
	return nil
}

// seedStore inserts the configured demo customers and products, skipping
// ids that already exist.
func seedStore(ctx context.Context, uow application.UnitOfWork, seed config.Seed) error {
	if len(seed.Customers) == 0 && len(seed.Products) == 0 {
		return nil
	}
	return uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		for _, sc := range seed.Customers {
			_, err := tx.Customers().Get(ctx, sc.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, customer.ErrNotFound) {
				return err
			}
			amount, err := config.Amount(sc.Balance)
			if err != nil {
				return err
			}
			userID := sc.UserID
			if userID == "" {
				userID = sc.ID
			}
			c := customer.New(sc.ID, userID)
			c.Balance = amount.Round(customer.MoneyScale)
			if err := tx.Customers().Insert(ctx, c); err != nil {
				return err
			}
		}
		for _, sp := range seed.Products {
			_, err := tx.Products().Get(ctx, sp.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, product.ErrNotFound) {
				return err
			}
			price, err := config.Amount(sp.Price)
			if err != nil {
				return err
			}
			p, err := product.New(sp.ID, sp.MerchantID, sp.Name, price, sp.Stock)
			if err != nil {
				return err
			}
			if err := tx.Products().Insert(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
}
