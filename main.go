package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	appcart "github.com/orderware/wholesale/internal/application/cart"
	appcatalog "github.com/orderware/wholesale/internal/application/catalog"
	apporder "github.com/orderware/wholesale/internal/application/order"
	"github.com/orderware/wholesale/internal/application/reporting"
	"github.com/orderware/wholesale/internal/config"
	httptransport "github.com/orderware/wholesale/internal/infrastructure/http"
	"github.com/orderware/wholesale/internal/infrastructure/id"
	"github.com/orderware/wholesale/internal/infrastructure/memory"
	"github.com/orderware/wholesale/internal/infrastructure/observability/oteltrace"
	"github.com/orderware/wholesale/internal/infrastructure/observability/prometrics"
	"github.com/orderware/wholesale/internal/infrastructure/observability/telemetry"
	"github.com/orderware/wholesale/internal/infrastructure/observability/zaplogger"
	"github.com/orderware/wholesale/internal/infrastructure/outbox"
	"github.com/orderware/wholesale/internal/observability"
	"github.com/orderware/wholesale/internal/pkg/cache"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := zaplogger.New(
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)
	if s, ok := logger.(interface{ Sync() error }); ok {
		defer func() { _ = s.Sync() }()
	}

	registry := prometrics.New(cfg.ServiceName, "")
	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: registry.Counter(
			string(observability.MUsecaseRequests),
			"Total number of use case invocations.",
			"use_case", "outcome",
		),
		observability.MHTTPRequests: registry.Counter(
			string(observability.MHTTPRequests),
			"Total number of HTTP requests.",
			"method", "route", "status",
		),
		observability.MEventPublishFailures: registry.Counter(
			string(observability.MEventPublishFailures),
			"Count of order event publish failures.",
			"event",
		),
		observability.MCheckoutStockRejects: registry.Counter(
			string(observability.MCheckoutStockRejects),
			"Checkouts rejected for insufficient stock.",
		),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: registry.Histogram(
			string(observability.MUsecaseDuration),
			"Duration of use case execution in seconds.",
			nil,
			"use_case",
		),
		observability.MHTTPRequestDuration: registry.Histogram(
			string(observability.MHTTPRequestDuration),
			"Duration of HTTP request handling in seconds.",
			nil,
			"method", "route", "status",
		),
	}
	tel := telemetry.New(oteltrace.New(cfg.ServiceName), logger, counters, histograms)

	catalogRepo := memory.NewCatalogRepository(memory.WithTxTimeout(cfg.TxTimeout))
	orderRepo := memory.NewOrderRepository()
	idGenerator := id.NewUUIDGenerator()

	bus := outbox.NewBus(logger)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	cartSvc := appcart.NewService(catalogRepo, tel)
	engine := apporder.NewEngine(orderRepo, catalogRepo, idGenerator, bus, cfg.StockPolicy, tel)
	lifecycle := apporder.NewLifecycle(orderRepo, catalogRepo, bus, cfg.StockPolicy, tel)
	catalogSvc := appcatalog.NewService(catalogRepo, catalogRepo, idGenerator, tel)

	reportSvc := reporting.NewService(catalogRepo, tel)
	reporting.NewWorker(bus, reportSvc).Start()

	orderCache := cache.Noop()
	if cfg.RedisAddr != "" {
		orderCache = cache.NewRedisCache(cfg.RedisAddr, cfg.ServiceName)
	}

	handler := httptransport.NewHandler(
		cartSvc, engine, lifecycle, catalogSvc, reportSvc, orderCache, tel, cfg.JWTSecret,
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("stock_policy", string(cfg.StockPolicy)),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", observability.F("error", err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_error", observability.F("error", err))
	} else {
		logger.Info("http_server_stopped")
	}
}
