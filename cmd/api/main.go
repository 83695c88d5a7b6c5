package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"collectibles-inventory/internal/catalog"
	"collectibles-inventory/internal/config"
	"collectibles-inventory/internal/fulfillment"
	"collectibles-inventory/internal/httpx"
	kafkax "collectibles-inventory/internal/kafka"
	"collectibles-inventory/internal/ledger"
	"collectibles-inventory/internal/orders"
	"collectibles-inventory/internal/postgres"
	"collectibles-inventory/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// a broken storage layer is fatal; no request should run without it
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, logger)
	prod.Start(ctx)

	orderRepo := &orders.Repo{DB: db}
	catalogRepo := &catalog.Repo{DB: db}
	ledgerRepo := &ledger.Repo{DB: db}
	fulfillRepo := &fulfillment.Repo{DB: db}

	processor := &fulfillment.Processor{
		Orders: fulfillRepo,
		Stock:  ledgerRepo,
		Log:    fulfillRepo,
		Dedup:  redisx.Deduper{Client: rdb},
		Cache:  redisx.OrderCache{Client: rdb},
		Logger: logger,
	}

	router := httpx.NewRouter(logger)
	(&httpx.ProductsHandler{Catalog: catalogRepo, Ledger: ledgerRepo, Logger: logger}).Register(router)
	(&httpx.OrdersHandler{
		Store:    orderRepo,
		Producer: prod,
		Redis:    rdb,
		Logger:   logger,
		Service:  cfg.ServiceName,
	}).Register(router)
	(&httpx.WebhooksHandler{Processor: processor, Logger: logger}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // flush & close writer
	prod.WaitClosed()
	cancel()
}
