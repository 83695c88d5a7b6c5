package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"collectibles-inventory/internal/config"
	"collectibles-inventory/internal/fulfillment"
	kafkax "collectibles-inventory/internal/kafka"
	"collectibles-inventory/internal/ledger"
	"collectibles-inventory/internal/orders"
	"collectibles-inventory/internal/postgres"
	"collectibles-inventory/internal/redisx"

	kafkago "github.com/segmentio/kafka-go"
)

// Consumes fulfillment events from kafka and runs them through the same
// processor as the HTTP webhook, for upstreams that deliver over a topic.
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

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

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

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.FulfillmentGroup,
		orders.TopicFulfillmentEvents, cfg.FulfillmentWorkers, logger)

	go func() {
		logger.Info("fulfillment consumer started",
			zap.String("group", cfg.FulfillmentGroup),
			zap.String("topic", orders.TopicFulfillmentEvents),
			zap.Int("workers", cfg.FulfillmentWorkers))
		err := cons.Start(ctx, func(ctx context.Context, m kafkago.Message) error {
			_, err := processor.Process(ctx, m.Value)
			return err
		})
		if err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
