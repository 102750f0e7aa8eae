package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brewtab/brewtab/internal/config"
	"github.com/brewtab/brewtab/internal/messaging"
	"github.com/brewtab/brewtab/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := config.Require(map[string]string{
		"NOTIFY_SERVICE_URL": cfg.Worker.NotifyURL,
	}); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if len(cfg.KafkaBrokers) == 0 {
		logger.Error("missing required configuration: KAFKA_BROKERS")
		os.Exit(1)
	}

	settledConsumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicOrderSettled, "receipt-worker")
	defer func() { _ = settledConsumer.Close() }()

	cancelledConsumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicOrderCancelled, "receipt-worker")
	defer func() { _ = cancelledConsumer.Close() }()

	httpClient := &http.Client{
		Timeout: 10 * time.Second,
	}

	receiptHandler := worker.NewReceiptHandler(cfg.Worker.NotifyURL, httpClient, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting receipt worker", "brokers", cfg.KafkaBrokers)

	errs := make(chan error, 2)
	go func() {
		errs <- settledConsumer.Consume(ctx, receiptHandler.HandleSettled)
	}()
	go func() {
		errs <- cancelledConsumer.Consume(ctx, receiptHandler.HandleCancelled)
	}()

	if err := <-errs; err != nil {
		if ctx.Err() == context.Canceled {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
