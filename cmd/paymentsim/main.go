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
	"github.com/brewtab/brewtab/internal/paymentsim"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := config.Require(map[string]string{
		"PAYMENT_API_KEY":        cfg.Payment.APIKey,
		"PAYMENT_WEBHOOK_SECRET": cfg.Payment.WebhookSecret,
	}); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	dataPath := cfg.Paymentsim.DataPath
	if dataPath == "" {
		dataPath = "paymentsim.db"
	}

	store, err := paymentsim.NewStore(dataPath)
	if err != nil {
		logger.Error("failed to open charge store", "error", err, "path", dataPath)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	handler := paymentsim.NewHandler(store, cfg.Payment.APIKey, cfg.Payment.WebhookSecret, cfg.Paymentsim.WebhookURL,
		&http.Client{Timeout: 10 * time.Second}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /charges", handler.HandleCreateCharge)
	mux.HandleFunc("GET /charges/{handle}", handler.HandleConfirmCharge)
	mux.HandleFunc("POST /refunds", handler.HandleRefund)

	port := cfg.Port
	if port == "" {
		port = "8085"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting payment simulator", "port", port, "data_path", dataPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
