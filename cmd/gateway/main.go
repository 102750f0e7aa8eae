package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/brewtab/brewtab/internal/config"
	"github.com/brewtab/brewtab/internal/gateway"
	"github.com/brewtab/brewtab/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := config.Require(map[string]string{
		"SETTLEMENT_SERVICE_URL": cfg.Gateway.SettlementURL,
		"CATALOG_SERVICE_URL":    cfg.Gateway.CatalogURL,
	}); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "gateway", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	settlementProxy := gateway.NewServiceProxy(cfg.Gateway.SettlementURL, httpClient)
	catalogProxy := gateway.NewServiceProxy(cfg.Gateway.CatalogURL, httpClient)
	handler := gateway.NewHandler(settlementProxy, catalogProxy, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(handler.HandleSettlement))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(handler.HandleSettlement))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(handler.HandleSettlement))
	mux.HandleFunc("POST /orders/{id}/confirm", telemetry.WithHTTPRoute(handler.HandleSettlement))
	mux.HandleFunc("POST /orders/{id}/cancel", telemetry.WithHTTPRoute(handler.HandleSettlement))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(handler.HandleSettlement))
	mux.HandleFunc("POST /coupons/validate", telemetry.WithHTTPRoute(handler.HandleSettlement))
	mux.HandleFunc("GET /loyalty/points", telemetry.WithHTTPRoute(handler.HandleSettlement))
	mux.HandleFunc("GET /rewards", telemetry.WithHTTPRoute(handler.HandleSettlement))
	mux.HandleFunc("POST /rewards/{id}/redeem", telemetry.WithHTTPRoute(handler.HandleSettlement))
	mux.HandleFunc("POST /webhooks/payment", telemetry.WithHTTPRoute(handler.HandleSettlement))
	mux.HandleFunc("GET /catalog", telemetry.WithHTTPRoute(handler.HandleCatalog))
	mux.HandleFunc("GET /catalog/{itemId}", telemetry.WithHTTPRoute(handler.HandleCatalog))

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "gateway",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting gateway service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
