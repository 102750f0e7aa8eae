package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/brewtab/brewtab/internal/catalog"
	"github.com/brewtab/brewtab/internal/config"
	"github.com/brewtab/brewtab/internal/coupon"
	"github.com/brewtab/brewtab/internal/ledger"
	"github.com/brewtab/brewtab/internal/messaging"
	"github.com/brewtab/brewtab/internal/orders"
	"github.com/brewtab/brewtab/internal/payment"
	"github.com/brewtab/brewtab/internal/rewards"
	"github.com/brewtab/brewtab/internal/settlement"
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
		"POSTGRES_URL":           cfg.PostgresURL,
		"PAYMENT_PROCESSOR_URL":  cfg.Payment.ProcessorURL,
		"PAYMENT_API_KEY":        cfg.Payment.APIKey,
		"PAYMENT_WEBHOOK_SECRET": cfg.Payment.WebhookSecret,
	}); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "settlement", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("settlement", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var publisher settlement.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		events := messaging.NewEvents(cfg.KafkaBrokers)
		defer func() { _ = events.Close() }()
		publisher = events
	}

	processorClient := &http.Client{
		Timeout:   time.Duration(cfg.Payment.TimeoutSeconds) * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	gateway := payment.NewProcessorClient(cfg.Payment.ProcessorURL, cfg.Payment.APIKey, cfg.Payment.WebhookSecret, processorClient)

	catalogRepo := catalog.NewRepository(db)
	couponRepo := coupon.NewRepository(db)
	ledgerRepo := ledger.NewRepository(db)
	ordersRepo := orders.NewRepository(db)
	rewardsRepo := rewards.NewRepository(db)
	settlementRepo := settlement.NewRepository(db)

	orchestrator := settlement.NewOrchestrator(settlementRepo, catalogRepo, couponRepo, gateway, publisher, logger)

	settlementHandler := settlement.NewHandler(orchestrator, logger)
	ordersHandler := orders.NewHandler(ordersRepo, logger)
	couponHandler := coupon.NewHandler(couponRepo, logger)
	ledgerHandler := ledger.NewHandler(ledgerRepo, logger)
	rewardsHandler := rewards.NewHandler(rewardsRepo, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(settlementHandler.HandleCheckout))
	mux.HandleFunc("POST /orders/{id}/confirm", telemetry.WithHTTPRoute(settlementHandler.HandleConfirm))
	mux.HandleFunc("POST /orders/{id}/cancel", telemetry.WithHTTPRoute(settlementHandler.HandleCancel))
	mux.HandleFunc("POST /webhooks/payment", telemetry.WithHTTPRoute(settlementHandler.HandleWebhook))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(ordersHandler.HandleList))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(ordersHandler.HandleGet))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(ordersHandler.HandleUpdateStatus))
	mux.HandleFunc("POST /coupons/validate", telemetry.WithHTTPRoute(couponHandler.HandleValidate))
	mux.HandleFunc("GET /loyalty/points", telemetry.WithHTTPRoute(ledgerHandler.HandleGetBalance))
	mux.HandleFunc("GET /rewards", telemetry.WithHTTPRoute(rewardsHandler.HandleList))
	mux.HandleFunc("POST /rewards/{id}/redeem", telemetry.WithHTTPRoute(rewardsHandler.HandleRedeem))
	mux.Handle("GET /metrics", metricsHandler)

	port := cfg.Port
	if port == "" {
		port = "8081"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "settlement",
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
		logger.Info("starting settlement service", "port", port)
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
