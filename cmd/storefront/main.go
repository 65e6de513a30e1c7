package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/catalog"
	"github.com/joao-fontenele/storefront/internal/checkout"
	"github.com/joao-fontenele/storefront/internal/config"
	"github.com/joao-fontenele/storefront/internal/identity"
	"github.com/joao-fontenele/storefront/internal/messaging"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/payment"
	"github.com/joao-fontenele/storefront/internal/telemetry"
	"github.com/joao-fontenele/storefront/internal/webhook"
)

const serviceName = "storefront"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateStorefront(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	providers, err := telemetry.Init(ctx, serviceName, "1.0.0")
	if err != nil {
		logger.Error("failed to init telemetry", "error", err)
		os.Exit(1)
	}
	defer func() { _ = providers.Shutdown(context.Background()) }()

	db, err := telemetry.OpenPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	httpClient := telemetry.NewHTTPClient(cfg.OutboundTimeout)

	var gate identity.Gate
	if cfg.JWTSecret != "" {
		gate = identity.NewJWTGate(cfg.JWTSecret, 24*time.Hour)
	} else {
		gate = identity.NewRemoteGate(cfg.IdentityURL, httpClient)
	}

	var publisher webhook.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.OrderPaidTopic)
		defer func() { _ = producer.Close() }()
		publisher = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, paid orders will not be announced")
	}

	provider := payment.NewStripe(payment.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		APIURL:        cfg.StripeAPIURL,
		HTTPClient:    httpClient,
	})

	orderRepo := orders.NewOrderRepository(db)
	productRepo := catalog.NewProductRepository(db)
	cartStore := cart.NewRedisStore(rdb, cfg.CartTTL)

	checkoutService, err := checkout.NewService(orderRepo, productRepo, provider, checkout.Config{
		Shipping: checkout.ShippingPolicy{
			FlatFee:       cfg.ShippingFlatFee,
			FreeThreshold: cfg.FreeShippingThreshold,
		},
		Currency:      cfg.Currency,
		StorefrontURL: cfg.StorefrontURL,
		Timeout:       cfg.OutboundTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to create checkout service", "error", err)
		os.Exit(1)
	}

	reconciler, err := webhook.NewReconciler(orderRepo, publisher, logger)
	if err != nil {
		logger.Error("failed to create webhook reconciler", "error", err)
		os.Exit(1)
	}

	catalogHandler := catalog.NewHandler(productRepo, logger)
	checkoutHandler := checkout.NewHandler(checkoutService, logger)
	webhookHandler := webhook.NewHandler(provider, reconciler, logger)
	ordersHandler := orders.NewHandler(orderRepo, logger)
	cartHandler := cart.NewHandler(cartStore, productRepo, logger)

	authenticated := identity.Middleware(gate, logger)
	route := func(h http.HandlerFunc) http.Handler {
		return telemetry.WithHTTPRoute(h)
	}
	private := func(h http.HandlerFunc) http.Handler {
		return telemetry.WithHTTPRoute(authenticated(h))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /products", route(catalogHandler.HandleList))
	mux.Handle("GET /products/{slug}", route(catalogHandler.HandleGetBySlug))
	mux.Handle("POST /webhooks/payment", route(webhookHandler.HandlePayment))

	mux.Handle("POST /checkout", private(checkoutHandler.HandleCheckout))
	mux.Handle("GET /orders", private(ordersHandler.HandleList))
	mux.Handle("GET /orders/{id}", private(ordersHandler.HandleGet))
	mux.Handle("GET /cart", private(cartHandler.HandleGet))
	mux.Handle("DELETE /cart", private(cartHandler.HandleClear))
	mux.Handle("POST /cart/items", private(cartHandler.HandleAddItem))
	mux.Handle("PUT /cart/items/{productId}", private(cartHandler.HandleUpdateItem))
	mux.Handle("DELETE /cart/items/{productId}", private(cartHandler.HandleRemoveItem))

	mux.Handle("GET /metrics", providers.MetricsHandler)
	mux.HandleFunc("GET /healthz", healthz(db, rdb))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      telemetry.NewServerHandler(mux, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: checkoutService.Budget() + 5*time.Second,
	}

	go func() {
		logger.Info("starting storefront", "port", cfg.Port)
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

func healthz(db *sql.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := map[string]string{"postgres": "ok", "redis": "ok"}
		if err := db.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks["postgres"] = "unavailable"
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			status = http.StatusServiceUnavailable
			checks["redis"] = "unavailable"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(checks)
	}
}
