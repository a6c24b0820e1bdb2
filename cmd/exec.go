package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go/v7"

	"genzstore/config"
	"genzstore/handlers"
	"genzstore/internal/gateway"
	"genzstore/internal/gateway/bakong"
	"genzstore/internal/gateway/payway"
	"genzstore/internal/reconcile"
	"genzstore/internal/status"
	"genzstore/monitoring"
	"genzstore/security"
	"genzstore/services"
	"genzstore/utils"

	_ "genzstore/migrations"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize payment gateways
	registry := gateway.NewRegistry()

	if cfg.Bakong.AccountID != "" {
		bk, err := bakong.New(ctx, &cfg.Bakong)
		if err != nil {
			return err
		}
		registry.Register(bk)
	}

	if cfg.PayWay.MerchantID != "" {
		pw, err := payway.New(ctx, &cfg.PayWay)
		if err != nil {
			return err
		}
		registry.Register(pw)
	}

	if err := registry.SetPrimary(gateway.Provider(cfg.PrimaryProvider)); err != nil {
		slog.Warn("primary provider not configured, falling back to first registered", "provider", cfg.PrimaryProvider)
	}

	// Initialize services
	orders := services.NewOrderStore(app)
	rec := reconcile.New(orders)

	// Push path: every gateway notification channel feeds the reconciler.
	for _, provider := range registry.Providers() {
		gw, err := registry.Get(provider)
		if err != nil {
			continue
		}
		ch := make(chan *status.Transaction, 16)
		gw.SetTransactionChannel(ch)
		go rec.Listen(ctx, ch)
	}

	// Initialize PubNub publisher for storefront paid notifications
	var pn *pubnub.PubNub
	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUUID))
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		pn = pubnub.NewPubNub(pnConfig)
	}

	paymentService := services.NewPaymentService(
		ctx,
		redisClient,
		registry,
		rec,
		orders,
		pn,
		cfg.PubNubOrderChannel,
		cfg.PaymentTimeout,
		cfg.PollInterval,
	)

	// Initialize handlers
	limiter := security.NewRateLimiter(redisClient, cfg.WebhookRateLimit, time.Minute)
	paymentHandler := handlers.NewPaymentHandler(app, paymentService, orders, cfg.WebhookSecret, cfg.WebhookTokenHash, limiter)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Monitoring
	if cfg.EnableMetrics {
		monitoring.NewMonitor(redisClient)
		go monitoring.ServeMetrics(cfg.MetricsPort)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel, registry)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Payment endpoints
		e.Router.POST("/api/v1/payment/generate-khqr", paymentHandler.GenerateKHQR)
		e.Router.GET("/api/v1/payment/{orderId}/status", paymentHandler.CheckPaymentStatus)
		e.Router.GET("/api/v1/payment/{orderId}/session", paymentHandler.GetPaymentSession)

		// Provider webhooks
		e.Router.POST("/api/v1/payment/webhook/{provider}", paymentHandler.HandleWebhook)

		// Test endpoint for payment simulation
		if cfg.Environment == "development" {
			e.Router.POST("/api/v1/test/create-order", paymentHandler.CreateTestOrder)
			e.Router.POST("/api/v1/test/simulate-payment", paymentHandler.SimulatePayment)
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc, registry *gateway.Registry) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	registry.Close(shutdownCtx)

	cancel()
}
