package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/internlink/internlink/config"
	"github.com/internlink/internlink/pkg/api/handlers"
	"github.com/internlink/internlink/pkg/billing"
	"github.com/internlink/internlink/pkg/cache"
	"github.com/internlink/internlink/pkg/database"
	"github.com/internlink/internlink/pkg/jobs"
	"github.com/internlink/internlink/pkg/logger"
	"github.com/internlink/internlink/pkg/metrics"
	custommiddleware "github.com/internlink/internlink/pkg/middleware"
	"github.com/internlink/internlink/pkg/store"
	"github.com/internlink/internlink/pkg/student"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg := config.Load()
	log.Printf("🔧 Configuration loaded (environment: %s)", cfg.APIEnvironment)

	appLogger := logger.New(cfg.LogLevel)

	// Initialize Sentry for error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 1.0,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Printf("⚠️  Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s)", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Printf("ℹ️  Sentry disabled (no DSN configured)")
	}

	// Initialize database
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := database.NewClient(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize Redis cache
	redisClient, err := cache.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize storage and run migrations
	billingStore := store.New(db.Pool)
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	err = billingStore.Migrate(ctx)
	cancel()
	if err != nil {
		log.Fatalf("❌ Failed to run migrations: %v", err)
	}

	// Initialize Prometheus metrics
	prometheusMetrics := metrics.New()

	// Initialize services
	billingService := billing.NewService(billingStore, &billing.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Prices: billing.PlanPrices{
			Starter:                cfg.StripePriceStarter,
			Pro:                    cfg.StripePricePro,
			GrowthLegacy:           cfg.StripePriceGrowthLegacy,
			VerifiedEmployerLegacy: cfg.StripePriceVerifiedEmployerOld,
		},
		StudentPremiumPriceID: cfg.StudentPremiumPriceID,
		SuccessURL:            cfg.FrontendURL + "/dashboard/billing?checkout=success",
		CancelURL:             cfg.FrontendURL + "/pricing?checkout=canceled",
	}, appLogger.With("component", "billing"), prometheusMetrics)

	studentService := student.NewService(billingStore, redisClient, appLogger.With("component", "student"), prometheusMetrics)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Initialize rate limiters
	globalRateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	webhookRateLimiter := custommiddleware.NewRateLimiter(100, 20) // Stripe retries aggressively
	checkoutRateLimiter := custommiddleware.NewRateLimiter(10, 5)

	// Global middleware
	e.Use(middleware.Recover())

	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true, // Repanic after capturing so Recover still handles it
		}))
	}

	e.Use(prometheusMetrics.Middleware())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowedOrigins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowCredentials: true,
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
		},
	}))

	e.Use(middleware.Secure())
	e.Use(globalRateLimiter.RateLimitMiddleware())

	// Health check endpoints (public)
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"name":        "InternLink Billing API",
			"status":      "running",
			"environment": cfg.APIEnvironment,
			"timestamp":   time.Now().Unix(),
		})
	})

	e.GET("/health", func(c echo.Context) error {
		if err := db.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status":   "unhealthy",
				"database": "down",
			})
		}

		if err := redisClient.Redis.Ping(c.Request().Context()).Err(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"cache":  "down",
			})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"status":   "healthy",
			"database": "up",
			"cache":    "up",
		})
	})

	// Prometheus metrics endpoint (public)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Initialize handlers
	billingHandler := handlers.NewBillingHandler(billingService, prometheusMetrics)
	studentHandler := handlers.NewStudentHandler(studentService, billingService, prometheusMetrics)
	adminHandler := handlers.NewAdminHandler(billingStore, billingService)

	v1 := e.Group("/api/v1")

	// Stripe webhook (public, signature-verified, own rate limit)
	v1.POST("/webhook/stripe", billingHandler.HandleWebhook, webhookRateLimiter.RateLimitMiddleware())

	// Pricing (public)
	v1.GET("/billing/pricing", billingHandler.GetPricing)

	// Authenticated billing routes
	billingGroup := v1.Group("/billing", custommiddleware.RequireUser())
	billingGroup.POST("/checkout", billingHandler.CreateCheckout, checkoutRateLimiter.RateLimitMiddleware())
	billingGroup.POST("/portal", billingHandler.CreatePortalSession)

	// Student premium routes
	studentGroup := v1.Group("/student/premium", custommiddleware.RequireUser())
	studentGroup.GET("/entitlements", studentHandler.GetEntitlements)
	studentGroup.POST("/trial", studentHandler.StartTrial)
	studentGroup.POST("/checkout", studentHandler.CreateCheckout, checkoutRateLimiter.RateLimitMiddleware())

	// Admin routes
	adminGroup := v1.Group("/admin", custommiddleware.RequireUser(), custommiddleware.RequireAdmin())
	adminGroup.POST("/employers/beta", adminHandler.SetBetaEmployer)

	// Start cron jobs
	cronManager := jobs.NewCronManager(billingService, studentService, prometheusMetrics, appLogger.With("component", "cron"))
	if err := cronManager.SetupJobs(); err != nil {
		log.Fatalf("❌ Failed to setup cron jobs: %v", err)
	}
	cronManager.Start()

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Printf("🚀 InternLink Billing API starting on %s", address)
	log.Printf("🛡️  Rate limiting: %d req/min (burst: %d)", cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	log.Printf("⏰ Cron jobs: Daily 3AM (employer reconciliation), hourly (trial expiry)")

	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	cronManager.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}
