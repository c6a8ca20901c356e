package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spkr/internal/handlers"
	"spkr/internal/moderation"
	"spkr/internal/payment"
	"spkr/internal/publisher"
	"spkr/internal/settings"
	"spkr/internal/submission"
	"spkr/pkg/cache"
	"spkr/pkg/config"
	"spkr/pkg/database"
	"spkr/pkg/jwt"
	"spkr/pkg/logger"
	"spkr/pkg/middleware"
	"spkr/pkg/queue"
	"spkr/pkg/s3"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// @title           Submission Pipeline API
// @version         1.0
// @description     Moderated submission intake with publishing to an external media platform and paid promotion via Stripe.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if cfg.JWTSecret == "your-secret-key-change-in-production" || cfg.JWTSecret == "" {
		panic("JWT_SECRET must be set in environment variables")
	}

	log := logger.New()
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Error("Failed to connect to database: %v", err)
		panic(err)
	}

	// Migrations are handled by goose - see cmd/migrate/main.go

	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		log.Error("Failed to connect to redis: %v", err)
		panic(err)
	}

	s3Client, err := s3.NewClient(cfg)
	if err != nil {
		log.Error("Failed to create S3 client: %v", err)
		panic(err)
	}

	queueClient, err := queue.NewRabbitMQClient(cfg, log)
	if err != nil {
		log.Error("Failed to connect to rabbitmq: %v", err)
		panic(err)
	}
	defer queueClient.Close()

	jwtService := jwt.NewService(cfg.JWTSecret)

	hashIndex := moderation.NewHashIndex(db)
	engine := moderation.NewEngine(hashIndex)
	settingsProvider := settings.NewProvider(db)

	submissionRepo := submission.NewRepository(db)
	submissionService := submission.NewService(submissionRepo, s3Client, engine, settingsProvider, queueClient, log)

	platformClient := publisher.NewGraphClient(cfg)
	locker := publisher.NewRedisLocker(redisClient)
	orchestrator := publisher.NewOrchestrator(submissionRepo, platformClient, locker, hashIndex, queueClient, log, cfg)

	paymentRepo := payment.NewRepository(db)
	gateway := payment.NewStripeGateway(cfg.StripeSecretKey)
	paymentService := payment.NewService(paymentRepo, submissionRepo, gateway, queueClient, log, cfg)

	submissionHandler := handlers.NewSubmissionHandler(submissionService, log)
	adminHandler := handlers.NewAdminHandler(submissionService, orchestrator, log)
	paymentHandler := handlers.NewPaymentHandler(paymentService, log)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "Stripe-Signature"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * 3600,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		// Public intake, rate limited per client IP
		intake := api.Group("")
		intake.Use(middleware.RateLimitMiddleware(redisClient, 10, time.Minute))
		{
			intake.POST("/submissions", submissionHandler.CreateSubmission)
		}

		api.GET("/submissions/:id", submissionHandler.GetSubmission)
		api.POST("/submissions/:id/checkout", paymentHandler.CreateCheckout)
		api.POST("/webhooks/stripe", paymentHandler.StripeWebhook)

		admin := api.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtService))
		{
			admin.GET("/submissions", adminHandler.ListReviewQueue)
			admin.GET("/submissions/:id/moderation", submissionHandler.GetModerationDetail)
			admin.GET("/submissions/:id/payment", paymentHandler.GetPayment)
			admin.POST("/submissions/:id/approve", adminHandler.ApproveSubmission)
			admin.POST("/submissions/:id/reject", adminHandler.RejectSubmission)
			admin.POST("/submissions/:id/publish", adminHandler.PublishSubmission)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Info("API server starting on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Failed to start server: %v", err)
			panic(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}

	// Let in-flight publish attempts record their outcome before exit.
	orchestrator.Shutdown()

	log.Info("Server exited")
}
