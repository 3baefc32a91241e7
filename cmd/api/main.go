package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-sphere/internal/adapters/crdb"
	"github.com/robertarktes/event-sphere/internal/adapters/gcs"
	mongoadapter "github.com/robertarktes/event-sphere/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/event-sphere/internal/adapters/redis"
	stripeadapter "github.com/robertarktes/event-sphere/internal/adapters/stripe"
	"github.com/robertarktes/event-sphere/internal/auth"
	"github.com/robertarktes/event-sphere/internal/config"
	httphandler "github.com/robertarktes/event-sphere/internal/http"
	"github.com/robertarktes/event-sphere/internal/idempotency"
	"github.com/robertarktes/event-sphere/internal/observability"
	"github.com/robertarktes/event-sphere/internal/ratelimit"
	"github.com/robertarktes/event-sphere/internal/service"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Require("MONGO_URI", "CRDB_DSN", "REDIS_ADDR", "STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "GCS_BUCKET", "AUTH"); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx := context.Background()
	shutdown, err := observability.SetupOTel(ctx, cfg.OTLPEndpoint, "eventsphere-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger(cfg.LogLevel)

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	ledger := crdb.NewRepository(pool)
	if err := ledger.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate crdb: %v", err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database(cfg.MongoDB)
	if err := mongoadapter.EnsureIndexes(ctx, mongoDB); err != nil {
		log.Fatalf("failed to create mongo indexes: %v", err)
	}

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	rl := ratelimit.NewRateLimiter(redisCache, logger)

	objects, err := gcs.NewClient(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile, cfg.GCSPublicBaseURL)
	if err != nil {
		log.Fatalf("failed to create storage client: %v", err)
	}
	defer objects.Close()

	var verifier *auth.Verifier
	if cfg.AuthJWKSURL != "" {
		if verifier, err = auth.NewJWKSVerifier(ctx, cfg.AuthJWKSURL); err != nil {
			log.Fatalf("failed to load JWKS: %v", err)
		}
		defer verifier.Close()
	} else {
		if cfg.IsProduction() {
			log.Fatalf("AUTH_JWKS_URL is required in production")
		}
		verifier = auth.NewHMACVerifier(cfg.AuthJWTSecret)
	}

	events := mongoadapter.NewEventRepository(mongoDB, logger)
	categories := mongoadapter.NewCategoryRepository(mongoDB)
	users := mongoadapter.NewUserRepository(mongoDB)
	orders := mongoadapter.NewOrderRepository(mongoDB)
	notifications := mongoadapter.NewNotificationRepository(mongoDB)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)
	payments := stripeadapter.NewGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	svc := httphandler.Services{
		Events:     service.NewEventService(events, categories, orders, objects, logger),
		Categories: service.NewCategoryService(categories, redisCache, logger),
		Users:      service.NewUserService(users, objects, logger),
		Uploads:    service.NewUploadService(objects, events, cfg.UploadMaxBytes, cfg.UploadURLTTL),
		Orders:     service.NewOrderService(events, orders, ledger, payments, audit, logger, cfg.Currency, cfg.AppURL, cfg.PendingOrderTTL),
		// Emails go out from the notification worker; the API only reads.
		Notifications: service.NewNotificationService(notifications, users, nil, nil, logger, cfg.AppURL),
	}
	checks := map[string]httphandler.HealthCheck{
		"mongo": func(ctx context.Context) error { return mongoClient.Ping(ctx, readpref.Primary()) },
		"redis": redisCache.Ping,
	}
	handlers := httphandler.NewHandlers(svc, logger, checks)

	r := httphandler.SetupRouter(handlers, logger, httphandler.RouterConfig{
		Verifier:           verifier,
		RateLimiter:        rl,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Idempotency:        idemp,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", srv.Addr).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
