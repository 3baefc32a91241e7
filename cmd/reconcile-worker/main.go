package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/event-sphere/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/event-sphere/internal/adapters/mongo"
	stripeadapter "github.com/robertarktes/event-sphere/internal/adapters/stripe"
	"github.com/robertarktes/event-sphere/internal/config"
	"github.com/robertarktes/event-sphere/internal/observability"
	"github.com/robertarktes/event-sphere/internal/reconcile"
	"github.com/robertarktes/event-sphere/internal/service"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Require("MONGO_URI", "CRDB_DSN", "STRIPE_SECRET_KEY"); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg.OTLPEndpoint, "eventsphere-reconcile-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

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

	orders := service.NewOrderService(
		mongoadapter.NewEventRepository(mongoDB, logger),
		mongoadapter.NewOrderRepository(mongoDB),
		ledger,
		stripeadapter.NewGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret),
		mongoadapter.NewAuditLogger(mongoDB, logger),
		logger,
		cfg.Currency,
		cfg.AppURL,
		cfg.PendingOrderTTL,
	)

	reconcile.NewWorker(orders, logger, cfg.PendingOrderTTL, cfg.ReconcileInterval).Run(ctx)
	logger.Info("Shutdown reconcile worker")
}
