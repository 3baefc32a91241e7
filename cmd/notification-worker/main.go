package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-sphere/internal/adapters/email"
	mongoadapter "github.com/robertarktes/event-sphere/internal/adapters/mongo"
	"github.com/robertarktes/event-sphere/internal/adapters/rabbit"
	"github.com/robertarktes/event-sphere/internal/config"
	"github.com/robertarktes/event-sphere/internal/notify"
	"github.com/robertarktes/event-sphere/internal/observability"
	"github.com/robertarktes/event-sphere/internal/service"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const prefetch = 16

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Require("MONGO_URI", "RABBIT_URL"); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg.OTLPEndpoint, "eventsphere-notification-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database(cfg.MongoDB)
	if err := mongoadapter.EnsureIndexes(ctx, mongoDB); err != nil {
		log.Fatalf("failed to create mongo indexes: %v", err)
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, notify.Queue, notify.RoutingKeys, prefetch)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()
	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to consume: %v", err)
	}

	mailer := email.NewMailer(email.MailerConfig{
		Provider:    cfg.MailProvider,
		FromAddress: cfg.MailFrom,
		FromName:    cfg.MailFromName,
		SES: email.SESConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		},
	}, logger)

	notifications := service.NewNotificationService(
		mongoadapter.NewNotificationRepository(mongoDB),
		mongoadapter.NewUserRepository(mongoDB),
		mailer,
		email.NewTemplateRenderer(),
		logger,
		cfg.AppURL,
	)

	notify.NewWorker(notifications, logger).Run(ctx, deliveries)
	logger.Info("Shutdown notification worker")
}
