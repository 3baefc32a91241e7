package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-sphere/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/event-sphere/internal/adapters/mongo"
	"github.com/robertarktes/event-sphere/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/event-sphere/internal/adapters/redis"
	stripeadapter "github.com/robertarktes/event-sphere/internal/adapters/stripe"
	"github.com/robertarktes/event-sphere/internal/auth"
	"github.com/robertarktes/event-sphere/internal/domain"
	httphandler "github.com/robertarktes/event-sphere/internal/http"
	"github.com/robertarktes/event-sphere/internal/idempotency"
	"github.com/robertarktes/event-sphere/internal/notify"
	"github.com/robertarktes/event-sphere/internal/observability"
	"github.com/robertarktes/event-sphere/internal/outbox"
	"github.com/robertarktes/event-sphere/internal/ratelimit"
	"github.com/robertarktes/event-sphere/internal/service"
	"github.com/robertarktes/event-sphere/internal/service/servicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const jwtSecret = "integration-secret"

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port, scheme string) string {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)
	if scheme == "" {
		return host + ":" + mapped.Port()
	}
	return scheme + host + ":" + mapped.Port()
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Email: userID + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func call(t *testing.T, method, url, token, body string, headers map[string]string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func TestIntegration_FreeCheckoutNotifiesBuyer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	crdbAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "cockroachdb/cockroach:v24.1.1",
		Cmd:          []string{"start-single-node", "--insecure"},
		ExposedPorts: []string{"26257/tcp", "8080/tcp"},
		WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
	}, "26257", "")
	mongoURI := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(2 * time.Minute),
	}, "27017", "mongodb://")
	redisAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}, "6379", "")
	rabbitURL := startContainer(t, testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-management",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		WaitingFor:   wait.ForHTTP("/api/health/checks/alarms").WithPort("15672").WithBasicAuth("guest", "guest"),
	}, "5672", "amqp://guest:guest@")

	logger := observability.NewLogger("error")

	pool, err := pgxpool.New(ctx, "postgresql://root@"+crdbAddr+"/defaultdb?sslmode=disable")
	require.NoError(t, err)
	defer pool.Close()
	ledger := crdb.NewRepository(pool)
	require.NoError(t, ledger.Migrate(ctx))

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	require.NoError(t, err)
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("eventsphere_it")
	require.NoError(t, mongoadapter.EnsureIndexes(ctx, mongoDB))

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: redisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)

	rabbitConn, err := amqp.Dial(rabbitURL + "/")
	require.NoError(t, err)
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	require.NoError(t, err)
	consumer, err := rabbit.NewConsumer(rabbitConn, notify.Queue, notify.RoutingKeys, 4)
	require.NoError(t, err)

	events := mongoadapter.NewEventRepository(mongoDB, logger)
	users := mongoadapter.NewUserRepository(mongoDB)
	orders := mongoadapter.NewOrderRepository(mongoDB)
	notifications := mongoadapter.NewNotificationRepository(mongoDB)
	categories := mongoadapter.NewCategoryRepository(mongoDB)
	objects := &servicetest.Objects{}
	mailer := &servicetest.Mailer{}

	now := time.Now().UTC()
	require.NoError(t, events.Create(ctx, domain.Event{
		ID: "ev-free", Title: "Community Jam", IsFree: true, OrganizerID: "org-1",
		StartAt: now.Add(24 * time.Hour), EndAt: now.Add(26 * time.Hour), CreatedAt: now, UpdatedAt: now,
	}))

	notifySvc := service.NewNotificationService(notifications, users, mailer, servicetest.Renderer{}, logger, "https://app.test")
	svc := httphandler.Services{
		Events:        service.NewEventService(events, categories, orders, objects, logger),
		Categories:    service.NewCategoryService(categories, redisCache, logger),
		Users:         service.NewUserService(users, objects, logger),
		Uploads:       service.NewUploadService(objects, events, 1<<20, time.Minute),
		Orders:        service.NewOrderService(events, orders, ledger, stripeadapter.NewGateway("sk_test_unused", "whsec_unused"), mongoadapter.NewAuditLogger(mongoDB, logger), logger, "usd", "https://app.test", 30*time.Minute),
		Notifications: notifySvc,
	}
	router := httphandler.SetupRouter(httphandler.NewHandlers(svc, logger, nil), logger, httphandler.RouterConfig{
		Verifier:           auth.NewHMACVerifier(jwtSecret),
		RateLimiter:        ratelimit.NewRateLimiter(redisCache, logger),
		RateLimitPerMinute: 100,
		Idempotency:        idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour),
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	buyer := bearer(t, "buyer-1")
	status, _ := call(t, http.MethodGet, srv.URL+"/api/v1/users/me", buyer, "", nil)
	require.Equal(t, http.StatusOK, status)

	key := map[string]string{"Idempotency-Key": "integration-checkout-1"}
	status, first := call(t, http.MethodPost, srv.URL+"/api/v1/checkout", buyer, `{"event_id":"ev-free"}`, key)
	require.Equal(t, http.StatusCreated, status, string(first))

	var res service.CheckoutResult
	require.NoError(t, json.Unmarshal(first, &res))
	assert.Equal(t, domain.OrderCompleted, res.Order.Status)
	assert.Zero(t, res.Order.Amount)

	status, replay := call(t, http.MethodPost, srv.URL+"/api/v1/checkout", buyer, `{"event_id":"ev-free"}`, key)
	require.Equal(t, http.StatusCreated, status)
	assert.JSONEq(t, string(first), string(replay))

	payment, err := ledger.GetPayment(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.ID, payment.OrderID)

	relayed, err := outbox.NewPublisher(ledger, rabbitPub, logger, time.Second).Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, relayed)

	deliveries, err := consumer.Consume(ctx)
	require.NoError(t, err)
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go notify.NewWorker(notifySvc, logger).Run(workerCtx, deliveries)

	require.Eventually(t, func() bool {
		status, body := call(t, http.MethodGet, srv.URL+"/api/v1/notifications", buyer, "", nil)
		return status == http.StatusOK && bytes.Contains(body, []byte(string(domain.NotificationTicketPurchased)))
	}, 30*time.Second, 250*time.Millisecond)
	require.Eventually(t, func() bool { return mailer.Count() == 1 }, 10*time.Second, 100*time.Millisecond)

	status, body := call(t, http.MethodGet, srv.URL+"/api/v1/orders/"+res.Order.ID, bearer(t, "someone-else"), "", nil)
	assert.Equal(t, http.StatusForbidden, status, string(body))
}
