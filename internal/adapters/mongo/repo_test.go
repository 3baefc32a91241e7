package mongo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	mongoadapter "github.com/robertarktes/event-sphere/internal/adapters/mongo"
	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/robertarktes/event-sphere/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func startMongo(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "mongodb")
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(endpoint))
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect(ctx) })

	db := client.Database("eventsphere_test")
	require.NoError(t, mongoadapter.EnsureIndexes(ctx, db))
	return db
}

func TestEventRepository_QueryPaginates(t *testing.T) {
	db := startMongo(t)
	ctx := context.Background()
	repo := mongoadapter.NewEventRepository(db, observability.NewNopLogger())
	categories := mongoadapter.NewCategoryRepository(db)

	music, err := categories.FindOrCreate(ctx, "Music", "org-1", time.Now())
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		ev := domain.Event{
			ID:          fmt.Sprintf("ev-%d", i),
			Title:       fmt.Sprintf("Concert %d", i),
			StartAt:     base.Add(48 * time.Hour),
			EndAt:       base.Add(50 * time.Hour),
			Price:       10,
			CategoryID:  music.ID,
			OrganizerID: "org-1",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:   base,
		}
		require.NoError(t, repo.Create(ctx, ev))
	}
	require.NoError(t, repo.Create(ctx, domain.Event{
		ID: "other", Title: "Workshop", StartAt: base, EndAt: base, IsFree: true,
		OrganizerID: "org-2", CreatedAt: base.Add(time.Hour), UpdatedAt: base,
	}))

	first, err := repo.Query(ctx, domain.EventQuery{Query: "Concert", Limit: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 7, first.Total)
	assert.Equal(t, 3, first.TotalPages)
	require.Len(t, first.Data, 3)
	assert.Equal(t, "ev-6", first.Data[0].ID)
	assert.Equal(t, "Music", first.Data[0].Category.Name)
	assert.Equal(t, "ev-4", first.NextCursor)

	second, err := repo.Query(ctx, domain.EventQuery{Query: "Concert", Limit: 3, Page: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Data, 3)
	assert.Equal(t, "ev-3", second.Data[0].ID)

	skipped, err := repo.Query(ctx, domain.EventQuery{Query: "Concert", Limit: 3, Page: 3})
	require.NoError(t, err)
	require.Len(t, skipped.Data, 1)
	assert.Equal(t, "ev-0", skipped.Data[0].ID)
	assert.Empty(t, skipped.NextCursor)

	related, err := repo.Query(ctx, domain.EventQuery{CategoryID: music.ID, ExcludeID: "ev-6", Limit: 50})
	require.NoError(t, err)
	assert.EqualValues(t, 6, related.Total)
}

func TestOrderRepository_CompleteIsConditional(t *testing.T) {
	db := startMongo(t)
	ctx := context.Background()
	repo := mongoadapter.NewOrderRepository(db)

	now := time.Now().UTC()
	order := domain.NewPendingOrder(domain.Event{ID: "ev-1", Price: 12.5}, "buyer-1", "USD", now)
	require.NoError(t, repo.Create(ctx, order))
	require.NoError(t, repo.AttachSession(ctx, order.ID, "cs_1", now))

	session := domain.CheckoutSession{ID: "cs_1", AmountTotal: 1250, Currency: "usd", Paid: true}
	won, err := repo.Complete(ctx, order.ID, session, now)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.Complete(ctx, order.ID, session, now)
	require.NoError(t, err)
	assert.False(t, won)

	cancelled, err := repo.Cancel(ctx, order.ID, now)
	require.NoError(t, err)
	assert.False(t, cancelled)

	got, err := repo.GetBySession(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, got.Status)
	assert.EqualValues(t, 1250, got.Amount)
}

func TestOrderRepository_CompleteAfterCancel(t *testing.T) {
	db := startMongo(t)
	ctx := context.Background()
	repo := mongoadapter.NewOrderRepository(db)

	now := time.Now().UTC()
	order := domain.NewPendingOrder(domain.Event{ID: "ev-2", Price: 20}, "buyer-2", "usd", now)
	require.NoError(t, repo.Create(ctx, order))
	require.NoError(t, repo.AttachSession(ctx, order.ID, "cs_2", now))

	cancelled, err := repo.Cancel(ctx, order.ID, now)
	require.NoError(t, err)
	require.True(t, cancelled)

	won, err := repo.Complete(ctx, order.ID, domain.CheckoutSession{ID: "cs_2", AmountTotal: 2000, Currency: "usd", Paid: true}, now)
	require.NoError(t, err)
	assert.True(t, won)

	got, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, got.Status)
}

func TestNotificationRepository_OwnerScoped(t *testing.T) {
	db := startMongo(t)
	ctx := context.Background()
	repo := mongoadapter.NewNotificationRepository(db)

	n := domain.Notification{ID: "n-1", UserID: "u-1", Type: domain.NotificationTicketPurchased, Message: "hi", CreatedAt: time.Now()}
	require.NoError(t, repo.Insert(ctx, n))
	require.NoError(t, repo.Insert(ctx, n))

	err := repo.MarkRead(ctx, "u-2", "n-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.MarkRead(ctx, "u-1", "n-1"))
	unread, err := repo.ListByUser(ctx, "u-1", true)
	require.NoError(t, err)
	assert.Empty(t, unread)

	assert.ErrorIs(t, repo.Delete(ctx, "u-2", "n-1"), domain.ErrNotFound)
	assert.NoError(t, repo.Delete(ctx, "u-1", "n-1"))
}
