package mongo

import (
	"testing"
	"time"

	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestBuildEventFilter(t *testing.T) {
	t.Run("empty query matches everything", func(t *testing.T) {
		assert.Empty(t, buildEventFilter(domain.EventQuery{}))
	})

	t.Run("title prefix range", func(t *testing.T) {
		f := buildEventFilter(domain.EventQuery{Query: "Jazz"})
		assert.Equal(t, bson.M{"$gte": "Jazz", "$lte": "Jazz" + prefixSentinel}, f["title"])
	})

	t.Run("category organizer and exclusion", func(t *testing.T) {
		f := buildEventFilter(domain.EventQuery{CategoryID: "cat-1", OrganizerID: "org-1", ExcludeID: "ev-1"})
		assert.Equal(t, "cat-1", f["category_id"])
		assert.Equal(t, "org-1", f["organizer_id"])
		assert.Equal(t, bson.M{"$ne": "ev-1"}, f["_id"])
		assert.NotContains(t, f, "title")
	})
}

func TestAfterCursor(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := bson.M{"category_id": "cat-1"}

	f := afterCursor(base, "ev-9", at)

	and, ok := f["$and"].(bson.A)
	require.True(t, ok)
	require.Len(t, and, 2)
	assert.Equal(t, base, and[0])

	or := and[1].(bson.M)["$or"].(bson.A)
	require.Len(t, or, 2)
	assert.Equal(t, bson.M{"created_at": bson.M{"$lt": at}}, or[0])
	assert.Equal(t, bson.M{"created_at": at, "_id": bson.M{"$lt": "ev-9"}}, or[1])
}

func TestUniqueIDs(t *testing.T) {
	events := []domain.Event{
		{CategoryID: "a"}, {CategoryID: "b"}, {CategoryID: "a"}, {CategoryID: ""},
	}
	got := uniqueIDs(events, func(e domain.Event) string { return e.CategoryID })
	assert.Equal(t, []string{"a", "b"}, got)
}
