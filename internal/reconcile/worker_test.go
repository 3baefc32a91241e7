package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/robertarktes/event-sphere/internal/observability"
	"github.com/robertarktes/event-sphere/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scripted struct {
	batches []service.ReconcileStats
	cutoffs []time.Time
}

func (s *scripted) ReconcileStale(_ context.Context, cutoff time.Time, _ int) (service.ReconcileStats, error) {
	s.cutoffs = append(s.cutoffs, cutoff)
	if len(s.batches) == 0 {
		return service.ReconcileStats{}, nil
	}
	next := s.batches[0]
	s.batches = s.batches[1:]
	return next, nil
}

func newWorker(r Reconciler) *Worker {
	w := NewWorker(r, observability.NewNopLogger(), 30*time.Minute, time.Minute)
	w.batchSize = 2
	w.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return w
}

func TestRunOnceDrainsFullBatches(t *testing.T) {
	r := &scripted{batches: []service.ReconcileStats{
		{Completed: 1, Cancelled: 1},
		{Cancelled: 2},
		{Completed: 1},
	}}
	stats, err := newWorker(r).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, service.ReconcileStats{Completed: 2, Cancelled: 3}, stats)
	require.Len(t, r.cutoffs, 3)
	assert.Equal(t, time.Date(2026, 5, 1, 11, 30, 0, 0, time.UTC), r.cutoffs[0])
}

func TestRunOnceStopsWithoutProgress(t *testing.T) {
	r := &scripted{batches: []service.ReconcileStats{{Skipped: 2}, {Cancelled: 2}}}
	stats, err := newWorker(r).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Skipped)
	assert.Len(t, r.cutoffs, 1)
}
