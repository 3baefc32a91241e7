// Package reconcile periodically settles orders whose checkout was
// abandoned or whose payment webhook never arrived.
package reconcile

import (
	"context"
	"time"

	"github.com/robertarktes/event-sphere/internal/observability"
	"github.com/robertarktes/event-sphere/internal/service"
)

const defaultBatchSize = 100

type Reconciler interface {
	ReconcileStale(ctx context.Context, cutoff time.Time, limit int) (service.ReconcileStats, error)
}

type Worker struct {
	orders    Reconciler
	logger    observability.Logger
	ttl       time.Duration
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewWorker settles orders that have been pending longer than ttl, checking
// every interval.
func NewWorker(orders Reconciler, logger observability.Logger, ttl, interval time.Duration) *Worker {
	return &Worker{
		orders:    orders,
		logger:    logger,
		ttl:       ttl,
		interval:  interval,
		batchSize: defaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.WithFields(map[string]interface{}{
		"ttl":      w.ttl.String(),
		"interval": w.interval.String(),
	}).Info("reconcile worker started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.WithError(err).Error("reconcile pass failed")
			}
		}
	}
}

// RunOnce settles stale orders batch by batch. It stops early when a batch
// made no progress, leaving the skipped orders for the next pass.
func (w *Worker) RunOnce(ctx context.Context) (service.ReconcileStats, error) {
	var total service.ReconcileStats
	cutoff := w.now().Add(-w.ttl)
	for {
		stats, err := w.orders.ReconcileStale(ctx, cutoff, w.batchSize)
		total.Completed += stats.Completed
		total.Cancelled += stats.Cancelled
		total.Skipped += stats.Skipped
		if err != nil {
			return total, err
		}
		settled := stats.Completed + stats.Cancelled
		if settled+stats.Skipped < w.batchSize || settled == 0 {
			break
		}
	}
	if total.Completed+total.Cancelled+total.Skipped > 0 {
		w.logger.WithFields(map[string]interface{}{
			"completed": total.Completed,
			"cancelled": total.Cancelled,
			"skipped":   total.Skipped,
		}).Info("stale orders reconciled")
	}
	return total, nil
}
