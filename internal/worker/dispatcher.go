package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Priya8975/traffic-tracker/internal/engine"
	"github.com/Priya8975/traffic-tracker/internal/metrics"
)

// Dispatcher continuously polls the exclusion queue and sends ready jobs to
// the worker pool.
type Dispatcher struct {
	queue        *engine.ExclusionQueue
	pool         *Pool
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int64
}

// NewDispatcher creates a dispatcher that pulls from the Redis sorted set.
func NewDispatcher(queue *engine.ExclusionQueue, pool *Pool, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:        queue,
		pool:         pool,
		logger:       logger,
		pollInterval: 250 * time.Millisecond,
		batchSize:    10,
	}
}

// Start begins the polling loop. It runs until the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("dispatcher started")

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *Dispatcher) poll(ctx context.Context) {
	jobs, err := d.queue.ClaimReady(ctx, time.Now(), d.batchSize)
	if err != nil {
		d.logger.Error("failed to poll exclusion queue", "error", err)
		return
	}

	for i, job := range jobs {
		if !d.pool.Submit(ctx, job) {
			d.release(ctx, jobs[i:])
			return
		}
	}
}

// release puts claimed jobs the pool did not accept back on the queue.
func (d *Dispatcher) release(ctx context.Context, jobs []engine.ExclusionJob) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	for _, job := range jobs {
		if err := d.queue.Defer(ctx, job, 0); err != nil {
			metrics.IncExclusionJob("dropped")
			d.logger.Error("failed to return exclusion job to queue",
				"job_id", job.ID,
				"ip", job.IPAddress,
				"campaign_id", job.CampaignID,
				"error", err,
			)
			continue
		}
		metrics.IncExclusionJob("released")
	}
	d.logger.Info("returned unsubmitted exclusion jobs to queue", "count", len(jobs))
}
