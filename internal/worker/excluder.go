package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Priya8975/traffic-tracker/internal/ads"
	"github.com/Priya8975/traffic-tracker/internal/engine"
	"github.com/Priya8975/traffic-tracker/internal/metrics"
)

const (
	rateLimitedDelay = time.Second
	circuitOpenDelay = 5 * time.Second
	releaseTimeout   = 5 * time.Second
)

// Limiter gates calls to the ads API.
type Limiter interface {
	Allow(ctx context.Context, customerID string, limit int) bool
}

// Breaker trips after repeated ads API failures for one customer account.
type Breaker interface {
	Allow(ctx context.Context, name string) bool
	RecordSuccess(ctx context.Context, name string)
	RecordFailure(ctx context.Context, name string)
}

// Excluder runs exclusion jobs against the ads manager. Failed attempts are
// retried with backoff. Throttled jobs are deferred and keep their attempt.
type Excluder struct {
	manager   ads.Manager
	queue     *engine.ExclusionQueue
	limiter   Limiter
	rateLimit int
	breaker   Breaker
	logger    *slog.Logger
}

// NewExcluder creates an Excluder. limiter and breaker may be nil.
func NewExcluder(manager ads.Manager, queue *engine.ExclusionQueue, limiter Limiter, rateLimit int, breaker Breaker, logger *slog.Logger) *Excluder {
	return &Excluder{
		manager:   manager,
		queue:     queue,
		limiter:   limiter,
		rateLimit: rateLimit,
		breaker:   breaker,
		logger:    logger,
	}
}

// Run performs one attempt of job.
func (e *Excluder) Run(ctx context.Context, job engine.ExclusionJob) {
	account := e.manager.CustomerID()

	if e.breaker != nil && !e.breaker.Allow(ctx, account) {
		e.deferJob(ctx, job, circuitOpenDelay, "circuit open")
		return
	}
	if e.limiter != nil && !e.limiter.Allow(ctx, account, e.rateLimit) {
		e.deferJob(ctx, job, rateLimitedDelay, "rate limited")
		return
	}

	msg, err := e.manager.AddIPToExclusionList(ctx, job.IPAddress, job.CampaignID, job.ListName)
	if err != nil {
		if e.breaker != nil {
			e.breaker.RecordFailure(ctx, account)
		}
		e.retry(ctx, job, err.Error())
		return
	}
	if e.breaker != nil {
		e.breaker.RecordSuccess(ctx, account)
	}

	metrics.IncExclusionJob("done")
	e.logger.Info("ip excluded",
		"job_id", job.ID,
		"ip", job.IPAddress,
		"campaign_id", job.CampaignID,
		"attempt", job.Attempt,
		"message", msg,
	)
}

// Release puts a job that was claimed but never run back on the queue as
// ready, keeping its attempt.
func (e *Excluder) Release(job engine.ExclusionJob) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if err := e.queue.Defer(ctx, job, 0); err != nil {
		metrics.IncExclusionJob("dropped")
		e.logger.Error("failed to return exclusion job to queue",
			"job_id", job.ID,
			"ip", job.IPAddress,
			"campaign_id", job.CampaignID,
			"error", err,
		)
		return
	}
	metrics.IncExclusionJob("released")
	e.logger.Info("exclusion job returned to queue", "job_id", job.ID, "ip", job.IPAddress)
}

func (e *Excluder) deferJob(ctx context.Context, job engine.ExclusionJob, delay time.Duration, reason string) {
	if err := e.queue.Defer(ctx, job, delay); err != nil {
		metrics.IncExclusionJob("dropped")
		e.logger.Error("failed to defer exclusion job",
			"job_id", job.ID,
			"ip", job.IPAddress,
			"reason", reason,
			"error", err,
		)
		return
	}
	metrics.IncExclusionJob("deferred")
	e.logger.Debug("exclusion job deferred",
		"job_id", job.ID,
		"attempt", job.Attempt,
		"delay", delay,
		"reason", reason,
	)
}

func (e *Excluder) retry(ctx context.Context, job engine.ExclusionJob, reason string) {
	requeued, err := e.queue.Retry(ctx, job)
	if err != nil {
		metrics.IncExclusionJob("dropped")
		e.logger.Error("failed to reschedule exclusion job",
			"job_id", job.ID,
			"reason", reason,
			"error", err,
		)
		return
	}

	if !requeued {
		metrics.IncExclusionJob("dropped")
		e.logger.Error("exclusion job exhausted retries",
			"job_id", job.ID,
			"ip", job.IPAddress,
			"campaign_id", job.CampaignID,
			"attempts", job.Attempt,
			"reason", reason,
		)
		return
	}

	metrics.IncExclusionJob("retried")
	e.logger.Warn("exclusion attempt failed, retrying",
		"job_id", job.ID,
		"attempt", job.Attempt,
		"reason", reason,
	)
}
