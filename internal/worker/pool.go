package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Priya8975/traffic-tracker/internal/engine"
)

// JobRunner processes one exclusion job.
type JobRunner interface {
	Run(ctx context.Context, job engine.ExclusionJob)
}

// Releaser takes back jobs the pool accepted but did not run.
type Releaser interface {
	Release(job engine.ExclusionJob)
}

// Pool manages a fixed number of worker goroutines that process exclusion jobs.
type Pool struct {
	numWorkers int
	jobs       chan engine.ExclusionJob
	runner     JobRunner
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a worker pool with the given number of workers.
func NewPool(numWorkers int, runner JobRunner, logger *slog.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan engine.ExclusionJob, numWorkers*2),
		runner:     runner,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed. Jobs received after ctx is cancelled are released
// instead of run.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit hands a job to the workers, giving up if ctx is cancelled first.
func (p *Pool) Submit(ctx context.Context, job engine.ExclusionJob) bool {
	select {
	case p.jobs <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop closes the jobs channel and waits for all workers to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for job := range p.jobs {
		if ctx.Err() != nil {
			p.release(job)
			continue
		}
		p.runner.Run(ctx, job)
	}
}

func (p *Pool) release(job engine.ExclusionJob) {
	if r, ok := p.runner.(Releaser); ok {
		r.Release(job)
		return
	}
	p.logger.Warn("exclusion job abandoned on shutdown",
		"job_id", job.ID,
		"ip", job.IPAddress,
		"campaign_id", job.CampaignID,
	)
}
