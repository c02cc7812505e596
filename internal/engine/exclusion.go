package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	ExclusionQueueKey     = "exclusion_queue"
	DefaultMaxAttempts    = 5
	defaultRetryBaseDelay = time.Second
)

// ExclusionJob asks for one IP to be added to a campaign's exclusion list.
type ExclusionJob struct {
	ID          string `json:"id"`
	IPAddress   string `json:"ip_address"`
	CampaignID  string `json:"campaign_id"`
	ListName    string `json:"list_name"`
	EventID     int64  `json:"event_id"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
}

// ExclusionQueue is a Redis sorted set of jobs scored by the time they become
// ready to run.
type ExclusionQueue struct {
	client    *redis.Client
	logger    *slog.Logger
	baseDelay time.Duration
}

func NewExclusionQueue(client *redis.Client, logger *slog.Logger) *ExclusionQueue {
	return &ExclusionQueue{
		client:    client,
		logger:    logger,
		baseDelay: defaultRetryBaseDelay,
	}
}

// Enqueue queues a first attempt for the given IP and campaign.
func (q *ExclusionQueue) Enqueue(ctx context.Context, eventID int64, ip, campaignID, listName string) (*ExclusionJob, error) {
	job := ExclusionJob{
		ID:          uuid.NewString(),
		IPAddress:   ip,
		CampaignID:  campaignID,
		ListName:    listName,
		EventID:     eventID,
		Attempt:     1,
		MaxAttempts: DefaultMaxAttempts,
	}
	if err := q.schedule(ctx, job, time.Now()); err != nil {
		return nil, err
	}

	q.logger.Info("exclusion job queued",
		"job_id", job.ID,
		"event_id", eventID,
		"ip", ip,
		"campaign_id", campaignID,
	)
	return &job, nil
}

// Retry reschedules job with exponential backoff. It returns false when the
// job has used up its attempts and was not requeued.
func (q *ExclusionQueue) Retry(ctx context.Context, job ExclusionJob) (bool, error) {
	if job.Attempt >= job.MaxAttempts {
		return false, nil
	}

	delay := q.backoff(job.Attempt)
	job.Attempt++
	if err := q.schedule(ctx, job, time.Now().Add(delay)); err != nil {
		return false, err
	}
	return true, nil
}

// Defer reschedules job to run after delay without spending an attempt.
func (q *ExclusionQueue) Defer(ctx context.Context, job ExclusionJob, delay time.Duration) error {
	return q.schedule(ctx, job, time.Now().Add(delay))
}

// backoff returns baseDelay * 2^(attempt-1).
func (q *ExclusionQueue) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return q.baseDelay * time.Duration(1<<uint(attempt-1))
}

func (q *ExclusionQueue) schedule(ctx context.Context, job ExclusionJob, at time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling exclusion job: %w", err)
	}

	err = q.client.ZAdd(ctx, ExclusionQueueKey, redis.Z{
		Score:  float64(at.UnixMicro()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("queuing exclusion job to redis: %w", err)
	}
	return nil
}

// ClaimReady removes and returns up to limit jobs whose ready time is not
// after now. A job removed by another dispatcher is skipped.
func (q *ExclusionQueue) ClaimReady(ctx context.Context, now time.Time, limit int64) ([]ExclusionJob, error) {
	results, err := q.client.ZRangeByScore(ctx, ExclusionQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMicro(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("polling exclusion queue: %w", err)
	}

	jobs := make([]ExclusionJob, 0, len(results))
	for _, member := range results {
		removed, err := q.client.ZRem(ctx, ExclusionQueueKey, member).Result()
		if err != nil {
			q.logger.Error("failed to remove job from queue", "error", err)
			continue
		}
		if removed == 0 {
			continue
		}

		var job ExclusionJob
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			q.logger.Error("failed to unmarshal exclusion job", "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Depth returns the number of jobs waiting in the queue.
func (q *ExclusionQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, ExclusionQueueKey).Result()
}
