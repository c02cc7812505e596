package engine

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Circuit states
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

const (
	defaultFailureThreshold = 5
	defaultCooldown         = 30 * time.Second
)

// CircuitBreaker guards calls to the ads API per customer account, with its
// state kept in a Redis hash so every worker sees the same circuit.
//
// Closed counts consecutive failures and opens at the threshold. Open rejects
// calls until the cooldown has passed, then lets a probe through as half-open.
// A probe success closes the circuit and a probe failure reopens it.
type CircuitBreaker struct {
	client    *redis.Client
	logger    *slog.Logger
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// BreakerState is a snapshot of one circuit.
type BreakerState struct {
	State        string     `json:"state"`
	Failures     int        `json:"failures"`
	LastFailedAt *time.Time `json:"last_failed_at,omitempty"`
}

func NewCircuitBreaker(client *redis.Client, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		client:    client,
		logger:    logger,
		threshold: defaultFailureThreshold,
		cooldown:  defaultCooldown,
		now:       time.Now,
	}
}

func breakerKey(name string) string {
	return "cb:ads:" + name
}

// Allow reports whether a call for name may proceed. Redis errors allow the
// call.
func (cb *CircuitBreaker) Allow(ctx context.Context, name string) bool {
	st, err := cb.load(ctx, name)
	if err != nil {
		cb.logger.Warn("circuit breaker unavailable, allowing call", "name", name, "error", err)
		return true
	}

	switch st.State {
	case StateOpen:
		if !cb.cooledDown(st) {
			return false
		}
		cb.client.HSet(ctx, breakerKey(name), "state", StateHalfOpen)
		cb.logger.Info("circuit breaker half-open", "name", name)
		return true
	default:
		return true
	}
}

// RecordSuccess closes the circuit for name and clears its failure count.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, name string) {
	key := breakerKey(name)
	prev, _ := cb.client.HGet(ctx, key, "state").Result()

	if err := cb.client.HSet(ctx, key, "state", StateClosed, "failures", 0).Err(); err != nil {
		cb.logger.Error("failed to record circuit breaker success", "name", name, "error", err)
		return
	}
	if prev == StateHalfOpen {
		cb.logger.Info("circuit breaker closed", "name", name)
	}
}

// RecordFailure counts a failed call and opens the circuit once the threshold
// is reached or when a half-open probe fails.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, name string) {
	key := breakerKey(name)

	var incr *redis.IntCmd
	var prev *redis.StringCmd
	_, err := cb.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		prev = pipe.HGet(ctx, key, "state")
		incr = pipe.HIncrBy(ctx, key, "failures", 1)
		pipe.HSet(ctx, key, "last_failed_at", cb.now().Unix())
		return nil
	})
	if err != nil && err != redis.Nil {
		cb.logger.Error("failed to record circuit breaker failure", "name", name, "error", err)
		return
	}

	failures := incr.Val()
	switch {
	case prev.Val() == StateHalfOpen:
		cb.client.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker reopened after failed probe", "name", name)
	case failures >= int64(cb.threshold):
		cb.client.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker opened",
			"name", name,
			"failures", failures,
			"threshold", cb.threshold,
		)
	case prev.Val() == "":
		cb.client.HSet(ctx, key, "state", StateClosed)
	}
}

// State returns the circuit for name, reporting an open circuit whose cooldown
// has passed as half-open.
func (cb *CircuitBreaker) State(ctx context.Context, name string) BreakerState {
	st, err := cb.load(ctx, name)
	if err != nil {
		return BreakerState{State: StateClosed}
	}
	if st.State == StateOpen && cb.cooledDown(st) {
		st.State = StateHalfOpen
	}
	return st
}

func (cb *CircuitBreaker) load(ctx context.Context, name string) (BreakerState, error) {
	data, err := cb.client.HGetAll(ctx, breakerKey(name)).Result()
	if err != nil {
		return BreakerState{}, err
	}

	st := BreakerState{State: data["state"]}
	if st.State == "" {
		st.State = StateClosed
	}
	st.Failures, _ = strconv.Atoi(data["failures"])
	if ts, _ := strconv.ParseInt(data["last_failed_at"], 10, 64); ts > 0 {
		t := time.Unix(ts, 0).UTC()
		st.LastFailedAt = &t
	}
	return st, nil
}

func (cb *CircuitBreaker) cooledDown(st BreakerState) bool {
	return st.LastFailedAt == nil || cb.now().Sub(*st.LastFailedAt) >= cb.cooldown
}
