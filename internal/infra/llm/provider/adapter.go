package provider

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/infra/llm/cooldown"
	"github.com/vietddude/verdict/internal/processing/metrics"
)

// Health is a point-in-time view of an adapter's call history.
type Health struct {
	Backend        string        `json:"backend"`
	Successes      int           `json:"successes"`
	Failures       int           `json:"failures"`
	RateLimits     int           `json:"rate_limits"`
	LastError      string        `json:"last_error,omitempty"`
	LastSuccessAt  time.Time     `json:"last_success_at,omitempty"`
	LastFailureAt  time.Time     `json:"last_failure_at,omitempty"`
	AverageLatency time.Duration `json:"average_latency"`
}

// Adapter runs operations against one backend identity, consulting the
// shared cooldown registry before each call and classifying failures.
type Adapter struct {
	client   Client
	registry *cooldown.Registry
	policy   CooldownPolicy
	log      *slog.Logger

	mu           sync.RWMutex
	health       Health
	totalLatency time.Duration
}

// NewAdapter wraps client. registry must be the process-wide instance.
func NewAdapter(client Client, registry *cooldown.Registry, policy CooldownPolicy) *Adapter {
	return &Adapter{
		client:   client,
		registry: registry,
		policy:   policy,
		log:      slog.Default().With("backend", client.Identity().Key()),
		health:   Health{Backend: client.Identity().Key()},
	}
}

// Identity returns the wrapped backend identity.
func (a *Adapter) Identity() domain.BackendIdentity {
	return a.client.Identity()
}

// Perform runs op against the backend. It fails fast with a RateLimitedError
// while the backend is cooling down; otherwise every failure comes back as a
// RateLimitedError, UnavailableError or TransientError, or as the context
// error when ctx ended.
func (a *Adapter) Perform(ctx context.Context, op Operation) (domain.Outcome, error) {
	id := a.client.Identity()
	key := id.Key()

	if wait := a.registry.ShouldWait(id); wait > 0 {
		metrics.BackendCallsTotal.WithLabelValues(key, "cooling").Inc()
		return domain.Outcome{}, &RateLimitedError{Backend: id, Wait: wait}
	}

	start := time.Now()
	out, err := op(ctx, a.client)
	latency := time.Since(start)
	metrics.BackendLatency.WithLabelValues(key).Observe(latency.Seconds())

	if err == nil {
		metrics.BackendCallsTotal.WithLabelValues(key, "ok").Inc()
		a.recordSuccess(latency)
		if out.Source == "" {
			out.Source = key
		}
		return out, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.Outcome{}, ctxErr
	}

	classified := Classify(err)

	var (
		rl *RateLimitedError
		un *UnavailableError
		tr *TransientError
	)
	switch {
	case errors.As(classified, &rl):
		rl.Backend = id
		cd := a.policy.Cooldown(rl.RetryAfter)
		a.registry.ReportLimitHit(id, cd)
		rl.Wait = a.registry.ShouldWait(id)
		if rl.Wait <= 0 {
			rl.Wait = cd
		}
		metrics.BackendCallsTotal.WithLabelValues(key, "rate_limited").Inc()
		a.log.Warn("Backend rate limited", "cooldown", cd, "error", err)
	case errors.As(classified, &un):
		un.Backend = id
		metrics.BackendCallsTotal.WithLabelValues(key, "unavailable").Inc()
		a.log.Error("Backend unavailable", "error", err)
	case errors.As(classified, &tr):
		tr.Backend = id
		metrics.BackendCallsTotal.WithLabelValues(key, "transient").Inc()
		a.log.Warn("Backend call failed", "error", err)
	}

	a.recordFailure(classified, rl != nil)
	return domain.Outcome{}, classified
}

// Health returns the adapter's call statistics.
func (a *Adapter) Health() Health {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h := a.health
	if h.Successes > 0 {
		h.AverageLatency = a.totalLatency / time.Duration(h.Successes)
	}
	return h
}

func (a *Adapter) recordSuccess(latency time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.health.Successes++
	a.health.LastSuccessAt = time.Now()
	a.totalLatency += latency
}

func (a *Adapter) recordFailure(err error, rateLimited bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.health.Failures++
	if rateLimited {
		a.health.RateLimits++
	}
	a.health.LastFailureAt = time.Now()
	a.health.LastError = err.Error()
}
