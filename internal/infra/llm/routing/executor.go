// Package routing walks a prioritized backend chain until one succeeds.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/infra/llm/cooldown"
	"github.com/vietddude/verdict/internal/infra/llm/provider"
	"github.com/vietddude/verdict/internal/processing/metrics"
)

// Backend is one chain element. *provider.Adapter implements it.
type Backend interface {
	Identity() domain.BackendIdentity
	Perform(ctx context.Context, op provider.Operation) (domain.Outcome, error)
}

// Config tunes pacing between passes.
type Config struct {
	Buffer           time.Duration // added to the shortest observed cooldown
	MaxWait          time.Duration // cap on any single backoff
	FallbackWait     time.Duration // backoff when no backend was rate limited
	UnavailablePause time.Duration // pause after a permanent backend error
	Tick             time.Duration // countdown granularity
}

// DefaultConfig provides the standard pacing.
var DefaultConfig = Config{
	Buffer:           100 * time.Millisecond,
	MaxWait:          60 * time.Second,
	FallbackWait:     5 * time.Second,
	UnavailablePause: 2 * time.Second,
	Tick:             200 * time.Millisecond,
}

type waitFunc func(ctx context.Context, d, tick time.Duration, onTick func(remaining time.Duration)) error

// Executor tries a fixed chain of backends in priority order.
type Executor struct {
	chain    []Backend
	registry *cooldown.Registry
	cfg      Config
	log      *slog.Logger

	wait  waitFunc
	pause func(ctx context.Context, d time.Duration) error
}

// NewExecutor builds an executor over chain. Chain order is the preference
// order and never changes. registry may be nil when the backends do their own
// pre-check.
func NewExecutor(chain []Backend, registry *cooldown.Registry, cfg Config) *Executor {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultConfig.Tick
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultConfig.MaxWait
	}
	return &Executor{
		chain:    append([]Backend(nil), chain...),
		registry: registry,
		cfg:      cfg,
		log:      slog.Default(),
		wait:     countdown,
		pause:    sleepCtx,
	}
}

// Chain returns the backend identities in preference order.
func (e *Executor) Chain() []domain.BackendIdentity {
	ids := make([]domain.BackendIdentity, len(e.chain))
	for i, b := range e.chain {
		ids[i] = b.Identity()
	}
	return ids
}

// Execute runs op on the first available backend that succeeds. It blocks
// until success, ctx cancellation, or returns provider.ErrNotConfigured at
// once for an empty chain. Backend failures never escape; there is no retry
// limit.
func (e *Executor) Execute(ctx context.Context, op provider.Operation, onProgress ProgressFunc) (domain.Outcome, error) {
	if len(e.chain) == 0 {
		return domain.Outcome{}, provider.ErrNotConfigured
	}

	sink := newDispatcher(onProgress)
	defer sink.close()

	for pass := 1; ; pass++ {
		metrics.FallbackPasses.Inc()

		var (
			minWait time.Duration
			limited bool
		)
		observe := func(w time.Duration) {
			if !limited || w < minWait {
				minWait = w
			}
			limited = true
		}

		for _, b := range e.chain {
			if err := ctx.Err(); err != nil {
				return domain.Outcome{}, err
			}
			id := b.Identity()

			if e.registry != nil {
				if w := e.registry.ShouldWait(id); w > 0 {
					observe(w)
					sink.emit(Event{
						Kind:      EventCooling,
						Backend:   id,
						Remaining: w,
						Message:   fmt.Sprintf("%s cooling down (%.1fs), skipping...", id, w.Seconds()),
					})
					continue
				}
			}

			sink.emit(Event{Kind: EventAttempt, Backend: id, Message: fmt.Sprintf("Trying %s...", id)})
			out, err := b.Perform(ctx, op)
			if err == nil {
				if pass > 1 {
					e.log.Debug("Chain succeeded after retries", "backend", id.Key(), "pass", pass)
				}
				return out, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.Outcome{}, ctxErr
			}

			var (
				rl *provider.RateLimitedError
				un *provider.UnavailableError
			)
			switch {
			case errors.As(err, &rl):
				observe(rl.Wait)
				sink.emit(Event{
					Kind:        EventRateLimited,
					Backend:     id,
					Remaining:   rl.Wait,
					RateLimited: true,
					Message:     fmt.Sprintf("%s rate limited (%.1fs), trying next...", id, rl.Wait.Seconds()),
				})
			case errors.As(err, &un):
				e.log.Error("Backend unavailable, skipping", "backend", id.Key(), "error", err)
				sink.emit(Event{
					Kind:    EventUnavailable,
					Backend: id,
					Message: fmt.Sprintf("Model %s unavailable, skipping...", id),
				})
				if err := e.pause(ctx, e.cfg.UnavailablePause); err != nil {
					return domain.Outcome{}, err
				}
			default:
				e.log.Warn("Backend failed, trying next", "backend", id.Key(), "error", err)
				sink.emit(Event{
					Kind:    EventTransient,
					Backend: id,
					Message: fmt.Sprintf("Error with %s: %v. Trying next...", id, err),
				})
			}
		}

		wait, reason := e.cfg.FallbackWait, "errors"
		if limited {
			wait, reason = minWait+e.cfg.Buffer, "rate_limited"
		}
		if wait > e.cfg.MaxWait {
			wait = e.cfg.MaxWait
		}
		metrics.FallbackBackoffSeconds.WithLabelValues(reason).Observe(wait.Seconds())

		label := "All backends failed"
		if limited {
			label = "Rate limited"
		}
		sink.emit(Event{
			Kind:        EventBackoff,
			Remaining:   wait,
			RateLimited: limited,
			Message:     fmt.Sprintf("%s. Retrying in %.1fs...", label, wait.Seconds()),
		})
		e.log.Debug("Chain pass failed, backing off", "pass", pass, "wait", wait, "rate_limited", limited)

		err := e.wait(ctx, wait, e.cfg.Tick, func(remaining time.Duration) {
			sink.emit(Event{
				Kind:        EventTick,
				Remaining:   remaining,
				RateLimited: limited,
				Message:     fmt.Sprintf("%s. Retrying in %.1fs...", label, remaining.Seconds()),
			})
		})
		if err != nil {
			return domain.Outcome{}, err
		}
		sink.emit(Event{Kind: EventRetry, Message: "Retrying..."})
	}
}

// countdown sleeps for d, reporting the remaining time every tick.
func countdown(ctx context.Context, d, tick time.Duration, onTick func(time.Duration)) error {
	deadline := time.Now().Add(d)
	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	onTick(d)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-ticker.C:
			if remaining := time.Until(deadline); remaining > 0 {
				onTick(remaining)
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
