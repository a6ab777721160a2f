// Package cooldown tracks per-backend rate-limit cooldowns.
//
// A Registry is constructed once per process and shared by every adapter.
// Its state is written through to a Store on every mutation and reloaded at
// start, so cooldowns survive restarts.
package cooldown

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/processing/metrics"
)

const persistTimeout = 5 * time.Second

// Registry maps backend identities to the time they become usable again.
type Registry struct {
	mu      sync.Mutex
	entries map[domain.BackendIdentity]time.Time
	store   Store
	now     func() time.Time
	log     *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry loads persisted cooldowns from store. Missing or unreadable
// state means no cooldowns; it is logged and never fatal. A nil store keeps
// state in memory only.
func NewRegistry(ctx context.Context, store Store, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[domain.BackendIdentity]time.Time),
		store:   store,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if store == nil {
		return r
	}

	snapshot, err := store.Load(ctx)
	if err != nil {
		r.log.Warn("Ignoring unreadable cooldown state", "error", err)
		return r
	}

	now := r.now()
	for key, epoch := range snapshot {
		id, err := domain.ParseBackendIdentity(key)
		if err != nil {
			r.log.Warn("Skipping cooldown entry", "key", key, "error", err)
			continue
		}
		at := fromEpoch(epoch)
		if !at.After(now) {
			continue
		}
		r.entries[id] = at
	}
	metrics.ActiveCooldowns.Set(float64(len(r.entries)))
	r.log.Debug("Cooldowns loaded", "active", len(r.entries))
	return r
}

// ShouldWait returns how long id must still wait, or 0 when it is usable.
// An expired entry is deleted and the deletion persisted.
func (r *Registry) ShouldWait(id domain.BackendIdentity) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	at, ok := r.entries[id]
	if !ok {
		return 0
	}

	remaining := at.Sub(r.now())
	if remaining > 0 {
		return remaining
	}

	delete(r.entries, id)
	r.persistLocked()
	return 0
}

// ReportLimitHit starts or extends a cooldown for id. A report that would end
// earlier than the current cooldown is ignored.
func (r *Registry) ReportLimitHit(id domain.BackendIdentity, cooldown time.Duration) {
	if cooldown <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	at := r.now().Add(cooldown)
	if existing, ok := r.entries[id]; ok && existing.After(at) {
		return
	}
	r.entries[id] = at
	metrics.CooldownsReported.WithLabelValues(id.Key()).Inc()
	r.log.Info("Backend cooling down", "backend", id.Key(), "cooldown", cooldown)
	r.persistLocked()
}

// Snapshot returns the unexpired cooldowns ordered by key.
func (r *Registry) Snapshot() []domain.CooldownEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]domain.CooldownEntry, 0, len(r.entries))
	for id, at := range r.entries {
		if at.After(now) {
			out = append(out, domain.CooldownEntry{Identity: id, AvailableAt: at})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity.Key() < out[j].Identity.Key()
	})
	return out
}

// persistLocked writes only still-future entries. r.mu must be held.
func (r *Registry) persistLocked() {
	now := r.now()
	snapshot := make(map[string]float64, len(r.entries))
	for id, at := range r.entries {
		if at.After(now) {
			snapshot[id.Key()] = toEpoch(at)
		}
	}
	metrics.ActiveCooldowns.Set(float64(len(snapshot)))

	if r.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.store.Save(ctx, snapshot); err != nil {
		r.log.Warn("Failed to persist cooldowns", "error", err)
	}
}

func toEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromEpoch(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9))
}
