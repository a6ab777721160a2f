package worker

import (
	"context"
	"log/slog"
	"time"
)

// Prunable is a work-item store that can drop finished items.
type Prunable interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// Pruner deletes finished work items older than the retention period.
type Pruner struct {
	retention time.Duration
	stores    []Prunable
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, stores ...Prunable) *Pruner {
	return &Pruner{
		retention: retention,
		stores:    stores,
		now:       time.Now,
	}
}

// Start runs the pruner loop until ctx ends.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check every tenth of the retention period, between 1m and 1h.
	interval := min(p.retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) int {
	cutoff := p.now().Add(-p.retention)
	total := 0
	for _, s := range p.stores {
		n, err := s.Prune(ctx, cutoff)
		if err != nil {
			slog.Error("[Pruner] failed to prune work items", "error", err)
			continue
		}
		total += n
	}
	if total > 0 {
		slog.Info("[Pruner] pruned finished work items", "count", total, "retention", p.retention)
	}
	return total
}
