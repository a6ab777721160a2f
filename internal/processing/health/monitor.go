package health

import (
	"context"
	"time"

	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/infra/llm/provider"
)

// failureThreshold is how many failures without a later success make a
// backend critical.
const failureThreshold = 5

// Backend is a chain entry that keeps call statistics.
type Backend interface {
	Identity() domain.BackendIdentity
	Health() provider.Health
}

// Cooldowns exposes the registry state.
type Cooldowns interface {
	ShouldWait(id domain.BackendIdentity) time.Duration
	Snapshot() []domain.CooldownEntry
}

// Pinger is a storage backend that can report its reachability.
type Pinger interface {
	Health(ctx context.Context) error
}

// Monitor aggregates backend statistics and cooldowns into a report.
type Monitor struct {
	backends  []Backend
	cooldowns Cooldowns
	storage   Pinger
}

func NewMonitor(backends []Backend, cooldowns Cooldowns) *Monitor {
	return &Monitor{backends: backends, cooldowns: cooldowns}
}

// WithStorage adds a storage probe. An unreachable store makes the system
// critical.
func (m *Monitor) WithStorage(p Pinger) *Monitor {
	m.storage = p
	return m
}

// CheckHealth builds a report. The system is critical when no backend is
// usable and degraded when some are not.
func (m *Monitor) CheckHealth() Report {
	report := Report{SystemStatus: StatusHealthy, Cooldowns: m.cooldowns.Snapshot()}
	if report.Cooldowns == nil {
		report.Cooldowns = []domain.CooldownEntry{}
	}

	healthy := 0
	for _, b := range m.backends {
		h := BackendHealth{Health: b.Health(), Status: StatusHealthy}
		if wait := m.cooldowns.ShouldWait(b.Identity()); wait > 0 {
			h.Status = StatusDegraded
			h.CoolingFor = wait.Round(time.Second).String()
		}
		if h.Failures >= failureThreshold && h.LastFailureAt.After(h.LastSuccessAt) {
			h.Status = StatusCritical
		}
		if h.Status == StatusHealthy {
			healthy++
		}
		report.Backends = append(report.Backends, h)
	}

	storageDown := false
	if m.storage != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		report.Storage = "ok"
		if err := m.storage.Health(ctx); err != nil {
			report.Storage = err.Error()
			storageDown = true
		}
	}

	switch {
	case healthy == 0 || storageDown:
		report.SystemStatus = StatusCritical
	case healthy < len(m.backends):
		report.SystemStatus = StatusDegraded
	}
	return report
}
