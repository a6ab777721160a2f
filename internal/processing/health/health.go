// Package health reports backend availability and serves the HTTP API.
package health

import (
	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/infra/llm/provider"
)

// SystemStatus represents the overall health state of the system or a backend.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// BackendHealth is the health of one chain entry.
type BackendHealth struct {
	provider.Health
	Status     SystemStatus `json:"status"`
	CoolingFor string       `json:"cooling_for,omitempty"`
}

// Report contains the full system health report.
type Report struct {
	SystemStatus SystemStatus           `json:"system_status"`
	Backends     []BackendHealth        `json:"backends"`
	Cooldowns    []domain.CooldownEntry `json:"cooldowns"`
	Storage      string                 `json:"storage,omitempty"`
}
