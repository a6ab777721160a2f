package domain

import (
	"sort"
	"time"
)

// ItemKind distinguishes the work-item stores.
type ItemKind string

const (
	ItemKindVerification ItemKind = "verification"
	ItemKindGeneration   ItemKind = "generation"
)

// Check names used by the verification and generation pipelines.
const (
	CheckExact     = "exact"
	CheckFuzzy     = "fuzzy"
	CheckKnowledge = "knowledge"
	CheckEssay     = "essay"
)

// CheckStatus is the lifecycle state of one check on a work item.
type CheckStatus string

const (
	StatusPending     CheckStatus = "Pending"
	StatusChecking    CheckStatus = "Checking"
	StatusDone        CheckStatus = "Done"
	StatusNotFound    CheckStatus = "NotFound"
	StatusError       CheckStatus = "Error"
	StatusRateLimited CheckStatus = "RateLimited"
)

// Terminal reports whether a check in this status is finished.
// Everything else is a resume candidate.
func (s CheckStatus) Terminal() bool {
	return s == StatusDone || s == StatusNotFound
}

// Valid reports whether s is one of the known statuses.
func (s CheckStatus) Valid() bool {
	switch s {
	case StatusPending, StatusChecking, StatusDone, StatusNotFound, StatusError, StatusRateLimited:
		return true
	}
	return false
}

// CheckState holds one check's status and results.
type CheckState struct {
	Status CheckStatus `json:"status"`
	Value  string      `json:"value,omitempty"`
	Detail string      `json:"detail,omitempty"`
	Source string      `json:"source,omitempty"`

	// Progress is live countdown text; never persisted.
	Progress string `json:"-"`
}

// WorkItem is one persisted unit of user-initiated work.
type WorkItem struct {
	ID        int                   `json:"id"`
	Input     string                `json:"input"`
	Checks    map[string]CheckState `json:"checks"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Clone returns a deep copy safe to hand out of a store.
func (w WorkItem) Clone() WorkItem {
	out := w
	out.Checks = make(map[string]CheckState, len(w.Checks))
	for k, v := range w.Checks {
		out.Checks[k] = v
	}
	return out
}

// Incomplete returns the names of checks that still need to run, sorted.
func (w WorkItem) Incomplete() []string {
	var names []string
	for name, st := range w.Checks {
		if !st.Status.Terminal() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Done reports whether every check reached a terminal status.
func (w WorkItem) Done() bool {
	return len(w.Incomplete()) == 0
}
