package domain

import (
	"fmt"
	"strings"
	"time"
)

// BackendIdentity identifies one remote model endpoint variant.
type BackendIdentity struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Key renders the identity as "provider:model", the form used in cooldown snapshots.
func (b BackendIdentity) Key() string {
	return b.Provider + ":" + b.Model
}

func (b BackendIdentity) String() string {
	return b.Key()
}

// ParseBackendIdentity splits a "provider:model" key on its first colon.
// Model names may themselves contain colons.
func ParseBackendIdentity(key string) (BackendIdentity, error) {
	provider, model, ok := strings.Cut(key, ":")
	if !ok || provider == "" || model == "" {
		return BackendIdentity{}, fmt.Errorf("invalid backend key %q", key)
	}
	return BackendIdentity{Provider: provider, Model: model}, nil
}

// CooldownEntry records when a backend becomes usable again.
// An entry whose AvailableAt is not after now is logically absent.
type CooldownEntry struct {
	Identity    BackendIdentity `json:"identity"`
	AvailableAt time.Time       `json:"available_at"`
}

// Remaining returns the wait left at now, or zero when expired.
func (e CooldownEntry) Remaining(now time.Time) time.Duration {
	if d := e.AvailableAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
