// Package provider implements the backend side of the fallback chain.
//
// This package contains:
//   - Client interface: one remote model endpoint (provider + model)
//   - Adapter: wraps a Client with the cooldown pre-check and error taxonomy
//   - GeminiClient: Generative Language REST API
//   - OpenAIClient: OpenAI-compatible chat completions
//   - GRPCClient: generic gRPC inference gateway
package provider

import (
	"context"
	"time"

	"github.com/vietddude/verdict/internal/core/domain"
)

// Prompt is one completion request.
type Prompt struct {
	System string
	Text   string
	Files  []FileRef

	// JSON asks the backend for a JSON-only reply when it supports that.
	JSON bool
}

// FileRef points at a file previously uploaded to a specific backend.
type FileRef struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mime_type"`
}

// Client talks to one remote backend identity.
type Client interface {
	Identity() domain.BackendIdentity
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Uploader is implemented by clients that accept file attachments.
type Uploader interface {
	Upload(ctx context.Context, path string) (FileRef, error)
}

// Operation is one logical unit of work run against a single client,
// e.g. a similarity check or an upload-then-generate pipeline.
type Operation func(ctx context.Context, c Client) (domain.Outcome, error)

// CooldownPolicy chooses how long a rate-limited backend is benched.
type CooldownPolicy struct {
	Default time.Duration
	Max     time.Duration
}

// DefaultCooldownPolicy benches for a minute, honouring longer server hints up to ten minutes.
var DefaultCooldownPolicy = CooldownPolicy{
	Default: 60 * time.Second,
	Max:     10 * time.Minute,
}

// Cooldown returns the bench time given an optional server hint.
func (p CooldownPolicy) Cooldown(hint time.Duration) time.Duration {
	d := p.Default
	if d <= 0 {
		d = DefaultCooldownPolicy.Default
	}
	if hint > d {
		d = hint
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}
