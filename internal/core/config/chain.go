package config

import (
	"fmt"
	"time"
)

// ResolvedProfile is a chain entry with its credential looked up.
type ResolvedProfile struct {
	Name       string
	Provider   string
	Model      string
	Endpoint   string
	Credential string
	Timeout    time.Duration
}

// defaultKeyEnvs lists the environment variables consulted when a profile
// names no credential of its own.
var defaultKeyEnvs = map[string][]string{
	"gemini": {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"openai": {"OPENAI_API_KEY"},
}

// ResolveChain turns the configured chain into usable profiles in order.
// Entries without a usable credential are skipped; the reasons are returned
// so the caller can log them.
func (c *AppConfig) ResolveChain(getenv func(string) string) ([]ResolvedProfile, []error) {
	var (
		resolved []ResolvedProfile
		skipped  []error
	)

	for i, entry := range c.Chain {
		name := entry.Profile
		var p ProfileConfig
		if entry.Inline != nil {
			p = *entry.Inline
			name = fmt.Sprintf("chain[%d]", i)
		} else {
			var ok bool
			p, ok = c.Profiles[name]
			if !ok {
				skipped = append(skipped, fmt.Errorf("profile %q: not defined", name))
				continue
			}
		}

		rp := ResolvedProfile{
			Name:     name,
			Provider: p.Provider,
			Model:    p.Model,
			Endpoint: p.Endpoint,
			Timeout:  p.Timeout,
		}
		if rp.Timeout == 0 {
			rp.Timeout = 60 * time.Second
		}

		rp.Credential = p.APIKey
		if rp.Credential == "" && p.APIKeyEnv != "" {
			rp.Credential = getenv(p.APIKeyEnv)
		}
		if rp.Credential == "" && p.APIKeyEnv == "" {
			for _, env := range defaultKeyEnvs[p.Provider] {
				if v := getenv(env); v != "" {
					rp.Credential = v
					break
				}
			}
		}

		switch p.Provider {
		case "grpc":
			// The gateway authenticates the connection; the key is optional metadata.
			if rp.Endpoint == "" {
				skipped = append(skipped, fmt.Errorf("profile %q: grpc endpoint missing", name))
				continue
			}
		default:
			if rp.Credential == "" {
				skipped = append(skipped, fmt.Errorf("profile %q: no credential for %s/%s", name, p.Provider, p.Model))
				continue
			}
		}

		resolved = append(resolved, rp)
	}

	return resolved, skipped
}
