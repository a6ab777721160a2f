package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

var validate = validator.New()

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *AppConfig {
	var cfg AppConfig
	cfg.applyDefaults()
	return &cfg
}

// Validate checks structural constraints and chain references.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %s", verrs.Error())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	for i, entry := range c.Chain {
		if entry.Inline != nil {
			if err := validate.Struct(entry.Inline); err != nil {
				return fmt.Errorf("invalid config: chain[%d]: %w", i, err)
			}
			continue
		}
		if _, ok := c.Profiles[entry.Profile]; !ok {
			return fmt.Errorf("invalid config: chain[%d] references unknown profile %q", i, entry.Profile)
		}
	}
	return nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Data.Dir == "" {
		c.Data.Dir = "data"
	}
	if c.Data.StatementBank == "" {
		c.Data.StatementBank = filepath.Join(c.Data.Dir, "statements.csv")
	}
	if c.Data.Materials == "" {
		c.Data.Materials = filepath.Join(c.Data.Dir, "materials.json")
	}
	if c.Data.Examples == "" {
		c.Data.Examples = filepath.Join(c.Data.Dir, "essays.csv")
	}

	// No chain at all: a single Gemini profile keyed from the environment.
	if len(c.Chain) == 0 && len(c.Profiles) == 0 {
		c.Profiles = map[string]ProfileConfig{
			"default": {Provider: "gemini", Model: "gemini-2.5-flash"},
		}
		c.Chain = []ChainEntry{{Profile: "default"}}
	}

	if c.Executor.Buffer == 0 {
		c.Executor.Buffer = 100 * time.Millisecond
	}
	if c.Executor.MaxWait == 0 {
		c.Executor.MaxWait = 60 * time.Second
	}
	if c.Executor.FallbackWait == 0 {
		c.Executor.FallbackWait = 5 * time.Second
	}
	if c.Executor.UnavailablePause == 0 {
		c.Executor.UnavailablePause = 2 * time.Second
	}
	if c.Executor.Tick == 0 {
		c.Executor.Tick = 200 * time.Millisecond
	}

	if c.Cooldowns.Backend == "" {
		c.Cooldowns.Backend = "file"
	}
	if c.Cooldowns.Path == "" {
		c.Cooldowns.Path = filepath.Join(c.Data.Dir, "cooldowns.json")
	}
	if c.Cooldowns.RedisKey == "" {
		c.Cooldowns.RedisKey = "verdict:cooldowns"
	}
	if c.Cooldowns.Default == 0 {
		c.Cooldowns.Default = 60 * time.Second
	}
	if c.Cooldowns.MaxCooldown == 0 {
		c.Cooldowns.MaxCooldown = 10 * time.Minute
	}
}
