package config

import (
	"fmt"
	"time"

	redisclient "github.com/vietddude/verdict/internal/infra/redis"
	"github.com/vietddude/verdict/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig             `yaml:"server"`
	Logging   LoggingConfig            `yaml:"logging"`
	Data      DataConfig               `yaml:"data"`
	Profiles  map[string]ProfileConfig `yaml:"profiles"  validate:"dive"`
	Chain     []ChainEntry             `yaml:"chain"     validate:"dive"`
	Executor  ExecutorConfig           `yaml:"executor"`
	Cooldowns CooldownConfig           `yaml:"cooldowns"`
	Redis     redisclient.Config       `yaml:"redis"`
	Database  postgres.Config          `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"         validate:"gte=0,lte=65535"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// DataConfig locates the on-disk state and the banks.
type DataConfig struct {
	Dir           string `yaml:"dir"`
	StatementBank string `yaml:"statement_bank"`
	Materials     string `yaml:"materials"`
	Examples      string `yaml:"examples"`

	// Retention drops finished items untouched for this long. Zero keeps
	// everything.
	Retention time.Duration `yaml:"retention" validate:"gte=0"`
}

// ProfileConfig describes one backend: provider type, model and credential reference.
type ProfileConfig struct {
	Provider  string        `yaml:"provider"    validate:"required,oneof=gemini openai grpc"`
	Model     string        `yaml:"model"       validate:"required"`
	APIKey    string        `yaml:"api_key"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Endpoint  string        `yaml:"endpoint"`
	Timeout   time.Duration `yaml:"timeout"     validate:"gte=0"`
}

// ChainEntry is one element of the ordered chain. It is either a reference to a
// named profile or, in the older format, an inline profile.
type ChainEntry struct {
	Profile string
	Inline  *ProfileConfig
}

// UnmarshalYAML accepts both `- fast` and `- {provider: gemini, model: ...}`.
func (c *ChainEntry) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err == nil {
		c.Profile = name
		return nil
	}

	var inline ProfileConfig
	if err := unmarshal(&inline); err != nil {
		return fmt.Errorf("chain entry must be a profile name or a profile object: %w", err)
	}
	c.Inline = &inline
	return nil
}

// ExecutorConfig tunes the fallback executor's pacing.
type ExecutorConfig struct {
	Buffer           time.Duration `yaml:"buffer"            validate:"gte=0"`
	MaxWait          time.Duration `yaml:"max_wait"          validate:"gte=0"`
	FallbackWait     time.Duration `yaml:"fallback_wait"     validate:"gte=0"`
	UnavailablePause time.Duration `yaml:"unavailable_pause" validate:"gte=0"`
	Tick             time.Duration `yaml:"tick"              validate:"gte=0"`
}

// CooldownConfig selects where cooldowns persist and how long they last.
type CooldownConfig struct {
	Backend     string        `yaml:"backend"      validate:"omitempty,oneof=file redis"`
	Path        string        `yaml:"path"`
	RedisKey    string        `yaml:"redis_key"`
	Default     time.Duration `yaml:"default"      validate:"gte=0"`
	MaxCooldown time.Duration `yaml:"max_cooldown" validate:"gte=0"`
}
