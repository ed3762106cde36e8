// Package config provides configuration structures for the autocomplete service.
// It defines the counter store backend, synchronisation behaviour and search limits.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Supported counter store backends
const (
	BackendMemory = "memory" // In-process store, single replica only
	BackendRedis  = "redis"  // Shared Redis, the multi-replica deployment
	BackendBadger = "badger" // Durable embedded store, single replica only
)

// StoreSettings configures the shared counter store all replicas synchronise through.
type StoreSettings struct {
	Backend    string        `yaml:"backend" validate:"required,oneof=memory redis badger"`
	RedisURL   string        `yaml:"redis_url" validate:"required_if=Backend redis"`  // e.g. redis://localhost:6379/0
	KeyPrefix  string        `yaml:"key_prefix"`                                      // Namespace for phrase counter keys
	Channel    string        `yaml:"channel" validate:"required"`                     // Pub/sub channel carrying change notifications
	BadgerPath string        `yaml:"badger_path" validate:"required_if=Backend badger"` // Data directory for the badger backend
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`                         // Upper bound for every store round trip
}

// SyncSettings controls how replicas converge on the authoritative counts.
type SyncSettings struct {
	BootstrapAttempts int           `yaml:"bootstrap_attempts" validate:"gte=1"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval" validate:"gt=0"` // How often unconfirmed phrases are re-read from the store
	// VersionGuard drops notifications whose count is not newer than the last
	// authoritative count applied for that phrase. Disabling it restores plain
	// last-writer-wins by arrival order.
	VersionGuard *bool `yaml:"version_guard"`
}

// SearchSettings bounds the size of suggestion lists.
type SearchSettings struct {
	DefaultTopK int `yaml:"default_top_k" validate:"gte=1"`
	MaxTopK     int `yaml:"max_top_k" validate:"gtefield=DefaultTopK"`
}

// ServerSettings configures the HTTP boundary.
type ServerSettings struct {
	Port            string `yaml:"port" validate:"required,numeric"`
	MaxRequestBytes int64  `yaml:"max_request_bytes" validate:"gt=0"`
}

// Settings is the complete configuration of one autocomplete replica.
type Settings struct {
	Environment string         `yaml:"environment" validate:"oneof=dev staging prod"`
	Server      ServerSettings `yaml:"server"`
	Store       StoreSettings  `yaml:"store"`
	Sync        SyncSettings   `yaml:"sync"`
	Search      SearchSettings `yaml:"search"`
}

// Default returns settings with every default applied.
func Default() Settings {
	var s Settings
	s.ApplyDefaults()
	return s
}

// Load reads YAML settings from path, applies environment overrides and defaults.
// A missing file is not an error: defaults and environment are used instead.
func Load(path string) (Settings, error) {
	var s Settings

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator's command line
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return s, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &s); err != nil {
				return s, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	s.ApplyEnv()
	s.ApplyDefaults()
	return s, nil
}

// ApplyEnv overrides settings from well-known environment variables.
func (s *Settings) ApplyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		s.Server.Port = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		s.Store.RedisURL = v
		if s.Store.Backend == "" {
			s.Store.Backend = BackendRedis
		}
	}
	if v := os.Getenv("AUTOCOMPLETE_STORE"); v != "" {
		s.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("AUTOCOMPLETE_ENV"); v != "" {
		s.Environment = strings.ToLower(v)
	}
}

// ApplyDefaults applies default values to the settings
func (s *Settings) ApplyDefaults() {
	if s.Environment == "" {
		s.Environment = "prod"
	}

	if s.Server.Port == "" {
		s.Server.Port = "4000"
	}
	if s.Server.MaxRequestBytes == 0 {
		s.Server.MaxRequestBytes = 1 << 20
	}

	if s.Store.Backend == "" {
		s.Store.Backend = BackendMemory
	}
	if s.Store.Channel == "" {
		s.Store.Channel = "autocomplete_updates"
	}
	if s.Store.Timeout == 0 {
		s.Store.Timeout = 2 * time.Second
	}

	if s.Sync.BootstrapAttempts == 0 {
		s.Sync.BootstrapAttempts = 3
	}
	if s.Sync.ReconcileInterval == 0 {
		s.Sync.ReconcileInterval = 30 * time.Second
	}
	if s.Sync.VersionGuard == nil {
		enabled := true
		s.Sync.VersionGuard = &enabled
	}

	if s.Search.DefaultTopK == 0 {
		s.Search.DefaultTopK = 5
	}
	// Ensure MaxTopK is at least as large as DefaultTopK
	if s.Search.MaxTopK < s.Search.DefaultTopK {
		s.Search.MaxTopK = max(50, s.Search.DefaultTopK)
	}
}

// VersionGuardEnabled reports whether stale notifications are discarded.
func (s *Settings) VersionGuardEnabled() bool {
	return s.Sync.VersionGuard == nil || *s.Sync.VersionGuard
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the settings and returns one message per violated rule.
func (s *Settings) Validate() []string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}

	problems := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		problems = append(problems, fmt.Sprintf("Field '%s' failed '%s' validation (value: %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return problems
}
