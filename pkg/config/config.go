package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/devagent-ai/devagent/pkg/models"
)

// Config holds all devagent configuration. Credentials are never read from
// the file; they come from the environment.
//
// TrustedProxies lists the addresses or CIDR ranges whose X-Forwarded-For
// and X-Real-IP headers identify the client. When empty, those headers are
// honoured from any peer, which assumes devagent sits behind a proxy that
// overwrites them.
type Config struct {
	Listen         string             `yaml:"listen" validate:"required"`
	DBPath         string             `yaml:"db_path" validate:"required"`
	WorkspaceRoot  string             `yaml:"workspace_root"`
	AppURL         string             `yaml:"app_url" validate:"omitempty,url"`
	HTTPTimeout    time.Duration      `yaml:"http_timeout" validate:"gte=0"`
	TrustedProxies []string           `yaml:"trusted_proxies" validate:"dive,cidr|ip"`
	RateLimit      RateLimitConfig    `yaml:"rate_limit"`
	Providers      ProvidersConfig    `yaml:"providers"`
	Models         []models.Model     `yaml:"models" validate:"dive"`
	Workspace      WorkspaceConfig    `yaml:"workspace"`
	Cache          CacheConfig        `yaml:"cache"`
	Budget         BudgetConfig       `yaml:"budget"`
	Session        SessionConfig      `yaml:"session"`
	Audit          models.AuditConfig `yaml:"audit"`
}

// RateLimitConfig sets per-client request limits for each window.
// Zero disables the limit for that route.
type RateLimitConfig struct {
	Chat     int           `yaml:"chat" validate:"gte=0"`
	Generate int           `yaml:"generate" validate:"gte=0"`
	Window   time.Duration `yaml:"window" validate:"gte=0"`
}

// ProvidersConfig overrides vendor endpoints, mainly for testing and proxies.
type ProvidersConfig struct {
	Groq        ProviderConfig `yaml:"groq"`
	OpenRouter  ProviderConfig `yaml:"openrouter"`
	HuggingFace ProviderConfig `yaml:"huggingface"`
}

// ProviderConfig defines an upstream LLM provider endpoint.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
}

// WorkspaceConfig controls the file explorer listing.
type WorkspaceConfig struct {
	Exclude []string `yaml:"exclude"`
}

// SessionConfig controls session detection.
type SessionConfig struct {
	GapTimeout time.Duration `yaml:"gap_timeout"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// BudgetConfig controls budget enforcement.
type BudgetConfig struct {
	Enabled  bool                  `yaml:"enabled"`
	Policies []models.BudgetPolicy `yaml:"policies" validate:"dive"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:      ":8080",
		DBPath:      "devagent.db",
		AppURL:      "http://localhost:3000",
		HTTPTimeout: 2 * time.Minute,
		RateLimit: RateLimitConfig{
			Chat:     30,
			Generate: 10,
			Window:   time.Minute,
		},
		Workspace: WorkspaceConfig{
			Exclude: []string{"**/.*", "**/node_modules"},
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     time.Hour,
		},
		Budget: BudgetConfig{
			Enabled: false,
		},
		Session: SessionConfig{
			GapTimeout: 30 * time.Minute,
		},
		Audit: models.AuditConfig{
			Enabled:       false,
			RetentionDays: 30,
			Include:       []string{"metadata"},
			MaxBodySize:   8192,
		},
	}
}

// Load reads a YAML config file, expands environment variables and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ResolveWorkspaceRoot returns the configured workspace root, then
// $WORKSPACE_ROOT, then the current directory.
func (c *Config) ResolveWorkspaceRoot() (string, error) {
	if c.WorkspaceRoot != "" {
		return c.WorkspaceRoot, nil
	}
	if env := os.Getenv("WORKSPACE_ROOT"); env != "" {
		return env, nil
	}
	return os.Getwd()
}
