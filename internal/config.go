package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/gtmkit/internal/plansync"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app" toml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace" toml:"workspace"`
	Sync      SyncConfig        `yaml:"sync" toml:"sync"`
	Journal   JournalConfig     `yaml:"journal" toml:"journal"`
	Auth      AuthConfig        `yaml:"auth" toml:"auth"`
	LLM       LLMConfig         `yaml:"llm" toml:"llm"`
	Watch     WatchConfig       `yaml:"watch" toml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	return c.Watch.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" toml:"log_level"`
	LogFile  LogFile    `yaml:"log_file" toml:"log_file"`
	HTTP     HTTPConfig `yaml:"http" toml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.LogFile.Validate(); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// LogFile configures a rotating log file. An empty Path logs to stderr.
type LogFile struct {
	Path       string `yaml:"path" toml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// Validate validates the log file configuration.
func (c *LogFile) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSizeMB, validation.Min(0)),
		validation.Field(&c.MaxBackups, validation.Min(0)),
		validation.Field(&c.MaxAgeDays, validation.Min(0)),
	)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// WorkspaceConfig holds the directory that contains the projects.
type WorkspaceConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SyncConfig tunes change detection and conflict handling.
type SyncConfig struct {
	Tolerance      time.Duration `yaml:"tolerance" toml:"tolerance"`
	ConflictPolicy string        `yaml:"conflict_policy" toml:"conflict_policy"`
	SchemaFile     string        `yaml:"schema_file" toml:"schema_file"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	if c.ConflictPolicy == "" {
		c.ConflictPolicy = string(plansync.PolicyPlansWins)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Tolerance, validation.Min(time.Duration(0))),
		validation.Field(&c.ConflictPolicy, validation.In(
			string(plansync.PolicyPlansWins),
			string(plansync.PolicyJSONWins),
			string(plansync.PolicyManual),
		)),
	)
}

// Policy returns the parsed conflict policy.
func (c *SyncConfig) Policy() plansync.Policy {
	p, err := plansync.ParsePolicy(c.ConflictPolicy)
	if err != nil {
		return plansync.PolicyPlansWins
	}
	return p
}

// JournalConfig holds the sync history database. An empty Path disables
// the journal.
type JournalConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Enabled reports whether sync runs are journaled.
func (c *JournalConfig) Enabled() bool {
	return c.Path != ""
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" toml:"mode"`
	Token string `yaml:"token" toml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// LLMConfig configures content generation and the eval judge. The API key
// is only needed by commands that call a model; when empty it is read from
// ANTHROPIC_API_KEY.
type LLMConfig struct {
	Provider  string        `yaml:"provider" toml:"provider"`
	Model     string        `yaml:"model" toml:"model"`
	APIKey    string        `yaml:"api_key" toml:"api_key"`
	BaseURL   string        `yaml:"base_url" toml:"base_url"`
	MaxTokens int           `yaml:"max_tokens" toml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout"`
}

// Validate validates the LLM configuration.
func (c *LLMConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In("anthropic")),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.MaxTokens, validation.Min(1)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// WatchConfig tunes the file watcher.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" toml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Required, validation.Min(time.Millisecond)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			LogFile: LogFile{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Workspace: WorkspaceConfig{
			Path: "./gtm",
		},
		Sync: SyncConfig{
			Tolerance:      plansync.DefaultTolerance,
			ConflictPolicy: string(plansync.PolicyPlansWins),
		},
		Journal: JournalConfig{
			Path: "./gtm/.gtm.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-5",
			MaxTokens: 4096,
			Timeout:   2 * time.Minute,
		},
		Watch: WatchConfig{
			Debounce: plansync.DefaultDebounce,
		},
	}
}
