// Package config loads the adsync configuration from TOML files and
// environment variables, with file-watch based hot reload for tunables.
package config

import "fmt"

// Config represents the core adsync configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Ads      AdsConfig      `mapstructure:"ads"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Pulse    PulseConfig    `mapstructure:"pulse"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the adsync web server
type ServerConfig struct {
	Port           *int     `mapstructure:"port"` // nil = default 8710, 0 is invalid (omit for default)
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DefaultServerPort is the development port, above the privileged range.
const DefaultServerPort = 8710

// AdsConfig configures the ads platform SDK client
type AdsConfig struct {
	ClientID        string `mapstructure:"client_id"`     // OAuth application client id
	ClientSecret    string `mapstructure:"client_secret"` // OAuth application client secret
	DeveloperToken  string `mapstructure:"developer_token"`
	TokenURL        string `mapstructure:"token_url"`         // OAuth token endpoint
	Endpoint        string `mapstructure:"endpoint"`          // Reporting API base URL
	LoginCustomerID string `mapstructure:"login_customer_id"` // Manager account header (optional)

	PageSize              int `mapstructure:"page_size"`               // Rows requested per page (default: 1000)
	MaxPages              int `mapstructure:"max_pages"`               // Forward-progress cap per report (default: 500)
	MaxRows               int `mapstructure:"max_rows"`                // Forward-progress cap per report (default: 500000)
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"` // Per-request timeout (default: 60)
	RequestsPerMinute     int `mapstructure:"requests_per_minute"`     // Client-side rate limit (default: 60)
}

// PipelineConfig configures the managed ELT pipeline platform
type PipelineConfig struct {
	BaseURL            string `mapstructure:"base_url"` // Pipeline platform API base URL
	APIKey             string `mapstructure:"api_key"`
	WorkspaceID        string `mapstructure:"workspace_id"`         // Default workspace for provisioning
	DestinationID      string `mapstructure:"destination_id"`       // Warehouse destination for new connections
	SourceDefinitionID string `mapstructure:"source_definition_id"` // Connector definition for the ads source

	ScheduleTimezone      string `mapstructure:"schedule_timezone"`       // Timezone applied to cron schedules
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"` // Per-request timeout (default: 120)
}

// SyncConfig configures sync behavior: fallback thresholds, parity
// tolerance, and SDK retry policy
type SyncConfig struct {
	FallbackThreshold int `mapstructure:"fallback_threshold"` // Consecutive SDK failures before pipeline fallback (default: 3)
	LookbackDays      int `mapstructure:"lookback_days"`      // Report window size per sync (default: 30)

	ParityTolerance  float64 `mapstructure:"parity_tolerance"`   // Relative tolerance for parity compare (default: 0.01)
	ParityWindowDays int     `mapstructure:"parity_window_days"` // Sampled window for parity aggregates (default: 7)

	FreshnessMinutes int `mapstructure:"freshness_minutes"` // Window in which a past sync still counts as "active" (default: 60)

	RetryMaxAttempts int `mapstructure:"retry_max_attempts"` // Attempts per report fetch, retryable errors only (default: 3)
	RetryBaseDelayMS int `mapstructure:"retry_base_delay_ms"` // Exponential backoff base (default: 500)
	RetryMaxDelayMS  int `mapstructure:"retry_max_delay_ms"`  // Backoff ceiling (default: 30000)
}

// PulseConfig configures the async job system
type PulseConfig struct {
	Workers               int `mapstructure:"workers"`                 // Concurrent job workers (default: 1)
	TickerIntervalSeconds int `mapstructure:"ticker_interval_seconds"` // Queue poll interval (default: 1)
	JobRetentionDays      int `mapstructure:"job_retention_days"`      // Completed/failed job cleanup horizon (default: 30)
	RequestsPerMinute     int `mapstructure:"requests_per_minute"`     // Worker-level rate limit, 0 = unlimited
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "adsync.db"
	}
	return c.Database.Path
}

// GetServerPort returns the configured port or the default
func (c *Config) GetServerPort() int {
	if c.Server.Port == nil || *c.Server.Port == 0 {
		return DefaultServerPort
	}
	return *c.Server.Port
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{
			"http://localhost",
			"https://localhost",
			"http://127.0.0.1",
			"https://127.0.0.1",
		}
	}
	return c.Server.AllowedOrigins
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Sync: {FallbackThreshold: %d}, Pulse: {Workers: %d}}",
		c.Database.Path, c.Sync.FallbackThreshold, c.Pulse.Workers)
}
