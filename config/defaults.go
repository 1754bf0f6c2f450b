package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "adsync.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})

	// Ads client defaults
	v.SetDefault("ads.page_size", 1000)
	v.SetDefault("ads.max_pages", 500)
	v.SetDefault("ads.max_rows", 500000)
	v.SetDefault("ads.request_timeout_seconds", 60)
	v.SetDefault("ads.requests_per_minute", 60)

	// Pipeline platform defaults
	v.SetDefault("pipeline.schedule_timezone", "UTC")
	v.SetDefault("pipeline.request_timeout_seconds", 120)

	// Sync behavior defaults
	v.SetDefault("sync.fallback_threshold", 3)
	v.SetDefault("sync.lookback_days", 30)
	v.SetDefault("sync.parity_tolerance", 0.01)
	v.SetDefault("sync.parity_window_days", 7)
	v.SetDefault("sync.freshness_minutes", 60)
	v.SetDefault("sync.retry_max_attempts", 3)
	v.SetDefault("sync.retry_base_delay_ms", 500)
	v.SetDefault("sync.retry_max_delay_ms", 30000)

	// Pulse (async job infrastructure) defaults
	v.SetDefault("pulse.workers", 1)
	v.SetDefault("pulse.ticker_interval_seconds", 1)
	v.SetDefault("pulse.job_retention_days", 30)
	v.SetDefault("pulse.requests_per_minute", 0)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "ADSYNC_DATABASE_PATH")

	v.BindEnv("ads.client_id", "ADSYNC_ADS_CLIENT_ID")
	v.BindEnv("ads.client_secret", "ADSYNC_ADS_CLIENT_SECRET")
	v.BindEnv("ads.developer_token", "ADSYNC_ADS_DEVELOPER_TOKEN")

	v.BindEnv("pipeline.api_key", "ADSYNC_PIPELINE_API_KEY")
}
