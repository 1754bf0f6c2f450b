package config

import "github.com/arcline/adsync/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.Newf("server.port cannot be 0 (omit for default port %d)", DefaultServerPort)
	}
	if c.Server.Port != nil && *c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", *c.Server.Port)
	}

	if c.Ads.PageSize <= 0 {
		return errors.Newf("ads.page_size must be > 0, got %d", c.Ads.PageSize)
	}
	if c.Ads.MaxPages <= 0 {
		return errors.Newf("ads.max_pages must be > 0, got %d", c.Ads.MaxPages)
	}
	if c.Ads.MaxRows <= 0 {
		return errors.Newf("ads.max_rows must be > 0, got %d", c.Ads.MaxRows)
	}
	if c.Ads.RequestTimeoutSeconds <= 0 {
		return errors.Newf("ads.request_timeout_seconds must be > 0, got %d", c.Ads.RequestTimeoutSeconds)
	}

	if c.Sync.FallbackThreshold <= 0 {
		return errors.Newf("sync.fallback_threshold must be > 0, got %d", c.Sync.FallbackThreshold)
	}
	if c.Sync.LookbackDays <= 0 {
		return errors.Newf("sync.lookback_days must be > 0, got %d", c.Sync.LookbackDays)
	}
	if c.Sync.ParityTolerance < 0 {
		return errors.Newf("sync.parity_tolerance must be >= 0, got %f", c.Sync.ParityTolerance)
	}
	if c.Sync.ParityWindowDays <= 0 {
		return errors.Newf("sync.parity_window_days must be > 0, got %d", c.Sync.ParityWindowDays)
	}
	if c.Sync.FreshnessMinutes < 0 {
		return errors.Newf("sync.freshness_minutes must be >= 0, got %d", c.Sync.FreshnessMinutes)
	}
	if c.Sync.RetryMaxAttempts <= 0 {
		return errors.Newf("sync.retry_max_attempts must be > 0, got %d", c.Sync.RetryMaxAttempts)
	}
	if c.Sync.RetryBaseDelayMS <= 0 {
		return errors.Newf("sync.retry_base_delay_ms must be > 0, got %d", c.Sync.RetryBaseDelayMS)
	}
	if c.Sync.RetryMaxDelayMS < c.Sync.RetryBaseDelayMS {
		return errors.Newf("sync.retry_max_delay_ms must be >= retry_base_delay_ms, got %d", c.Sync.RetryMaxDelayMS)
	}

	// Pulse workers: 0 = no background workers, negative = invalid
	if c.Pulse.Workers < 0 {
		return errors.Newf("pulse.workers must be >= 0, got %d", c.Pulse.Workers)
	}
	if c.Pulse.TickerIntervalSeconds < 0 {
		return errors.Newf("pulse.ticker_interval_seconds must be >= 0, got %d", c.Pulse.TickerIntervalSeconds)
	}
	if c.Pulse.RequestsPerMinute < 0 {
		return errors.Newf("pulse.requests_per_minute must be >= 0, got %d", c.Pulse.RequestsPerMinute)
	}

	return nil
}
