package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcline/adsync/internal/util"
)

func TestLoadFromFile(t *testing.T) {
	t.Run("loads TOML config with defaults applied", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "adsync.toml")

		content := `
[database]
path = "/tmp/custom.db"

[sync]
fallback_threshold = 5

[ads]
client_id = "client-123"
`
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

		cfg, err := LoadFromFile(configPath)
		require.NoError(t, err)

		assert.Equal(t, "/tmp/custom.db", cfg.Database.Path)
		assert.Equal(t, 5, cfg.Sync.FallbackThreshold)
		assert.Equal(t, "client-123", cfg.Ads.ClientID)

		// Defaults fill the unset fields
		assert.Equal(t, 1000, cfg.Ads.PageSize)
		assert.Equal(t, 0.01, cfg.Sync.ParityTolerance)
		assert.Equal(t, 1, cfg.Pulse.Workers)
		assert.Equal(t, "UTC", cfg.Pipeline.ScheduleTimezone)
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := LoadFromFile("/nonexistent/adsync.toml")
		assert.Error(t, err)
	})
}

func TestLoadWithViper_EnvOverride(t *testing.T) {
	t.Setenv("ADSYNC_ADS_CLIENT_SECRET", "from-env")

	v := viper.New()
	SetDefaults(v)
	BindSensitiveEnvVars(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Ads.ClientSecret)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		v := viper.New()
		SetDefaults(v)
		cfg, err := LoadWithViper(v)
		require.NoError(t, err)
		return cfg
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("rejects zero port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.Port = util.Ptr(0)
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects non-positive fallback threshold", func(t *testing.T) {
		cfg := valid()
		cfg.Sync.FallbackThreshold = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects negative parity tolerance", func(t *testing.T) {
		cfg := valid()
		cfg.Sync.ParityTolerance = -0.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects retry ceiling below base delay", func(t *testing.T) {
		cfg := valid()
		cfg.Sync.RetryBaseDelayMS = 1000
		cfg.Sync.RetryMaxDelayMS = 500
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects negative workers", func(t *testing.T) {
		cfg := valid()
		cfg.Pulse.Workers = -1
		assert.Error(t, cfg.Validate())
	})
}

func TestGetServerPort(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, DefaultServerPort, cfg.GetServerPort())

	cfg.Server.Port = util.Ptr(9000)
	assert.Equal(t, 9000, cfg.GetServerPort())
}
