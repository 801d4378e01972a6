package config

import (
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"CONFIG_FILE", "PORT", "DB_DRIVER", "DB_PATH", "DATABASE_URL", "REDIS_URL",
	"SESSION_KEY", "CSRF_KEY", "CSRF_ENABLED", "COOKIE_DOMAIN", "COOKIE_SECURE",
	"UPLOAD_DIR", "RATE_LIMIT_PER_MIN", "RECENT_ORDERS_LIMIT", "LOG_LEVEL",
	"LOG_FORMAT", "TRUSTED_ORIGINS",
}

// clearEnv unsets every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		if v, ok := os.LookupEnv(k); ok {
			t.Setenv(k, v) // registers restore
			require.NoError(t, os.Unsetenv(k))
		}
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8585", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "./storefront.db", cfg.DSN())
	assert.True(t, cfg.CSRFEnabled)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, 60, cfg.RateLimitPerMin)
	assert.Equal(t, 10, cfg.RecentOrdersLimit)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.Len(t, cfg.CSRFKey, 32)
	assert.Len(t, cfg.SessionKey, 32)
}

func TestLoadConfig_Env(t *testing.T) {
	clearEnv(t)
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

	t.Setenv("PORT", "9000")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/shop")
	t.Setenv("SESSION_KEY", key)
	t.Setenv("CSRF_ENABLED", "false")
	t.Setenv("RATE_LIMIT_PER_MIN", "5")
	t.Setenv("RECENT_ORDERS_LIMIT", "nope")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TRUSTED_ORIGINS", "shop.example.com, admin.example.com,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "postgres://u:p@localhost/shop", cfg.DSN())
	assert.Equal(t, []byte(strings.Repeat("k", 32)), cfg.SessionKey)
	assert.False(t, cfg.CSRFEnabled)
	assert.Equal(t, 5, cfg.RateLimitPerMin)
	assert.Equal(t, 10, cfg.RecentOrdersLimit)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, []string{"shop.example.com", "admin.example.com"}, cfg.TrustedOrigins)
}

func TestLoadConfig_FileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "storefront.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
db_path: /data/shop.db
csrf_enabled: false
recent_orders_limit: 25
log_format: json
trusted_origins: [shop.example.com]
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7001")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7001", cfg.Port)
	assert.Equal(t, "/data/shop.db", cfg.DBPath)
	assert.False(t, cfg.CSRFEnabled)
	assert.Equal(t, 25, cfg.RecentOrdersLimit)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, []string{"shop.example.com"}, cfg.TrustedOrigins)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("unknown driver", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DB_DRIVER", "oracle")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
	t.Run("postgres without url", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DB_DRIVER", "postgres")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := LoadConfig()
		assert.Error(t, err)
	})
	t.Run("invalid port falls back", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "http")
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "8585", cfg.Port)
	})
}
