package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port              string
	DBDriver          string
	DBPath            string
	DatabaseURL       string
	RedisURL          string
	CSRFKey           []byte
	CSRFEnabled       bool
	SessionKey        []byte
	CookieDomain      string
	CookieSecure      bool
	UploadDir         string
	RateLimitPerMin   int
	RecentOrdersLimit int
	LogLevel          string
	LogFormat         string
	TrustedOrigins    []string
}

// fileConfig is the optional YAML file named by CONFIG_FILE. Environment
// variables override anything set here.
type fileConfig struct {
	Port              string   `yaml:"port"`
	DBDriver          string   `yaml:"db_driver"`
	DBPath            string   `yaml:"db_path"`
	DatabaseURL       string   `yaml:"database_url"`
	RedisURL          string   `yaml:"redis_url"`
	CSRFEnabled       *bool    `yaml:"csrf_enabled"`
	CookieDomain      string   `yaml:"cookie_domain"`
	CookieSecure      *bool    `yaml:"cookie_secure"`
	UploadDir         string   `yaml:"upload_dir"`
	RateLimitPerMin   int      `yaml:"rate_limit_per_min"`
	RecentOrdersLimit int      `yaml:"recent_orders_limit"`
	LogLevel          string   `yaml:"log_level"`
	LogFormat         string   `yaml:"log_format"`
	TrustedOrigins    []string `yaml:"trusted_origins"`
}

func LoadConfig() (*Config, error) {
	fc, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:              getEnv("PORT", or(fc.Port, "8585")),
		DBDriver:          strings.ToLower(getEnv("DB_DRIVER", or(fc.DBDriver, "sqlite"))),
		DBPath:            getEnv("DB_PATH", or(fc.DBPath, "./storefront.db")),
		DatabaseURL:       getEnv("DATABASE_URL", fc.DatabaseURL),
		RedisURL:          getEnv("REDIS_URL", fc.RedisURL),
		CSRFEnabled:       getEnvBool("CSRF_ENABLED", boolOr(fc.CSRFEnabled, true)),
		CookieDomain:      getEnv("COOKIE_DOMAIN", fc.CookieDomain),
		CookieSecure:      getEnvBool("COOKIE_SECURE", boolOr(fc.CookieSecure, false)),
		UploadDir:         getEnv("UPLOAD_DIR", or(fc.UploadDir, "./uploads")),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MIN", intOr(fc.RateLimitPerMin, 60)),
		RecentOrdersLimit: getEnvInt("RECENT_ORDERS_LIMIT", intOr(fc.RecentOrdersLimit, 10)),
		LogLevel:          getEnv("LOG_LEVEL", or(fc.LogLevel, "info")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", or(fc.LogFormat, "text"))),
		TrustedOrigins:    fc.TrustedOrigins,
	}
	if v, ok := os.LookupEnv("TRUSTED_ORIGINS"); ok {
		cfg.TrustedOrigins = splitList(v)
	}

	switch cfg.DBDriver {
	case "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (want sqlite or postgres)", cfg.DBDriver)
	}

	// CSRF Key (critical for security)
	cfg.CSRFKey = loadKey("CSRF_KEY")
	// Session Key (critical for security)
	cfg.SessionKey = loadKey("SESSION_KEY")

	// Make sure port is valid
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		slog.Error("Invalid PORT. Falling back to default.", "PORT", cfg.Port)
		cfg.Port = "8585"
	}

	return cfg, nil
}

// DSN returns the data source for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.DBPath
}

// SlogLevel parses LogLevel, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func loadFile(path string) (*fileConfig, error) {
	fc := &fileConfig{}
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	slog.Debug("Loaded config file", "path", path)
	return fc, nil
}

func loadKey(name string) []byte {
	raw := os.Getenv(name)
	if raw == "" {
		slog.Warn(name + " environment variable not set. Generating a random key for development. This key will change on each restart. PLEASE SET " + name + " IN PRODUCTION!")
		return generateRandomBytes(32)
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(decoded) < 32 {
		slog.Warn(name + " is invalid or too short (min 32 bytes). Generating a random key for development. PLEASE SET A SECURE " + name + " IN PRODUCTION!")
		return generateRandomBytes(32)
	}
	return decoded
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("Invalid boolean in environment, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return b
}

func getEnvInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		slog.Warn("Invalid number in environment, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return n
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func boolOr(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}

func intOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// generateRandomBytes generates a random byte slice of specified length
// Uses crypto/rand for secure random numbers.
func generateRandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		slog.Error("Failed to read random bytes", "error", err)
		// Only here to avoid a panic; never relied on in production.
		fallbackKey := "fallback-insecure-key-" + strconv.FormatInt(time.Now().UnixNano(), 10)
		padded := make([]byte, n)
		copy(padded, fallbackKey)
		return padded
	}
	return b
}
