package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Priya8975/traffic-tracker/internal/ads"
	"github.com/Priya8975/traffic-tracker/internal/fraud"
	"github.com/Priya8975/traffic-tracker/internal/geo"
)

// Config holds all configuration for the application.
type Config struct {
	Port          string
	DatabaseURL   string
	RedisURL      string
	MigrationsDir string
	LogLevel      slog.Level

	Fraud fraud.Config
	Geo   geo.Config
	Ads   AdsConfig
}

// AdsConfig controls the asynchronous IP exclusion pipeline.
type AdsConfig struct {
	ExclusionEnabled   bool
	CustomerID         string
	ListName           string
	RateLimitPerSecond int
	Workers            int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	fraudCfg := fraud.DefaultConfig()
	fraudCfg.FrequencyLimit = getEnvInt("CLICK_FREQ_LIMIT", fraudCfg.FrequencyLimit)
	fraudCfg.FrequencyWindow = time.Duration(getEnvInt("CLICK_FREQ_WINDOW_SECONDS", int(fraudCfg.FrequencyWindow/time.Second))) * time.Second
	fraudCfg.EnforceGeoConsistency = getEnvBool("CLICK_GEO_CONSISTENCY_ENABLED", false)

	if fraudCfg.FrequencyLimit <= 0 {
		return nil, fmt.Errorf("CLICK_FREQ_LIMIT must be positive")
	}
	if fraudCfg.FrequencyWindow <= 0 {
		return nil, fmt.Errorf("CLICK_FREQ_WINDOW_SECONDS must be positive")
	}

	geoCfg := geo.Config{
		APIURL:   getEnv("GEO_API_URL", geo.DefaultAPIURL),
		Timeout:  getEnvDuration("GEO_TIMEOUT", geo.DefaultTimeout),
		CacheTTL: getEnvDuration("GEO_CACHE_TTL", geo.DefaultTTL),
	}

	adsCfg := AdsConfig{
		ExclusionEnabled:   getEnvBool("ADS_EXCLUSION_ENABLED", false),
		CustomerID:         getEnv("ADS_CUSTOMER_ID", ""),
		ListName:           getEnv("ADS_EXCLUSION_LIST_NAME", ads.DefaultListName),
		RateLimitPerSecond: getEnvInt("ADS_RATE_LIMIT_PER_SECOND", 5),
		Workers:            getEnvInt("ADS_WORKERS", 2),
	}
	if adsCfg.Workers <= 0 {
		adsCfg.Workers = 1
	}

	redisURL := getEnv("REDIS_URL", "")
	if adsCfg.ExclusionEnabled && redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required when ADS_EXCLUSION_ENABLED is set")
	}

	return &Config{
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   dbURL,
		RedisURL:      redisURL,
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
		LogLevel:      level,
		Fraud:         fraudCfg,
		Geo:           geoCfg,
		Ads:           adsCfg,
	}, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
