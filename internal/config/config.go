package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Env        string
	ListenAddr string

	DatabaseURL string

	RedisEnabled bool
	RedisURL     string

	// Key material for the credential secret store.
	EncryptionKey string
	SecretKey     string

	CacheTTLSeconds      int
	SourceTimeoutSeconds int

	SchedulerEnabled         bool
	SchedulerIntervalMinutes int
	// Watchlists configured below this floor are never auto-checked.
	SchedulerMinCheckInterval int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.Atoi(v); err == nil {
			return out
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.ParseBool(v); err == nil {
			return out
		}
	}
	return def
}

func Load() (Config, error) {
	cfg := Config{
		Env:                       getenv("APP_ENV", "development"),
		ListenAddr:                getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		RedisEnabled:              getenvBool("REDIS_ENABLED", false),
		RedisURL:                  getenv("REDIS_URL", "redis://localhost:6379/0"),
		EncryptionKey:             os.Getenv("ENCRYPTION_KEY"),
		SecretKey:                 os.Getenv("SECRET_KEY"),
		CacheTTLSeconds:           getenvInt("CACHE_TTL_SECONDS", 300),
		SourceTimeoutSeconds:      getenvInt("SOURCE_TIMEOUT_SECONDS", 30),
		SchedulerEnabled:          getenvBool("SCHEDULER_ENABLED", false),
		SchedulerIntervalMinutes:  getenvInt("SCHEDULER_INTERVAL_MINUTES", 30),
		SchedulerMinCheckInterval: getenvInt("SCHEDULER_MIN_CHECK_INTERVAL", 60),
	}
	if cfg.DatabaseURL == "" {
		// Not fatal for early local runs; warn via error value so callers can decide.
		return cfg, fmt.Errorf("DATABASE_URL not set")
	}
	return cfg, nil
}
