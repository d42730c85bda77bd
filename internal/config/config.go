package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type DBConfig struct {
	Dialect string
	DSN     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ServerConfig struct {
	Host string
	Port string
}

type SyncConfig struct {
	Debounce     time.Duration
	PullSchedule string
	Compression  string
}

type DriveConfig struct {
	AccessToken string
}

type Config struct {
	DB     DBConfig
	Redis  RedisConfig
	Server ServerConfig
	Sync   SyncConfig
	Drive  DriveConfig
}

// Load reads configuration from the environment, layering a .env file if
// one is present next to the binary.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	}

	return &Config{
		DB: DBConfig{
			Dialect: envOr("PAGENOTE_DB_DIALECT", "sqlite"),
			DSN:     envOr("PAGENOTE_DB_DSN", "pagenote.db"),
		},
		Redis: RedisConfig{
			Addr:     envOr("PAGENOTE_REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("PAGENOTE_REDIS_PASSWORD"),
			DB:       envInt("PAGENOTE_REDIS_DB", 0),
		},
		Server: ServerConfig{
			Host: envOr("PAGENOTE_HOST", ""),
			Port: envOr("PAGENOTE_PORT", "8866"),
		},
		Sync: SyncConfig{
			Debounce:     envDuration("PAGENOTE_SYNC_DEBOUNCE", 5*time.Second),
			PullSchedule: envOr("PAGENOTE_PULL_SCHEDULE", "@every 5m"),
			Compression:  envOr("PAGENOTE_COMPRESSION", "gzip"),
		},
		Drive: DriveConfig{
			AccessToken: os.Getenv("PAGENOTE_DRIVE_TOKEN"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.Warnf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logrus.Warnf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
