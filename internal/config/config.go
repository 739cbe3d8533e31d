package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Environment string
	LogLevel    string

	DatabaseURL string
	RedisURL    string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIORegion    string

	WorkerConcurrency int
	JobTimeout        time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	MetricsPort       int

	MediaFolder string
	FFmpegPath  string
	FFprobePath string

	// Admin alert delivery (optional; alerts are logged when SMTP is not set)
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPFromAddress string
	AdminEmail      string
}

func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	cfg.MinIOEndpoint = os.Getenv("MINIO_ENDPOINT")
	if cfg.MinIOEndpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT is required")
	}

	cfg.MinIOAccessKey = os.Getenv("MINIO_ACCESS_KEY")
	if cfg.MinIOAccessKey == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY is required")
	}

	cfg.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
	if cfg.MinIOSecretKey == "" {
		return nil, fmt.Errorf("MINIO_SECRET_KEY is required")
	}

	cfg.MinIOBucket = getEnvString("MINIO_BUCKET", "media")
	cfg.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.MinIORegion = getEnvString("MINIO_REGION", "us-east-1")

	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 4)
	cfg.JobTimeout, err = getEnvDuration("JOB_TIMEOUT", "5m")
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_TIMEOUT: %w", err)
	}
	cfg.MaxRetries = getEnvInt("MAX_RETRIES", 3)
	cfg.RetryBackoff, err = getEnvDuration("RETRY_BACKOFF", "5s")
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_BACKOFF: %w", err)
	}
	cfg.MetricsPort = getEnvInt("METRICS_PORT", 9090)

	cfg.MediaFolder = getEnvString("MEDIA_FOLDER", "chekins_posts")
	cfg.FFmpegPath = getEnvString("FFMPEG_PATH", "ffmpeg")
	cfg.FFprobePath = getEnvString("FFPROBE_PATH", "ffprobe")

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 1025)
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFromAddress = getEnvString("SMTP_FROM_ADDRESS", "noreply@chekins.app")
	cfg.AdminEmail = getEnvString("ADMIN_EMAIL", "admin@chekins.app")

	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return time.ParseDuration(value)
}

func (c *Config) Validate() error {
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("invalid worker concurrency: %d", c.WorkerConcurrency)
	}

	if c.MaxRetries < 1 {
		return fmt.Errorf("invalid max retries: %d", c.MaxRetries)
	}

	if c.RetryBackoff <= 0 {
		return fmt.Errorf("invalid retry backoff: %s", c.RetryBackoff)
	}

	return nil
}
