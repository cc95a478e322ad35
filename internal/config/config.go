package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr          = ":8080"
	defaultDatabaseURL       = "imagehost.db"
	defaultJWTSecret         = "change-me-jwt-secret"
	defaultCleanupIntervalMS = "300000"
	defaultSweepBatch        = "500"
	defaultBlobDeleteBatch   = "50"
	defaultOpenWindow        = "1m"
	defaultGuestOpenWindow   = "5m"
	defaultKeepAlive         = "25s"
	defaultSubscriberBuffer  = "16"
	defaultMaxUploadBytes    = "10485760"
	defaultBlobBackend       = "local"
	defaultUploadDir         = "./uploads"
	defaultPublicBaseURL     = "http://localhost:8080"
	defaultBlobBucket        = "images"
	defaultS3Region          = "us-east-1"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
)

const (
	BlobBackendLocal = "local"
	BlobBackendMinio = "minio"
	BlobBackendS3    = "s3"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	DatabaseURL string
	JWTSecret   string

	// CleanupInterval <= 0 disables automatic sweeping.
	CleanupInterval     time.Duration
	SweepBatchSize      int
	BlobDeleteBatchSize int
	OpenWindow          time.Duration
	GuestOpenWindow     time.Duration
	KeepAliveInterval   time.Duration
	SubscriberBuffer    int
	MaxUploadBytes      int64
	CleanupToken        string

	BlobBackend   string
	UploadDir     string
	PublicBaseURL string
	BlobBucket    string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	S3BaseEndpoint string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string

	LogLevel           string
	LogFormat          string
	CORSAllowedOrigins []string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.CleanupToken = strings.TrimSpace(os.Getenv("CLEANUP_TOKEN"))

	var err error
	intervalMS, err := parseIntEnv("CLEANUP_INTERVAL_MS", defaultCleanupIntervalMS)
	if err != nil {
		return nil, err
	}
	cfg.CleanupInterval = time.Duration(intervalMS) * time.Millisecond

	if cfg.SweepBatchSize, err = parseIntEnv("SWEEP_BATCH_SIZE", defaultSweepBatch); err != nil {
		return nil, err
	}
	if cfg.BlobDeleteBatchSize, err = parseIntEnv("BLOB_DELETE_BATCH_SIZE", defaultBlobDeleteBatch); err != nil {
		return nil, err
	}
	if cfg.SubscriberBuffer, err = parseIntEnv("SUBSCRIBER_BUFFER", defaultSubscriberBuffer); err != nil {
		return nil, err
	}
	maxUpload, err := parseIntEnv("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	if cfg.OpenWindow, err = parseDurationEnv("OPEN_WINDOW", defaultOpenWindow); err != nil {
		return nil, err
	}
	if cfg.GuestOpenWindow, err = parseDurationEnv("GUEST_OPEN_WINDOW", defaultGuestOpenWindow); err != nil {
		return nil, err
	}
	if cfg.KeepAliveInterval, err = parseDurationEnv("KEEPALIVE_INTERVAL", defaultKeepAlive); err != nil {
		return nil, err
	}

	cfg.BlobBackend = strings.ToLower(strings.TrimSpace(getEnv("BLOB_BACKEND", defaultBlobBackend)))
	cfg.UploadDir = strings.TrimSpace(getEnv("UPLOAD_DIR", defaultUploadDir))
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(getEnv("PUBLIC_BASE_URL", defaultPublicBaseURL)), "/")
	cfg.BlobBucket = strings.TrimSpace(getEnv("BLOB_BUCKET", defaultBlobBucket))

	cfg.MinioEndpoint = strings.TrimSpace(os.Getenv("MINIO_ENDPOINT"))
	cfg.MinioAccessKey = strings.TrimSpace(os.Getenv("MINIO_ACCESS_KEY"))
	cfg.MinioSecretKey = strings.TrimSpace(os.Getenv("MINIO_SECRET_KEY"))
	cfg.MinioUseSSL = parseBoolEnv("MINIO_USE_SSL", "false")

	cfg.S3BaseEndpoint = strings.TrimSpace(os.Getenv("S3_BASE_ENDPOINT"))
	cfg.S3Region = strings.TrimSpace(getEnv("S3_REGION", defaultS3Region))
	cfg.S3AccessKey = strings.TrimSpace(os.Getenv("S3_ACCESS_KEY"))
	cfg.S3SecretKey = strings.TrimSpace(os.Getenv("S3_SECRET_KEY"))

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", defaultLogLevel)))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(getEnv("LOG_FORMAT", defaultLogFormat)))
	cfg.CORSAllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProdLike reports whether the config targets a production environment.
func (c *Config) IsProdLike() bool { return isProdLike(c.AppEnv) }

func validateConfig(cfg *Config) error {
	if cfg.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.SweepBatchSize <= 0 {
		return fmt.Errorf("SWEEP_BATCH_SIZE must be > 0")
	}
	if cfg.BlobDeleteBatchSize <= 0 {
		return fmt.Errorf("BLOB_DELETE_BATCH_SIZE must be > 0")
	}
	if cfg.OpenWindow <= 0 {
		return fmt.Errorf("OPEN_WINDOW must be > 0")
	}
	if cfg.GuestOpenWindow <= 0 {
		return fmt.Errorf("GUEST_OPEN_WINDOW must be > 0")
	}
	if cfg.KeepAliveInterval <= 0 {
		return fmt.Errorf("KEEPALIVE_INTERVAL must be > 0")
	}
	if cfg.SubscriberBuffer <= 0 {
		return fmt.Errorf("SUBSCRIBER_BUFFER must be > 0")
	}
	if cfg.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}

	switch cfg.BlobBackend {
	case BlobBackendLocal:
		if cfg.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR must not be empty for the local backend")
		}
	case BlobBackendMinio:
		if cfg.MinioEndpoint == "" || cfg.BlobBucket == "" {
			return fmt.Errorf("MINIO_ENDPOINT and BLOB_BUCKET are required for the minio backend")
		}
	case BlobBackendS3:
		if cfg.BlobBucket == "" {
			return fmt.Errorf("BLOB_BUCKET is required for the s3 backend")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be one of: local, minio, s3")
	}

	switch cfg.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if cfg.CleanupToken == "" {
			return fmt.Errorf("in prod/release CLEANUP_TOKEN must be set")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
