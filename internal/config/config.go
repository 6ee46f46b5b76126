package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string
	VaultEnv    string

	MasterKeyBase64   string
	MasterKeyHex      string
	MasterKeySecretID string

	AWSRegion   string
	AWSEndpoint string

	StorageBackend   string
	StorageLocalRoot string
	S3Bucket         string
	S3Prefix         string

	MaxUploadBytes           int64
	AuditDetailsMax          int
	AuditAsyncTimeoutSeconds int
	TransferTimeoutSeconds   int
	RetentionDays            int
	RetentionBatchSize       int
	UploadPolicyPath         string

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

const (
	StorageBackendLocal = "local"
	StorageBackendS3    = "s3"
)

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:                 addr,
		PostgresDSN:              os.Getenv("POSTGRES_DSN"),
		LogLevel:                 envDefault("LOG_LEVEL", "info"),
		VaultEnv:                 envDefault("VAULT_ENV", "development"),
		MasterKeyBase64:          os.Getenv("MASTER_KEY_BASE64"),
		MasterKeyHex:             os.Getenv("MASTER_KEY_HEX"),
		MasterKeySecretID:        os.Getenv("MASTER_KEY_SECRET_ID"),
		AWSRegion:                os.Getenv("AWS_REGION"),
		AWSEndpoint:              os.Getenv("AWS_ENDPOINT"),
		StorageBackend:           strings.ToLower(envDefault("STORAGE_BACKEND", StorageBackendLocal)),
		StorageLocalRoot:         envDefault("STORAGE_LOCAL_ROOT", "./data/blobs"),
		S3Bucket:                 os.Getenv("S3_BUCKET"),
		S3Prefix:                 os.Getenv("S3_PREFIX"),
		MaxUploadBytes:           int64(envIntDefault("MAX_UPLOAD_BYTES", 100<<20)),
		AuditDetailsMax:          envIntDefault("AUDIT_DETAILS_MAX", 1000),
		AuditAsyncTimeoutSeconds: envIntDefault("AUDIT_ASYNC_TIMEOUT_SECONDS", 5),
		TransferTimeoutSeconds:   envIntDefault("TRANSFER_TIMEOUT_SECONDS", 300),
		RetentionDays:            envIntDefault("RETENTION_DAYS", 90),
		RetentionBatchSize:       envIntDefault("RETENTION_BATCH_SIZE", 100),
		UploadPolicyPath:         os.Getenv("UPLOAD_POLICY_PATH"),
		RateLimitRequests:        envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds:   envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:      envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:         envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func (c Config) Production() bool {
	return strings.EqualFold(c.VaultEnv, "production")
}

func (c Config) TransferTimeout() time.Duration {
	return time.Duration(c.TransferTimeoutSeconds) * time.Second
}

func (c Config) AuditAsyncTimeout() time.Duration {
	return time.Duration(c.AuditAsyncTimeoutSeconds) * time.Second
}

func (c Config) RetentionPeriod() time.Duration {
	if c.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
