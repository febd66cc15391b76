package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	Port        string
	Environment string
	LogLevel    string

	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	SuperAdminEmails string
	SupportEmails    string
	CatalogModEmails string

	CORSAllowOrigins    string
	RateLimitRPS        int
	RateLimitBurst      int
	UploadRatePerMinute int

	RedisURL string
	NATSURL  string

	StorageDriver        string
	LocalUploadDir       string
	LocalUploadURLPrefix string
	S3Region             string
	S3Bucket             string
	S3Prefix             string
	S3PublicBaseURL      string
	MaxUploadBytes       int64

	MaxProductVariants int
	DefaultCurrency    string
	DefaultCommission  int32
	AuditLogRetention  int
}

func getenvOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value, err := strconv.Atoi(getenvOrDefault(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(getenvOrDefault(key, ""))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// Load reads config from env vars with safe defaults for local development.
func Load() Config {
	return Config{
		Port:        getenvOrDefault("API_PORT", "8080"),
		Environment: getenvOrDefault("API_ENV", "development"),
		LogLevel:    getenvOrDefault("LOG_LEVEL", ""),

		JWTSecret:       getenvOrDefault("JWT_SECRET", "dev-only-secret-change-me-please-0123456789"),
		JWTIssuer:       getenvOrDefault("JWT_ISSUER", "marketplace-storefront"),
		AccessTokenTTL:  getenvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getenvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		SuperAdminEmails: getenvOrDefault("SUPER_ADMIN_EMAILS", ""),
		SupportEmails:    getenvOrDefault("SUPPORT_EMAILS", ""),
		CatalogModEmails: getenvOrDefault("CATALOG_MOD_EMAILS", ""),

		CORSAllowOrigins:    getenvOrDefault("CORS_ALLOW_ORIGINS", "http://localhost:3000"),
		RateLimitRPS:        getenvInt("RATE_LIMIT_RPS", 20),
		RateLimitBurst:      getenvInt("RATE_LIMIT_BURST", 40),
		UploadRatePerMinute: getenvInt("UPLOAD_RATE_LIMIT_PER_MINUTE", 30),

		RedisURL: getenvOrDefault("REDIS_URL", ""),
		NATSURL:  getenvOrDefault("NATS_URL", ""),

		StorageDriver:        strings.ToLower(getenvOrDefault("STORAGE_DRIVER", "local")),
		LocalUploadDir:       getenvOrDefault("LOCAL_UPLOAD_DIR", "./uploads"),
		LocalUploadURLPrefix: getenvOrDefault("LOCAL_UPLOAD_URL_PREFIX", "/uploads"),
		S3Region:             getenvOrDefault("S3_REGION", "us-east-1"),
		S3Bucket:             getenvOrDefault("S3_BUCKET", ""),
		S3Prefix:             getenvOrDefault("S3_PREFIX", "assets"),
		S3PublicBaseURL:      getenvOrDefault("S3_PUBLIC_BASE_URL", ""),
		MaxUploadBytes:       int64(getenvInt("MAX_UPLOAD_BYTES", 25<<20)),

		MaxProductVariants: getenvInt("MAX_PRODUCT_VARIANTS", 500),
		DefaultCurrency:    strings.ToUpper(getenvOrDefault("DEFAULT_CURRENCY", "USD")),
		DefaultCommission:  int32(getenvInt("DEFAULT_COMMISSION_BPS", 1000)),
		AuditLogRetention:  getenvInt("AUDIT_LOG_RETENTION", 10_000),
	}
}
