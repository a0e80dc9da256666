package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	DefaultOrgID int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	RateLimit RateLimitConfig

	SMTP    SMTPConfig
	SMS     SMSConfig
	Payment PaymentConfig

	// PublicBaseURL is the externally reachable address printed on
	// receipts as the verification link. Empty disables the link.
	PublicBaseURL string

	DispatchConfigPath string
}

// RedisConfig holds connection settings for the rate limiter backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig tunes the public verification limiter and the
// dispatch locks. When disabled no redis connection is opened.
type RateLimitConfig struct {
	Enabled bool

	PublicVerifyClientRate  float64
	PublicVerifyClientBurst int
	PublicVerifyNumberRate  float64
	PublicVerifyNumberBurst int

	DispatchLockTTLSeconds int
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMSConfig holds SMS gateway settings.
type SMSConfig struct {
	GatewayURL string
	APIKey     string
	SenderID   string
}

// PaymentConfig holds the payment confirmation gateway settings.
type PaymentConfig struct {
	GatewayURL string
	APIKey     string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "resibo"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DefaultOrgID: getenvInt64("DEFAULT_ORG", 0),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "resibo"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},

		RateLimit: RateLimitConfig{
			Enabled:                 getenvBool("RATE_LIMIT_ENABLED", false),
			PublicVerifyClientRate:  getenvFloat("RATE_LIMIT_PUBLIC_VERIFY_CLIENT_RATE", 5),
			PublicVerifyClientBurst: getenvInt("RATE_LIMIT_PUBLIC_VERIFY_CLIENT_BURST", 10),
			PublicVerifyNumberRate:  getenvFloat("RATE_LIMIT_PUBLIC_VERIFY_NUMBER_RATE", 2),
			PublicVerifyNumberBurst: getenvInt("RATE_LIMIT_PUBLIC_VERIFY_NUMBER_BURST", 5),
			DispatchLockTTLSeconds:  getenvInt("RATE_LIMIT_DISPATCH_LOCK_TTL_SECONDS", 30),
		},

		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", ""),
			Port:     getenv("SMTP_PORT", "587"),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "receipts@localhost"),
		},

		SMS: SMSConfig{
			GatewayURL: strings.TrimSpace(getenv("SMS_GATEWAY_URL", "")),
			APIKey:     strings.TrimSpace(getenv("SMS_GATEWAY_API_KEY", "")),
			SenderID:   getenv("SMS_SENDER_ID", "RESIBO"),
		},

		Payment: PaymentConfig{
			GatewayURL: strings.TrimSpace(getenv("PAYMENT_GATEWAY_URL", "")),
			APIKey:     strings.TrimSpace(getenv("PAYMENT_GATEWAY_API_KEY", "")),
		},

		PublicBaseURL: strings.TrimRight(strings.TrimSpace(getenv("PUBLIC_BASE_URL", "")), "/"),

		DispatchConfigPath: getenv("DISPATCH_CONFIG_PATH", ""),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
