package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Storage backends selectable for OTP records and refresh tokens.
const (
	StoreDynamoDB = "dynamodb"
	StoreRedis    = "redis"
)

type Config struct {
	Server   ServerConfig
	DynamoDB DynamoDBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	OTP      OTPConfig
	Email    EmailConfig
}

type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	LogLevel       string
	AllowedOrigins []string
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey     string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	RefreshStore  string
}

// OTPConfig carries storage settings only; the code lifetime is fixed.
type OTPConfig struct {
	Store          string
	RetentionGrace time.Duration
}

type EmailConfig struct {
	// Providers is the ordered fallback chain, e.g. "resend,mailersend". "log" only logs.
	Providers        []string
	FromEmail        string
	FromName         string
	ResendAPIKey     string
	MailerSendAPIKey string
	SendTimeout      time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real env vars win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},

		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "AccountsTable"),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			SecretKey:     getEnv("JWT_SECRET_KEY", ""),
			AccessExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
			RefreshStore:  strings.ToLower(getEnv("REFRESH_TOKEN_STORE", StoreRedis)),
		},
		OTP: OTPConfig{
			Store:          strings.ToLower(getEnv("OTP_STORE", StoreDynamoDB)),
			RetentionGrace: getEnvAsDuration("OTP_RETENTION_GRACE", time.Hour),
		},
		Email: EmailConfig{
			Providers:        getEnvAsList("EMAIL_PROVIDERS", []string{"log"}),
			FromEmail:        getEnv("EMAIL_FROM", "no-reply@example.com"),
			FromName:         getEnv("EMAIL_FROM_NAME", "Accounts"),
			ResendAPIKey:     getEnv("RESEND_API_KEY", ""),
			MailerSendAPIKey: getEnv("MAILERSEND_API_KEY", ""),
			SendTimeout:      getEnvAsDuration("EMAIL_SEND_TIMEOUT", 10*time.Second),
		},
	}

	if cfg.JWT.SecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}

	if len(cfg.JWT.SecretKey) < 32 {
		return nil, fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	if !validStore(cfg.OTP.Store) {
		return nil, fmt.Errorf("OTP_STORE must be %q or %q, got %q", StoreDynamoDB, StoreRedis, cfg.OTP.Store)
	}

	if !validStore(cfg.JWT.RefreshStore) {
		return nil, fmt.Errorf("REFRESH_TOKEN_STORE must be %q or %q, got %q", StoreDynamoDB, StoreRedis, cfg.JWT.RefreshStore)
	}

	if cfg.OTP.RetentionGrace < 0 {
		return nil, fmt.Errorf("OTP_RETENTION_GRACE must not be negative")
	}

	return cfg, nil
}

func validStore(name string) bool {
	return name == StoreDynamoDB || name == StoreRedis
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	out := lo.Uniq(lo.Compact(lo.Map(strings.Split(value, ","), func(part string, _ int) string {
		return strings.ToLower(strings.TrimSpace(part))
	})))
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
