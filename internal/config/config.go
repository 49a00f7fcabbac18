package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers for the account repository
const (
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Email providers
const (
	EmailProviderSES = "ses"
	EmailProviderLog = "log"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Security SecurityConfig
	Email    EmailConfig
	MFA      MFAConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	RateLimit      int
	RateWindow     time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type StorageConfig struct {
	Driver string
	// Sessions go to Redis when an address is configured, memory otherwise
	SessionDriver string
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret           string
	IdentityTokenExpiry time.Duration
	SessionTokenExpiry  time.Duration
}

type SecurityConfig struct {
	LockoutThreshold    int
	LockoutDuration     time.Duration
	PasswordMaxAge      time.Duration
	PasswordHistorySize int
	LoginOTPExpiry      time.Duration
	ResetOTPExpiry      time.Duration
	ResetTokenExpiry    time.Duration
	MaxOTPAttempts      int
	TimingBaseDelay     time.Duration
	TimingJitter        time.Duration
}

type EmailConfig struct {
	Provider    string
	AWSRegion   string
	FromAddress string
	AppURL      string
	SendTimeout time.Duration
}

type MFAConfig struct {
	// 32 byte AES key, hex encoded; TOTP is disabled when empty
	EncryptionKey []byte
	Issuer        string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			RateLimit:      getEnvAsInt("AUTH_RATE_LIMIT", 10),
			RateWindow:     getEnvAsDuration("AUTH_RATE_WINDOW", time.Minute),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(getEnv("STORAGE_DRIVER", StorageMongo)),
		},
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "arcadia"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DATABASE", "arcadia"),
			Timeout:  getEnvAsDuration("MONGO_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:           jwtSecret,
			IdentityTokenExpiry: getEnvAsDuration("IDENTITY_TOKEN_EXPIRY", 24*time.Hour),
			SessionTokenExpiry:  getEnvAsDuration("SESSION_TOKEN_EXPIRY", 24*time.Hour),
		},
		Security: SecurityConfig{
			LockoutThreshold:    getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			LockoutDuration:     getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),
			PasswordMaxAge:      getEnvAsDuration("PASSWORD_MAX_AGE", 90*24*time.Hour),
			PasswordHistorySize: getEnvAsInt("PASSWORD_HISTORY_SIZE", 5),
			LoginOTPExpiry:      getEnvAsDuration("LOGIN_OTP_EXPIRY", 10*time.Minute),
			ResetOTPExpiry:      getEnvAsDuration("RESET_OTP_EXPIRY", 30*time.Minute),
			ResetTokenExpiry:    getEnvAsDuration("RESET_TOKEN_EXPIRY", 1*time.Hour),
			MaxOTPAttempts:      getEnvAsInt("MAX_OTP_ATTEMPTS", 5),
			TimingBaseDelay:     getEnvAsDuration("AUTH_TIMING_BASE_DELAY", 250*time.Millisecond),
			TimingJitter:        getEnvAsDuration("AUTH_TIMING_JITTER", 50*time.Millisecond),
		},
		Email: EmailConfig{
			Provider:    strings.ToLower(getEnv("EMAIL_PROVIDER", EmailProviderLog)),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", "no-reply@arcadia.gg"),
			AppURL:      getEnv("APP_URL", "http://localhost:5173"),
			SendTimeout: getEnvAsDuration("EMAIL_SEND_TIMEOUT", 10*time.Second),
		},
		MFA: MFAConfig{
			Issuer: getEnv("MFA_ISSUER", "Arcadia"),
		},
	}

	if cfg.Redis.Addr != "" {
		cfg.Storage.SessionDriver = "redis"
	} else {
		cfg.Storage.SessionDriver = StorageMemory
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	switch cfg.Storage.Driver {
	case StorageMongo, StorageMemory:
	case StoragePostgres:
		if cfg.Database.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("STORAGE_DRIVER must be one of mongo, postgres, memory (got %q)", cfg.Storage.Driver)
	}

	if env == "production" && cfg.Storage.Driver == StorageMemory {
		return nil, fmt.Errorf("STORAGE_DRIVER=memory is not allowed in production")
	}

	switch cfg.Email.Provider {
	case EmailProviderSES, EmailProviderLog:
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be ses or log (got %q)", cfg.Email.Provider)
	}

	if cfg.Security.LockoutThreshold < 1 {
		return nil, fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1")
	}
	if cfg.Security.PasswordHistorySize < 1 {
		return nil, fmt.Errorf("PASSWORD_HISTORY_SIZE must be at least 1")
	}

	if raw := getEnv("MFA_ENCRYPTION_KEY", ""); raw != "" {
		key, err := hex.DecodeString(raw)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("MFA_ENCRYPTION_KEY must be 64 hex characters")
		}
		cfg.MFA.EncryptionKey = key
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if strings.Repeat(weak, len(secretLower)/len(weak)) == secretLower {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS")
	}

	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
