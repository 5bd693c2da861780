package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Session  SessionCookieConfig
	Email    EmailConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	Driver            string // "postgres" or "memory"
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
}

type ServerConfig struct {
	Port           string
	Env            string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
	AllowedOrigins []string // CORS
	LoginRateLimit int      // Requests per minute per IP on /auth endpoints
}

type AuthConfig struct {
	SecretKey                string
	ExpiresSession           time.Duration // auth_expires_session
	SessionGrace             time.Duration
	MaxAttempts              int           // auth_max_attempts
	LockoutTime              time.Duration // auth_lockout_time
	AttemptsWindow           time.Duration // auth_attempts_window
	SystemLockdownMultiplier int           // auth_system_lockdown_multiplier
	ResetKeyTTL              time.Duration
	ResetResendCooldown      time.Duration
	BcryptCost               int
	TimingDelayBaseMs        int
	TimingDelayRandomMs      int
	TimingDelayOnSuccess     bool
	CleanupInterval          time.Duration
}

type SessionCookieConfig struct {
	CookieName string
	Domain     string
	Secure     bool
	SameSite   string
}

type EmailConfig struct {
	AWSRegion    string
	FromAddress  string
	ResetURLBase string
}

// Enabled reports whether outbound email is configured
func (c EmailConfig) Enabled() bool {
	return c.AWSRegion != "" && c.FromAddress != ""
}

type LogConfig struct {
	Level     string
	AuditFile string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	secretKey := getEnv("SECRET_KEY", "")
	if secretKey == "" {
		return nil, fmt.Errorf("SECRET_KEY is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:            getEnv("STORE_DRIVER", "postgres"),
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "sessionguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
			LoginRateLimit: getEnvAsInt("LOGIN_RATE_LIMIT", 20),
		},
		Auth: AuthConfig{
			SecretKey:                secretKey,
			ExpiresSession:           getEnvAsDuration("AUTH_EXPIRES_SESSION", 2*time.Hour),
			SessionGrace:             getEnvAsDuration("AUTH_SESSION_GRACE", 1*time.Minute),
			MaxAttempts:              getEnvAsInt("AUTH_MAX_ATTEMPTS", 5),
			LockoutTime:              getEnvAsDuration("AUTH_LOCKOUT_TIME", 15*time.Minute),
			AttemptsWindow:           getEnvAsDuration("AUTH_ATTEMPTS_WINDOW", 15*time.Minute),
			SystemLockdownMultiplier: getEnvAsInt("AUTH_SYSTEM_LOCKDOWN_MULTIPLIER", 10),
			ResetKeyTTL:              getEnvAsDuration("AUTH_RESET_KEY_TTL", 1*time.Hour),
			ResetResendCooldown:      getEnvAsDuration("AUTH_RESET_RESEND_COOLDOWN", 5*time.Minute),
			BcryptCost:               getEnvAsInt("AUTH_BCRYPT_COST", 12),
			TimingDelayBaseMs:        getEnvAsInt("TIMING_DELAY_BASE_MS", 0),
			TimingDelayRandomMs:      getEnvAsInt("TIMING_DELAY_RANDOM_MS", 0),
			TimingDelayOnSuccess:     getEnvAsBool("TIMING_DELAY_ON_SUCCESS", false),
			CleanupInterval:          getEnvAsDuration("CLEANUP_INTERVAL", 30*time.Minute),
		},
		Session: SessionCookieConfig{
			CookieName: getEnv("SESSION_COOKIE_NAME", "sg_session"),
			Domain:     getEnv("SESSION_COOKIE_DOMAIN", ""),
			Secure:     getEnvAsBool("SESSION_COOKIE_SECURE", env == "production"),
			SameSite:   getEnv("SESSION_COOKIE_SAMESITE", "lax"),
		},
		Email: EmailConfig{
			AWSRegion:    getEnv("EMAIL_AWS_REGION", ""),
			FromAddress:  getEnv("EMAIL_FROM_ADDRESS", ""),
			ResetURLBase: getEnv("EMAIL_RESET_URL_BASE", "http://localhost:8080"),
		},
		Log: LogConfig{
			Level:     getEnv("LOG_LEVEL", "info"),
			AuditFile: getEnv("LOG_AUDIT_FILE", ""),
		},
	}

	if cfg.Database.Driver == "postgres" && cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateSecretKey(secretKey, env); err != nil {
		return nil, err
	}

	if err := cfg.Auth.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecretKey enforces minimum security standards for the process-wide secret
func validateSecretKey(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("SECRET_KEY must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("SECRET_KEY cannot be a common weak value")
		}
	}

	return nil
}

func (c *AuthConfig) validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("AUTH_MAX_ATTEMPTS must be at least 1")
	}
	if c.SystemLockdownMultiplier < 1 {
		return fmt.Errorf("AUTH_SYSTEM_LOCKDOWN_MULTIPLIER must be at least 1")
	}
	if c.SessionGrace >= c.ExpiresSession {
		return fmt.Errorf("AUTH_SESSION_GRACE (%s) must be shorter than AUTH_EXPIRES_SESSION (%s)",
			c.SessionGrace, c.ExpiresSession)
	}
	if c.AttemptsWindow <= 0 {
		return fmt.Errorf("AUTH_ATTEMPTS_WINDOW must be positive")
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
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
	value := getEnv(key, "")
	if value == "" {
		return []string{}
	}
	items := strings.Split(value, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
