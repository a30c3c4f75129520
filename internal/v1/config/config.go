package config

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration
type Config struct {
	// Required variables
	Port          string
	RedisAddr     string
	SQLitePath    string
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	EmailFrom     string
	AuthAddr      string
	EncryptionKey []byte // decoded 32-byte key

	// Optional variables with defaults
	GoEnv            string
	LogLevel         string
	RedisPassword    string
	EmailFromName    string
	AuthTimeout      time.Duration
	ReminderInterval time.Duration
	ReminderWindow   time.Duration
	DevelopmentMode  bool
	OTLPEndpoint     string

	// Rate Limits
	RateLimitWsIP string
}

// ValidateEnv validates all required environment variables and returns a Config object.
// Returns an error if any required variable is missing or invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// Required: PORT (valid port number)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errs = append(errs, "PORT is required")
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	// Required: REDIS_ADDR (document store, format: host:port)
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	if cfg.RedisAddr == "" {
		errs = append(errs, "REDIS_ADDR is required")
	} else if !isValidHostPort(cfg.RedisAddr) {
		errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
	}
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	// Required: SQLITE_PATH (relational store for events and reminders)
	cfg.SQLitePath = os.Getenv("SQLITE_PATH")
	if cfg.SQLitePath == "" {
		errs = append(errs, "SQLITE_PATH is required")
	}

	// Required: SMTP settings for the mail sink
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPHost == "" {
		errs = append(errs, "SMTP_HOST is required")
	}
	smtpPort := os.Getenv("SMTP_PORT")
	if smtpPort == "" {
		errs = append(errs, "SMTP_PORT is required")
	} else {
		port, err := strconv.Atoi(smtpPort)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("SMTP_PORT must be a valid port number (got '%s')", smtpPort))
		} else {
			cfg.SMTPPort = port
		}
	}
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	if cfg.SMTPUser == "" {
		errs = append(errs, "SMTP_USER is required")
	}
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	if cfg.SMTPPassword == "" {
		errs = append(errs, "SMTP_PASSWORD is required")
	}
	cfg.EmailFrom = os.Getenv("EMAIL_FROM")
	if cfg.EmailFrom == "" {
		errs = append(errs, "EMAIL_FROM is required")
	}
	cfg.EmailFromName = getEnvOrDefault("EMAIL_FROM_NAME", "Gatherly")

	// Required: AUTH_SERVICE_HOST / AUTH_SERVICE_PORT (gRPC ValidateUser)
	authHost := os.Getenv("AUTH_SERVICE_HOST")
	authPort := os.Getenv("AUTH_SERVICE_PORT")
	if authHost == "" || authPort == "" {
		errs = append(errs, "AUTH_SERVICE_HOST and AUTH_SERVICE_PORT are required")
	} else {
		cfg.AuthAddr = authHost + ":" + authPort
		if !isValidHostPort(cfg.AuthAddr) {
			errs = append(errs, fmt.Sprintf("AUTH_SERVICE_HOST/AUTH_SERVICE_PORT must form 'host:port' (got '%s')", cfg.AuthAddr))
		}
	}

	// Required: ENCRYPTION_KEY (URL-safe base64, 32-byte key)
	rawKey := os.Getenv("ENCRYPTION_KEY")
	if rawKey == "" {
		errs = append(errs, "ENCRYPTION_KEY is required")
	} else {
		key, err := base64.URLEncoding.DecodeString(rawKey)
		if err != nil {
			// Accept unpadded keys too
			key, err = base64.RawURLEncoding.DecodeString(rawKey)
		}
		if err != nil {
			errs = append(errs, "ENCRYPTION_KEY must be URL-safe base64")
		} else if len(key) != 32 {
			errs = append(errs, fmt.Sprintf("ENCRYPTION_KEY must decode to 32 bytes (got %d)", len(key)))
		} else {
			cfg.EncryptionKey = key
		}
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	var err error
	cfg.AuthTimeout, err = parseDurationOrDefault("AUTH_TIMEOUT", 2*time.Second)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.ReminderInterval, err = parseDurationOrDefault("REMINDER_TICK_INTERVAL", 60*time.Second)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.ReminderWindow, err = parseDurationOrDefault("REMINDER_WINDOW", 5*time.Minute)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// Rate Limits (Defaults: M = Minute, H = Hour)
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	return parts[0] != ""
}

func parseDurationOrDefault(key string, def time.Duration) (time.Duration, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration (got '%s')", key, raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive (got '%s')", key, raw)
	}
	return d, nil
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("Environment configuration validated successfully")
	slog.Info("Configuration",
		"port", cfg.Port,
		"redis_addr", cfg.RedisAddr,
		"sqlite_path", cfg.SQLitePath,
		"smtp_host", cfg.SMTPHost,
		"smtp_port", cfg.SMTPPort,
		"auth_addr", cfg.AuthAddr,
		"encryption_key", "***",
		"go_env", cfg.GoEnv,
		"development_mode", cfg.DevelopmentMode,
		"reminder_tick_interval", cfg.ReminderInterval,
		"reminder_window", cfg.ReminderWindow,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
