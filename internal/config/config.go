// Package config loads and validates fitpass configuration from the environment
// and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	Port      int    `mapstructure:"PORT"`
	Env       string `mapstructure:"APP_ENV"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// StoreDriver selects where reset requests live: "mongo" (default) or "memory" for a single instance.
	StoreDriver   string `mapstructure:"STORE_DRIVER"`
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	JWTSecret      string        `mapstructure:"JWT_SECRET"`
	JWTTTL         time.Duration `mapstructure:"JWT_TTL"`
	SessionKey     string        `mapstructure:"SESSION_KEY"`
	SessionSecure  bool          `mapstructure:"SESSION_SECURE"`
	AllowedOrigins string        `mapstructure:"ALLOWED_ORIGINS"`
	BcryptCost     int           `mapstructure:"BCRYPT_COST"`

	// Per-IP request limit applied to every route.
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	ResetCodeTTL        time.Duration `mapstructure:"RESET_CODE_TTL"`
	ResetTokenTTL       time.Duration `mapstructure:"RESET_TOKEN_TTL"`
	ResetCooldown       time.Duration `mapstructure:"RESET_COOLDOWN"`
	ResetMaxAttempts    int           `mapstructure:"RESET_MAX_ATTEMPTS"`
	PasswordMinLength   int           `mapstructure:"PASSWORD_MIN_LENGTH"`
	ResetConcealUnknown bool          `mapstructure:"RESET_CONCEAL_UNKNOWN"`
	CleanupInterval     time.Duration `mapstructure:"RESET_CLEANUP_INTERVAL"`
	ResetRetention      time.Duration `mapstructure:"RESET_RETENTION"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	SMSAPIKey  string `mapstructure:"SMS_API_KEY"`
	SMSBaseURL string `mapstructure:"SMS_BASE_URL"`
	SMSSender  string `mapstructure:"SMS_SENDER"`

	NotifyWorkers   int `mapstructure:"NOTIFY_WORKERS"`
	NotifyQueueSize int `mapstructure:"NOTIFY_QUEUE_SIZE"`

	GoogleClientID       string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	FacebookClientID     string `mapstructure:"FACEBOOK_CLIENT_ID"`
	FacebookClientSecret string `mapstructure:"FACEBOOK_CLIENT_SECRET"`
	OAuthCallbackBaseURL string `mapstructure:"OAUTH_CALLBACK_BASE_URL"`
}

// Load reads .env (if present), then builds and validates Config from the environment.
// Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Every key needs a default so Unmarshal picks it up from AutomaticEnv.
func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("STORE_DRIVER", StoreMongo)
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DATABASE", "fitpass")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("SESSION_KEY", "")
	v.SetDefault("SESSION_SECURE", false)
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("RATE_LIMIT_RPS", 3)
	v.SetDefault("RATE_LIMIT_BURST", 5)
	v.SetDefault("RESET_CODE_TTL", "15m")
	v.SetDefault("RESET_TOKEN_TTL", "10m")
	v.SetDefault("RESET_COOLDOWN", "60s")
	v.SetDefault("RESET_MAX_ATTEMPTS", 5)
	v.SetDefault("PASSWORD_MIN_LENGTH", 8)
	v.SetDefault("RESET_CONCEAL_UNKNOWN", false)
	v.SetDefault("RESET_CLEANUP_INTERVAL", "10m")
	v.SetDefault("RESET_RETENTION", "24h")
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMS_API_KEY", "")
	v.SetDefault("SMS_BASE_URL", "https://www.smslocal.com/dev/bulkV2")
	v.SetDefault("SMS_SENDER", "")
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 100)
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("FACEBOOK_CLIENT_ID", "")
	v.SetDefault("FACEBOOK_CLIENT_SECRET", "")
	v.SetDefault("OAUTH_CALLBACK_BASE_URL", "http://localhost:8080")
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT must be between 1 and 65535, got %d", c.Port)
	}
	switch c.StoreDriver {
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.New("config: MONGO_URI must be set when STORE_DRIVER=mongo")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.IsProduction() {
		if c.JWTSecret == "" {
			return errors.New("config: JWT_SECRET must be set when APP_ENV=production")
		}
		if c.SessionKey == "" {
			return errors.New("config: SESSION_KEY must be set when APP_ENV=production")
		}
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	for name, d := range map[string]time.Duration{
		"JWT_TTL":                c.JWTTTL,
		"RESET_CODE_TTL":         c.ResetCodeTTL,
		"RESET_TOKEN_TTL":        c.ResetTokenTTL,
		"RESET_COOLDOWN":         c.ResetCooldown,
		"RESET_CLEANUP_INTERVAL": c.CleanupInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be a positive duration", name)
		}
	}
	if c.ResetMaxAttempts < 1 {
		return errors.New("config: RESET_MAX_ATTEMPTS must be at least 1")
	}
	if c.PasswordMinLength < 1 {
		return errors.New("config: PASSWORD_MIN_LENGTH must be at least 1")
	}
	if c.NotifyWorkers < 1 || c.NotifyQueueSize < 1 {
		return errors.New("config: NOTIFY_WORKERS and NOTIFY_QUEUE_SIZE must be positive")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AllowedOriginsList returns CORS origins from the comma-separated config.
func (c *Config) AllowedOriginsList() []string {
	if c == nil || c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
