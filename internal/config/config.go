package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	AuthSigningKey       string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer           string        `mapstructure:"AUTH_ISSUER"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS         float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int           `mapstructure:"RATE_LIMIT_BURST"`
	Timezone             string        `mapstructure:"TIMEZONE"`
	PhoneRegion          string        `mapstructure:"PHONE_REGION"`
	ReminderPollInterval time.Duration `mapstructure:"REMINDER_POLL_INTERVAL"`
	FCMCredentialsFile   string        `mapstructure:"FCM_CREDENTIALS_FILE"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	LogFile              string        `mapstructure:"LOG_FILE"`
	LogMaxSizeMB         int           `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups        int           `mapstructure:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays        int           `mapstructure:"LOG_MAX_AGE_DAYS"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"TIMEZONE", "PHONE_REGION", "REMINDER_POLL_INTERVAL", "FCM_CREDENTIALS_FILE",
	"LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("PHONE_REGION", "IN")
	v.SetDefault("REMINDER_POLL_INTERVAL", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 50)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 28)

	// Unmarshal only sees env vars that are bound explicitly.
	for _, k := range keys {
		v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in development mode; requests without a bearer token act as owner \"dev-owner\"")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves TIMEZONE. Session dates and times are wall-clock strings
// interpreted in this zone when reminders are computed.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Outside development a
// JWT signing key of at least 32 bytes is required.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
		}
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.ReminderPollInterval <= 0 {
		return fmt.Errorf("REMINDER_POLL_INTERVAL must be positive, got %s", c.ReminderPollInterval)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
