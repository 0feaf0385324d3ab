package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// MinSigningKeyBytes is the shortest accepted session signing key.
const MinSigningKeyBytes = 32

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	StoreBackend      string        `mapstructure:"STORE_BACKEND"`
	DataDir           string        `mapstructure:"DATA_DIR"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	KeyPrefix         string        `mapstructure:"KEY_PREFIX"`
	SimulatedLatency  bool          `mapstructure:"SIMULATED_LATENCY"`
	OTPTTL            time.Duration `mapstructure:"OTP_TTL"`
	OTPCooldown       time.Duration `mapstructure:"OTP_COOLDOWN"`
	OTPMaxAttempts    int           `mapstructure:"OTP_MAX_ATTEMPTS"`
	SessionSigningKey string        `mapstructure:"SESSION_SIGNING_KEY"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`
	VerifyPasswords   bool          `mapstructure:"VERIFY_PASSWORDS"`
	RabbitMQURL       string        `mapstructure:"RABBITMQ_URL"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	ReminderInterval  time.Duration `mapstructure:"REMINDER_INTERVAL"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
}

var keys = []string{
	"PORT", "ENV", "STORE_BACKEND", "DATA_DIR", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"KEY_PREFIX", "SIMULATED_LATENCY", "OTP_TTL", "OTP_COOLDOWN", "OTP_MAX_ATTEMPTS",
	"SESSION_SIGNING_KEY", "SESSION_TTL", "VERIFY_PASSWORDS", "RABBITMQ_URL", "CORS_ORIGINS",
	"REMINDER_INTERVAL", "REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

// Load reads configuration from the environment and an optional .env file in
// the working directory.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("KEY_PREFIX", "mediconnect_")
	v.SetDefault("SIMULATED_LATENCY", true)
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_COOLDOWN", "60s")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("VERIFY_PASSWORDS", false)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("REMINDER_INTERVAL", "1m")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_RPS", 2)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// The .env file is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// SigningKey decodes SESSION_SIGNING_KEY. An empty key yields nil, which
// callers treat as "generate an ephemeral key" in development.
func (c *Config) SigningKey() ([]byte, error) {
	if c.SessionSigningKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.SessionSigningKey)
	if err != nil {
		return nil, fmt.Errorf("SESSION_SIGNING_KEY is not valid hex: %w", err)
	}
	if len(key) < MinSigningKeyBytes {
		return nil, fmt.Errorf("SESSION_SIGNING_KEY must be at least %d bytes (%d hex chars), got %d bytes",
			MinSigningKeyBytes, 2*MinSigningKeyBytes, len(key))
	}
	return key, nil
}

// Validate checks that the configuration can be served.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendFile:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is %q", BackendPostgres)
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q, %q or %q, got %q", BackendMemory, BackendFile, BackendPostgres, c.StoreBackend)
	}
	if c.StoreBackend == BackendFile && c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required when STORE_BACKEND is %q", BackendFile)
	}

	if _, err := c.SigningKey(); err != nil {
		return err
	}
	if !c.IsDev() && c.SessionSigningKey == "" {
		return fmt.Errorf("SESSION_SIGNING_KEY is required outside development")
	}

	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive, got %s", c.OTPTTL)
	}
	if c.OTPCooldown <= 0 {
		return fmt.Errorf("OTP_COOLDOWN must be positive, got %s", c.OTPCooldown)
	}
	if c.OTPMaxAttempts <= 0 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be positive, got %d", c.OTPMaxAttempts)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.ReminderInterval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL must be positive, got %s", c.ReminderInterval)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
