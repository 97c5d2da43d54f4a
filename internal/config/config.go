package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hms/console/internal/platform/apiclient"
)

// Session store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	APIBaseURL      string        `mapstructure:"API_BASE_URL"`
	LoginPath       string        `mapstructure:"LOGIN_PATH"`
	LogoutPath      string        `mapstructure:"LOGOUT_PATH"`
	RefreshPath     string        `mapstructure:"REFRESH_PATH"`
	CurrentUserPath string        `mapstructure:"CURRENT_USER_PATH"`
	RefreshTimeout  time.Duration `mapstructure:"REFRESH_TIMEOUT"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	SessionStore    string        `mapstructure:"SESSION_STORE"`
	SessionSecret   string        `mapstructure:"SESSION_SECRET"`
	SessionTTL      time.Duration `mapstructure:"SESSION_TTL"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir   string        `mapstructure:"MIGRATIONS_DIR"` // empty uses the embedded set
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
	TLSEnabled      bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile     string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile      string        `mapstructure:"TLS_KEY_FILE"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"API_BASE_URL", "LOGIN_PATH", "LOGOUT_PATH", "REFRESH_PATH", "CURRENT_USER_PATH",
	"REFRESH_TIMEOUT", "REQUEST_TIMEOUT",
	"SESSION_STORE", "SESSION_SECRET", "SESSION_TTL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

// Option adjusts the viper instance before the configuration is read.
type Option func(v *viper.Viper)

// WithOverride sets key above every other source, env included.
func WithOverride(key string, value any) Option {
	return func(v *viper.Viper) { v.Set(key, value) }
}

// WithFallback sets key below the env and the .env file.
func WithFallback(key string, value any) Option {
	return func(v *viper.Viper) { v.SetDefault(key, value) }
}

func Load(opts ...Option) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	defaults := apiclient.DefaultConfig("")
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOGIN_PATH", defaults.LoginPath)
	v.SetDefault("LOGOUT_PATH", defaults.LogoutPath)
	v.SetDefault("REFRESH_PATH", defaults.RefreshPath)
	v.SetDefault("CURRENT_USER_PATH", defaults.CurrentUserPath)
	v.SetDefault("REFRESH_TIMEOUT", defaults.RefreshTimeout)
	v.SetDefault("REQUEST_TIMEOUT", defaults.RequestTimeout)
	v.SetDefault("SESSION_STORE", StoreMemory)
	v.SetDefault("SESSION_TTL", 12*time.Hour)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	for _, opt := range opts {
		opt(v)
	}

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
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
	cfg.SessionStore = strings.ToLower(cfg.SessionStore)

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the gateway is configured for production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// API returns the backend client configuration.
func (c *Config) API() apiclient.Config {
	return apiclient.Config{
		BaseURL:         c.APIBaseURL,
		LoginPath:       c.LoginPath,
		LogoutPath:      c.LogoutPath,
		RefreshPath:     c.RefreshPath,
		CurrentUserPath: c.CurrentUserPath,
		RequestTimeout:  c.RequestTimeout,
		RefreshTimeout:  c.RefreshTimeout,
	}
}

// Validate checks that the configuration is safe to serve with.
func (c *Config) Validate() error {
	switch c.SessionStore {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SESSION_STORE is %q", StorePostgres)
		}
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.SessionStore)
	}

	if c.IsProduction() && len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET of at least 32 bytes is required in production")
	}
	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("REFRESH_TIMEOUT must be positive, got %s", c.RefreshTimeout)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
