package config

import (
	"errors"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Supabase  SupabaseConfig
	Autosave  AutosaveConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Demo      DemoConfig
	LogLevel  string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CookieSecure bool
	AllowOrigin  string
	BaseURL      string
}

type DatabaseConfig struct {
	URL      string
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
	Retries  int
}

type SupabaseConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	JWTSecret      string
}

type AutosaveConfig struct {
	Debounce time.Duration
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
	Window  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DemoConfig struct {
	Email    string
	Password string
	Username string
}

// DSN returns the lib/pq connection URL with the credentials escaped.
// DATABASE_URL wins over the individual connection variables.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// LoadConfig loads configuration from environment variables and an optional .env file.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_SSLMODE", "require")
	v.SetDefault("DB_CONNECT_RETRIES", 5)
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("CORS_ALLOW_ORIGIN", "*")
	v.SetDefault("AUTOSAVE_DEBOUNCE_MS", 1000)
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("DEMO_EMAIL", "demo@example.com")
	v.SetDefault("DEMO_PASSWORD", "password123")
	v.SetDefault("DEMO_USERNAME", "demo")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("PORT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			CookieSecure: v.GetBool("COOKIE_SECURE"),
			AllowOrigin:  v.GetString("CORS_ALLOW_ORIGIN"),
			BaseURL:      strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		},
		// Lower-case names are the ones the Supabase connection snippet uses.
		// viper upper-cases env keys, so these are read directly.
		Database: DatabaseConfig{
			URL:      strings.TrimSpace(v.GetString("DATABASE_URL")),
			User:     envOr("user", ""),
			Password: envOr("password", ""),
			Host:     envOr("host", ""),
			Port:     envOr("port", "5432"),
			Name:     envOr("dbname", "postgres"),
			SSLMode:  v.GetString("DB_SSLMODE"),
			Retries:  v.GetInt("DB_CONNECT_RETRIES"),
		},
		Supabase: SupabaseConfig{
			URL:            strings.TrimRight(v.GetString("SUPABASE_URL"), "/"),
			AnonKey:        v.GetString("SUPABASE_ANON_KEY"),
			ServiceRoleKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
			JWTSecret:      v.GetString("SUPABASE_JWT_SECRET"),
		},
		Autosave: AutosaveConfig{
			Debounce: time.Duration(v.GetInt("AUTOSAVE_DEBOUNCE_MS")) * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Enabled: v.GetBool("RATE_LIMIT_ENABLED"),
			RPS:     v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:   v.GetInt("RATE_LIMIT_BURST"),
			Window:  time.Duration(v.GetInt("RATE_LIMIT_WINDOW_SECONDS")) * time.Second,
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Demo: DemoConfig{
			Email:    v.GetString("DEMO_EMAIL"),
			Password: v.GetString("DEMO_PASSWORD"),
			Username: v.GetString("DEMO_USERNAME"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Supabase.JWTSecret == "" {
		errs = append(errs, errors.New("SUPABASE_JWT_SECRET is required"))
	}
	if c.Database.URL == "" && c.Database.Host == "" {
		errs = append(errs, errors.New("DATABASE_URL or host/user/password/dbname is required"))
	}
	if c.Autosave.Debounce <= 0 {
		errs = append(errs, errors.New("AUTOSAVE_DEBOUNCE_MS must be positive"))
	}
	return errors.Join(errs...)
}
