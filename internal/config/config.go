package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting read from the environment.
type Config struct {
	DatabaseURL      string
	ServerPort       string
	JWTSecret        string
	AllowedOrigins   string
	OpenAIAPIKey     string
	OpenAIModel      string
	LogLevel         string
	LogFormat        string // "text" or "json"
	CacheSize        int
	ReminderLeadDays int
	ReminderAt       string // HH:MM, server local time
	TokenTTL         time.Duration
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", k, v)
	}
	return n, nil
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    getenv("DATABASE_URL", ""),
		ServerPort:     getenv("SERVER_PORT", "8080"),
		JWTSecret:      getenv("JWT_SECRET", ""),
		AllowedOrigins: getenv("ALLOWED_ORIGINS", ""),
		OpenAIAPIKey:   getenv("OPENAI_API_KEY", ""),
		OpenAIModel:    getenv("OPENAI_MODEL", "gpt-4o"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFormat:      getenv("LOG_FORMAT", "text"),
		ReminderAt:     getenv("REMINDER_AT", "08:00"),
	}

	var err error
	if cfg.CacheSize, err = getenvInt("CACHE_SIZE", 512); err != nil {
		return nil, err
	}
	if cfg.ReminderLeadDays, err = getenvInt("REMINDER_LEAD_DAYS", 7); err != nil {
		return nil, err
	}

	ttl := getenv("TOKEN_TTL", "1h")
	if cfg.TokenTTL, err = time.ParseDuration(ttl); err != nil {
		return nil, fmt.Errorf("TOKEN_TTL must be a duration, got %q", ttl)
	}

	return cfg, nil
}

// Validate checks the settings needed to run the HTTP server.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL environment variable not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable not set"))
	}
	if c.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_SIZE must be > 0, got %d", c.CacheSize))
	}
	if c.ReminderLeadDays < 0 {
		errs = append(errs, fmt.Errorf("REMINDER_LEAD_DAYS must be >= 0, got %d", c.ReminderLeadDays))
	}
	if _, err := time.Parse("15:04", c.ReminderAt); err != nil {
		errs = append(errs, fmt.Errorf("REMINDER_AT must be HH:MM, got %q", c.ReminderAt))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
