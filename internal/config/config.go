// Package config loads application configuration from the environment.
//
// A .env file in the working directory is loaded first when present; real
// environment variables always win over it. Every setting has a default that
// works for local development, except the OAuth credentials and the news API
// key, whose absence just switches those features off.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// devSessionSecret is used when SESSION_SECRET is unset. Fine on a laptop,
// never in production; Config.InsecureSecret reports when it is in use.
const devSessionSecret = "newsroom-dev-secret-change-me"

// Session store backends.
const (
	SessionStoreSQL   = "sql"
	SessionStoreRedis = "redis"
)

// Config holds the application configuration.
type Config struct {
	Port     int
	LogLevel slog.Level

	// Storage. DatabaseURL, when set, selects Postgres over SQLite.
	DBPath      string
	DatabaseURL string

	// Sessions
	SessionSecret  string
	InsecureSecret bool // SessionSecret is the built-in dev default
	SessionStore   string
	SessionTTL     time.Duration
	ReapInterval   time.Duration // how often expired sessions are purged
	CookieSecure   bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	Google OAuthConfig
	GitHub OAuthConfig

	News NewsConfig

	FrontendURL string
	TemplateDir string
	StaticDir   string
}

// OAuthConfig is one provider's credentials. The provider is disabled when
// ClientID is empty.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// Enabled reports whether the provider has credentials.
func (o OAuthConfig) Enabled() bool {
	return o.ClientID != ""
}

type NewsConfig struct {
	APIKey   string
	BaseURL  string
	Query    string
	Language string
	CacheTTL time.Duration
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	// .env is optional; in containers the real environment is used.
	_ = godotenv.Load()

	port, err := getInt("PORT", 3000)
	if err != nil {
		return nil, err
	}

	level, err := ParseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:          port,
		LogLevel:      level,
		DBPath:        getEnv("DB_PATH", "data/newsroom.db"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionStore:  strings.ToLower(getEnv("SESSION_STORE", SessionStoreSQL)),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		Google: OAuthConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			CallbackURL:  getEnv("GOOGLE_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/google/callback", port)),
		},
		GitHub: OAuthConfig{
			ClientID:     getEnv("GITHUB_CLIENT_ID", ""),
			ClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
			CallbackURL:  getEnv("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/github/callback", port)),
		},
		News: NewsConfig{
			APIKey:   getEnv("NEWS_API_KEY", ""),
			BaseURL:  getEnv("NEWS_API_URL", "https://newsapi.org/v2"),
			Query:    getEnv("NEWS_QUERY", "tecnologia"),
			Language: getEnv("NEWS_LANGUAGE", "pt"),
		},
		FrontendURL: getEnv("FRONTEND_URL", "*"),
		TemplateDir: getEnv("TEMPLATE_DIR", "web/templates"),
		StaticDir:   getEnv("STATIC_DIR", "web/static"),
	}

	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.CookieSecure, err = getBool("COOKIE_SECURE", false); err != nil {
		return nil, err
	}
	if cfg.News.CacheTTL, err = getDuration("NEWS_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 14*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ReapInterval, err = getDuration("SESSION_REAP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.SessionTTL <= 0 || cfg.ReapInterval <= 0 {
		return nil, fmt.Errorf("SESSION_TTL and SESSION_REAP_INTERVAL must be positive")
	}

	switch {
	case cfg.SessionSecret == "":
		cfg.SessionSecret = devSessionSecret
		cfg.InsecureSecret = true
	case len(cfg.SessionSecret) < 16:
		return nil, fmt.Errorf("SESSION_SECRET must be at least 16 characters")
	}

	if cfg.SessionStore != SessionStoreSQL && cfg.SessionStore != SessionStoreRedis {
		return nil, fmt.Errorf("invalid SESSION_STORE %q: want %q or %q", cfg.SessionStore, SessionStoreSQL, SessionStoreRedis)
	}

	return cfg, nil
}

// ParseLogLevel accepts debug, info, warn and error, case-insensitively.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return v, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return v, nil
}
