package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads, so a developer's shell (or a
// stray .env) can't leak into the test. t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "DB_PATH", "DATABASE_URL", "SESSION_SECRET",
		"SESSION_STORE", "SESSION_TTL", "SESSION_REAP_INTERVAL", "COOKIE_SECURE", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_CALLBACK_URL",
		"GITHUB_CLIENT_ID", "GITHUB_CLIENT_SECRET", "GITHUB_CALLBACK_URL",
		"NEWS_API_KEY", "NEWS_API_URL", "NEWS_QUERY", "NEWS_LANGUAGE", "NEWS_CACHE_TTL",
		"FRONTEND_URL", "TEMPLATE_DIR", "STATIC_DIR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "data/newsroom.db", cfg.DBPath)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, SessionStoreSQL, cfg.SessionStore)
	assert.True(t, cfg.InsecureSecret)
	assert.GreaterOrEqual(t, len(cfg.SessionSecret), 16)
	assert.False(t, cfg.CookieSecure)
	assert.False(t, cfg.Google.Enabled())
	assert.False(t, cfg.GitHub.Enabled())
	assert.Equal(t, "http://localhost:3000/auth/github/callback", cfg.GitHub.CallbackURL)
	assert.Equal(t, "tecnologia", cfg.News.Query)
	assert.Equal(t, "pt", cfg.News.Language)
	assert.Equal(t, 5*time.Minute, cfg.News.CacheTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, time.Hour, cfg.ReapInterval)
	assert.Equal(t, "*", cfg.FrontendURL)
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SESSION_SECRET", "a-very-long-production-secret")
	t.Setenv("SESSION_STORE", "Redis")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("GOOGLE_CLIENT_ID", "gid")
	t.Setenv("NEWS_CACHE_TTL", "30s")
	t.Setenv("FRONTEND_URL", "https://news.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.False(t, cfg.InsecureSecret)
	assert.Equal(t, SessionStoreRedis, cfg.SessionStore)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.True(t, cfg.Google.Enabled())
	assert.Equal(t, "http://localhost:8081/auth/google/callback", cfg.Google.CallbackURL)
	assert.Equal(t, 30*time.Second, cfg.News.CacheTTL)
	assert.Equal(t, "https://news.example.com", cfg.FrontendURL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "eighty"},
		{"LOG_LEVEL", "loud"},
		{"SESSION_SECRET", "short"},
		{"SESSION_STORE", "memcached"},
		{"COOKIE_SECURE", "maybe"},
		{"REDIS_DB", "one"},
		{"NEWS_CACHE_TTL", "5 minutes"},
		{"SESSION_TTL", "-1h"},
		{"SESSION_REAP_INTERVAL", "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
