package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	c, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, "8080", c.AppPort)
	assert.Equal(t, "mysql", c.DBDriver)
	assert.Equal(t, "redis", c.BucketBackend)
	assert.Equal(t, 3, c.CommentLimit)
	assert.Equal(t, []string{"*"}, c.AllowedOrigins)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	path := writeConfig(t, `{
		"app": {"AppPort": "9000", "JWTSecret": "from-file", "AllowedOrigins": ["https://a.example"]},
		"database": {"Driver": "sqlite", "DatabaseURI": "feed.db"},
		"redis": {"RedisPort": 6380, "KeyPrefix": "cf"},
		"log": {"Level": "debug", "Compress": true},
		"feed": {"CommentLimit": 5, "Workers": 2, "BucketBackend": "memory"}
	}`)
	t.Setenv("FEED_COMMENT_LIMIT", "7")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://b.example, https://c.example")

	c, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", c.AppPort)
	assert.Equal(t, "from-file", c.JWTSecret)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, "feed.db", c.DatabaseURI)
	assert.Equal(t, 6380, c.RedisPort)
	assert.Equal(t, "cf", c.RedisKeyPrefix)
	assert.Equal(t, "debug", c.LogLevel)
	assert.True(t, c.LogCompress)
	assert.Equal(t, 7, c.CommentLimit)
	assert.Equal(t, 2, c.Workers)
	assert.Equal(t, "memory", c.BucketBackend)
	assert.Equal(t, []string{"https://b.example", "https://c.example"}, c.AllowedOrigins)
}

func TestLoadFromErrors(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
		assert.ErrorContains(t, err, "JWT_SECRET")
	})
	t.Run("invalid json", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		_, err := LoadFrom(writeConfig(t, "{"))
		assert.Error(t, err)
	})
	t.Run("invalid integer", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("FEED_WORKERS", "many")
		_, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
		assert.ErrorContains(t, err, "FEED_WORKERS")
	})
}
