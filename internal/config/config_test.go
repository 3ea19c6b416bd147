package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
database:
  host: localhost
  port: 3306
  user: murmur
  name: murmur_dm
jwt:
  secret: test-secret
  expiry_hours: 24
messaging:
  default_ttl_hours: 24
  reaper_interval_min: 5
`)

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "murmur_dm", cfg.Database.Name)
	assert.Equal(t, 24*time.Hour, cfg.Messaging.DefaultTTL())
	assert.Equal(t, 5*time.Minute, cfg.Messaging.ReaperInterval())
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  host: file-host
  password: file-pass
jwt:
  secret: file-secret
`)

	t.Setenv("DB_HOST", "env-host")
	t.Setenv("DB_PASSWORD", "env-pass")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "env-host", cfg.Database.Host)
	assert.Equal(t, "env-pass", cfg.Database.Password)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
}

func TestLoadDotEnv(t *testing.T) {
	prevDir, err := os.Getwd()
	assert.NoError(t, err)
	assert.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(prevDir) })
	assert.Empty(t, LoadDotEnv())

	assert.NoError(t, os.WriteFile(".env", []byte("DOTENV_SAMPLE=base\n"), 0o644))
	assert.NoError(t, os.WriteFile(".env.local", []byte("DOTENV_SAMPLE_LOCAL=local\n"), 0o644))
	assert.NoError(t, os.WriteFile(".env.test", []byte("DOTENV_SAMPLE_TEST=test\n"), 0o644))
	t.Setenv("APP_ENV", "test")
	defer os.Unsetenv("DOTENV_SAMPLE")
	defer os.Unsetenv("DOTENV_SAMPLE_LOCAL")
	defer os.Unsetenv("DOTENV_SAMPLE_TEST")

	loaded := LoadDotEnv()
	assert.Equal(t, []string{".env.local", ".env.test", ".env"}, loaded)
	assert.Equal(t, "base", os.Getenv("DOTENV_SAMPLE"))
	assert.Equal(t, "test", os.Getenv("DOTENV_SAMPLE_TEST"))
}

func TestMessagingDefaults(t *testing.T) {
	var m MessagingConfig

	// Zero config falls back to the documented defaults
	assert.Equal(t, 24*time.Hour, m.DefaultTTL())
	assert.Equal(t, 10*time.Minute, m.ReaperInterval())
	assert.Equal(t, time.Hour, m.KeyCacheTTL())
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 3306, User: "u", Password: "p", Name: "murmur_dm"}
	assert.Equal(t, "u:p@tcp(db:3306)/murmur_dm?charset=utf8mb4&parseTime=True&loc=UTC", db.GetDSN())
}
