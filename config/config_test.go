package config

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SUPABASE_JWT_SECRET", "testsecret123456789012345678901234")
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co/")
	t.Setenv("host", "db.abc.supabase.co")
	t.Setenv("user", " postgres ")
	t.Setenv("password", "pw")
	t.Setenv("dbname", "postgres")
	t.Setenv("AUTOSAVE_DEBOUNCE_MS", "250")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "https://abc.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Autosave.Debounce)
	assert.Equal(t, "demo@example.com", cfg.Demo.Email)
	assert.Equal(t, "postgres://postgres:pw@db.abc.supabase.co:5432/postgres?sslmode=require", cfg.Database.DSN())
}

func TestDatabaseURLWins(t *testing.T) {
	d := DatabaseConfig{URL: "postgres://x@y/z", Host: "ignored"}
	assert.Equal(t, "postgres://x@y/z", d.DSN())
}

func TestDSNEscapesCredentials(t *testing.T) {
	d := DatabaseConfig{Host: "db.example.com", Port: "5432", User: "postgres", Password: "p@ss/w#rd:1?", Name: "postgres", SSLMode: "require"}

	u, err := url.Parse(d.DSN())
	require.NoError(t, err)
	assert.Equal(t, "db.example.com", u.Hostname())
	assert.Equal(t, "5432", u.Port())
	assert.Equal(t, "postgres", u.User.Username())
	pw, ok := u.User.Password()
	require.True(t, ok)
	assert.Equal(t, "p@ss/w#rd:1?", pw)
	assert.Equal(t, "/postgres", u.Path)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
}

func TestValidateReportsMissingSettings(t *testing.T) {
	err := (&Config{}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_JWT_SECRET")
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "AUTOSAVE_DEBOUNCE_MS")
}
