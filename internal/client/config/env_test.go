package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv_OnlySetVariablesOverride(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SUPABASE_URL_PROD", "https://prod.supabase.co")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("AUTO_REFRESH_TOKEN", "false")
	t.Setenv("AVATAR_S3_BUCKET", "avatars")

	var c Config
	c.LoadDefaults()
	c.SupabaseAnonKey = "kept"
	parseEnv(&c)

	assert.Equal(t, EnvProduction, c.Environment)
	assert.Equal(t, "https://prod.supabase.co", c.SupabaseURLProd)
	assert.Equal(t, 3*time.Second, c.RequestTimeout)
	assert.False(t, c.AutoRefreshToken)
	assert.Equal(t, "avatars", c.AvatarBucket)
	assert.Equal(t, "kept", c.SupabaseAnonKey)
	assert.Equal(t, 30*time.Second, c.OnlineCheckInterval)
}

func TestParseEnv_MalformedPanics(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "soon")

	var c Config
	require.Panics(t, func() { parseEnv(&c) })
}

func TestLoadDotEnv(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	path := filepath.Join(dir, "custom.env")
	require.NoError(t, os.WriteFile(path, []byte("SUPABASE_URL=https://file.supabase.co\nLOG_LEVEL=debug\n"), 0o600))

	// Pre-existing variables win over the file.
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SUPABASE_URL", "")
	require.NoError(t, os.Unsetenv("SUPABASE_URL"))

	os.Args = []string{"testbin", "-env", path}
	loadDotEnv()

	var c Config
	c.LoadDefaults()
	parseEnv(&c)

	assert.Equal(t, "https://file.supabase.co", c.SupabaseURL)
	assert.Equal(t, "warn", c.LogLevel)

	os.Args = []string{"testbin", "-env", filepath.Join(dir, "missing.env")}
	require.Panics(t, loadDotEnv)
}
