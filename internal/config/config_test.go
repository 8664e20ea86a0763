package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/leadflow-go/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, config.BackendMemory, cfg.StoreBackend)
	require.Equal(t, 5*time.Minute, cfg.CacheTTL)
	require.Equal(t, 3, cfg.ConflictRetries)
	require.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/leads")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, "postgres://localhost/leads", cfg.DatabaseURL)
	require.Len(t, cfg.CORSOrigins, 2)
}

func TestLoad_PostgresRequiresURL(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoad_UnknownBackend(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_BACKEND", "sqlite")

	_, err := config.Load()
	require.ErrorContains(t, err, "unknown STORE_BACKEND")
}

func TestLoadDotEnv_DoesNotOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=debug\nEVENTS_EXCHANGE=\"from-file\"\n"), 0o600))

	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("EVENTS_EXCHANGE", "")
	os.Unsetenv("EVENTS_EXCHANGE")

	require.NoError(t, config.LoadDotEnv(path))
	require.Equal(t, "warn", os.Getenv("LOG_LEVEL"))
	require.Equal(t, "from-file", os.Getenv("EVENTS_EXCHANGE"))
}

func TestLoadDotEnv_MissingFileIsFine(t *testing.T) {
	require.NoError(t, config.LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}

func TestLoad_MalformedDotEnvIsAnError(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BAD-KEY=value\n"), 0o600))

	_, err := config.Load()
	require.ErrorContains(t, err, "load .env")
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
