package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-resource-sync/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("API_HOST", "")
	t.Setenv("SIGN_IN_PATH", "")
	t.Setenv("FETCH_TIMEOUT", "")

	c := config.New()
	require.Equal(t, "http://localhost:8080", c.GetAPIHost())
	require.Equal(t, "/login", c.GetSignInPath())
	require.Equal(t, []string{"/login"}, c.GetPublicPaths())
	require.Equal(t, time.Duration(0), c.GetFetchTimeout())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("API_HOST", "https://api.example.com/")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("REQUESTS_PER_SECOND", "2.5")

	c := config.New()
	require.Equal(t, "https://api.example.com", c.GetAPIHost())
	require.Equal(t, 5*time.Second, c.GetFetchTimeout())
	require.Equal(t, 2.5, c.GetRequestsPerSecond())
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("API_HOST", "")
	t.Setenv("DATA_FOLDER", "")
	t.Setenv("DURABLE_STORE", "")
	t.Setenv("PUBLIC_PATHS", "")
	t.Setenv("SIGN_IN_PATH", "")
	t.Setenv("JWKS_URL", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "sync.yaml")
	err := os.WriteFile(path, []byte(`
api_host: http://yaml.example.com
data_folder: /tmp/sync
jwks_url: http://yaml.example.com/.well-known/jwks.json
public_paths:
  - /login
  - /signup
`), 0o600)
	require.NoError(t, err)

	c, err := config.Load("", path)
	require.NoError(t, err)
	require.Equal(t, "http://yaml.example.com", c.GetAPIHost())
	require.Equal(t, filepath.Join("/tmp/sync", "storage.db"), c.GetDurableStorePath())
	require.Equal(t, []string{"/login", "/signup"}, c.GetPublicPaths())
	require.Equal(t, "http://yaml.example.com/.well-known/jwks.json", c.GetJWKSURL())

	t.Run("environment wins over file", func(t *testing.T) {
		t.Setenv("API_HOST", "http://env.example.com")
		require.Equal(t, "http://env.example.com", c.GetAPIHost())
	})

	t.Run("missing files are ignored", func(t *testing.T) {
		c, err := config.Load(filepath.Join(dir, "missing.env"), filepath.Join(dir, "missing.yaml"))
		require.NoError(t, err)
		require.Equal(t, "/login", c.GetSignInPath())
	})
}
