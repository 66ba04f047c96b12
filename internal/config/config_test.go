package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brporter/remoteview/internal/ladder"
)

// isolate points the XDG config home at a temp dir for the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	xdg.Reload()
	t.Cleanup(xdg.Reload)
	t.Chdir(t.TempDir())
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_FileAndEnv(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, appName)
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
endpoint: ws://localhost:8090/stream
canvas:
  width: 540
video:
  tiers: 4
control:
  reconnect_delay: 3s
farm:
  device_arn: arn:farm:device:pixel
`), 0600))
	t.Setenv("REMOTEVIEW_CONTROL_RECONNECT_LIMIT", "7")
	t.Setenv("REMOTEVIEW_INPUT_KEY_INTERVAL", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8090/stream", cfg.Endpoint)
	assert.Equal(t, 540, cfg.Canvas.Width)
	assert.Equal(t, 768, cfg.Canvas.Height)
	assert.Equal(t, 4, cfg.Video.Tiers)
	assert.Equal(t, 3*time.Second, cfg.Control.ReconnectDelay)
	assert.Equal(t, 7, cfg.Control.ReconnectLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.Input.KeyInterval)
	assert.Equal(t, "arn:farm:device:pixel", cfg.Farm.DeviceARN)
	assert.Equal(t, "METERED", cfg.Farm.BillingMethod)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfig_Session(t *testing.T) {
	cfg := DefaultConfig()
	sc, err := cfg.Session()
	require.NoError(t, err)
	assert.Len(t, sc.Tiers, 6)
	assert.Equal(t, 5*time.Second, sc.ReconnectDelay)
	assert.Equal(t, 1080, sc.DeviceSize.Width)
	assert.Equal(t, 768, sc.CanvasSize.Height)

	cfg.Video.Tiers = 0
	_, err = cfg.Session()
	assert.ErrorIs(t, err, ladder.ErrInvalidLadder)

	cfg = DefaultConfig()
	cfg.Canvas.Height = 0
	_, err = cfg.Session()
	assert.Error(t, err)
}

func TestSaveAndLoadTokenCache(t *testing.T) {
	home := isolate(t)

	cache := &TokenCache{
		IDToken:      "id-token-value",
		AccessToken:  "access-token-value",
		RefreshToken: "refresh-token-value",
		Issuer:       "https://issuer.example",
	}
	require.NoError(t, SaveTokenCache(cache))

	info, err := os.Stat(filepath.Join(home, appName, tokenFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadTokenCache()
	require.NoError(t, err)
	assert.Equal(t, cache, loaded)
	assert.Equal(t, "id-token-value", loaded.Bearer())
}

func TestLoadTokenCache_NotExists(t *testing.T) {
	isolate(t)
	_, err := LoadTokenCache()
	assert.Error(t, err)
}

func TestClearTokenCache(t *testing.T) {
	isolate(t)

	require.NoError(t, SaveTokenCache(&TokenCache{AccessToken: "a"}))
	require.NoError(t, ClearTokenCache())
	_, err := LoadTokenCache()
	assert.Error(t, err)

	// Clearing twice is fine.
	assert.NoError(t, ClearTokenCache())
}

func TestTokenCache_BearerFallsBackToAccessToken(t *testing.T) {
	assert.Equal(t, "a", (&TokenCache{AccessToken: "a"}).Bearer())
}
