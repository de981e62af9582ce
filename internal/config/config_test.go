package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DIVERA_ACCESSKEY", "abc")

	cfg, err := NewLoader("").Load()
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.AccessKey)
	assert.Equal(t, "https://app.divera247.com", cfg.BaseURL)
	assert.Equal(t, DefaultScanInterval, cfg.ScanInterval)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, filepath.Join(DefaultDataDir, "diverad.db"), cfg.SQLitePath)
	assert.Empty(t, cfg.UCRIDs)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accesskey: file-key
baseUrl: https://divera.example.org
ucrs: [17001, 17002]
scanInterval: 30s
listenAddr: ":9999"
logLevel: debug
`), 0o600))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.AccessKey)
	assert.Equal(t, "https://divera.example.org", cfg.BaseURL)
	assert.Equal(t, []int{17001, 17002}, cfg.UCRIDs)
	assert.Equal(t, 30*time.Second, cfg.ScanInterval)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accesskey: file-key\nscanInterval: 30s\n"), 0o600))

	t.Setenv("DIVERA_ACCESSKEY", "env-key")
	t.Setenv("DIVERA_SCAN_INTERVAL", "45s")
	t.Setenv("DIVERA_UCRS", "1,2,3")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.AccessKey)
	assert.Equal(t, 45*time.Second, cfg.ScanInterval)
	assert.Equal(t, []int{1, 2, 3}, cfg.UCRIDs)
}

func TestMissingFileIsNotAnError(t *testing.T) {
	t.Setenv("DIVERA_ACCESSKEY", "abc")
	_, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	base := AppConfig{AccessKey: "k"}.WithDefaults()

	t.Run("ok", func(t *testing.T) {
		assert.NoError(t, Validate(base))
	})

	t.Run("missing accesskey", func(t *testing.T) {
		cfg := base
		cfg.AccessKey = ""
		assert.Error(t, Validate(cfg))
	})

	t.Run("bad scheme", func(t *testing.T) {
		cfg := base
		cfg.BaseURL = "ftp://divera.example.org"
		assert.Error(t, Validate(cfg))
	})

	t.Run("interval below floor", func(t *testing.T) {
		cfg := base
		cfg.ScanInterval = time.Second
		assert.Error(t, Validate(cfg))
	})

	t.Run("negative ucr", func(t *testing.T) {
		cfg := base
		cfg.UCRIDs = []int{-4}
		assert.Error(t, Validate(cfg))
	})
}

func TestParseDurationSecondsShorthand(t *testing.T) {
	t.Setenv("X_INTERVAL", "90")
	assert.Equal(t, 90*time.Second, ParseDuration("X_INTERVAL", time.Minute))

	t.Setenv("X_INTERVAL", "2m")
	assert.Equal(t, 2*time.Minute, ParseDuration("X_INTERVAL", time.Minute))

	t.Setenv("X_INTERVAL", "junk")
	assert.Equal(t, time.Minute, ParseDuration("X_INTERVAL", time.Minute))
}

func TestParseIntListRejectsPartialGarbage(t *testing.T) {
	t.Setenv("X_LIST", "1,nope,3")
	assert.Equal(t, []int{9}, ParseIntList("X_LIST", []int{9}))

	t.Setenv("X_LIST", "4, 5 ,6")
	assert.Equal(t, []int{4, 5, 6}, ParseIntList("X_LIST", nil))
}

func TestHolderReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accesskey: one\n"), 0o600))

	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(cfg, loader, path)
	assert.Equal(t, "one", h.Current().AccessKey)

	ch := make(chan AppConfig, 1)
	h.Subscribe(ch)

	require.NoError(t, os.WriteFile(path, []byte("accesskey: two\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, "two", h.Current().AccessKey)

	select {
	case got := <-ch:
		assert.Equal(t, "two", got.AccessKey)
	default:
		t.Fatal("expected listener notification")
	}
}

func TestHolderReloadKeepsOldConfigOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accesskey: one\n"), 0o600))

	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(cfg, loader, path)

	// Invalid: scan interval below floor.
	require.NoError(t, os.WriteFile(path, []byte("accesskey: one\nscanInterval: 1s\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, DefaultScanInterval, h.Current().ScanInterval)
}
