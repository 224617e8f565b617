package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "text", cfg.Output.Format)
	assert.Equal(t, "auto", cfg.Output.Color)
	assert.True(t, cfg.Store.Cache)
	assert.Equal(t, 500, cfg.Watch.DebounceMS)
	assert.Contains(t, cfg.Rules.FrameNameHints, "df")
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "framecheck.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.Output.Format)
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framecheck.yaml")

	yaml := `
rules:
  disabled: ["FC003"]
  severity:
    FC001: error
  frame_name_hints: ["data"]
output:
  format: json
  fail_on_warn: true
store:
  cache: false
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsRuleDisabled("FC003", "inplace-mutation"))
	assert.False(t, cfg.IsRuleDisabled("FC001", "attr-column-access"))

	sev, ok := cfg.SeverityOverride("FC001", "attr-column-access")
	require.True(t, ok)
	assert.Equal(t, "error", sev)

	assert.Equal(t, "json", cfg.Output.Format)
	assert.True(t, cfg.Output.FailOnWarn)
	assert.False(t, cfg.Store.Cache)
}

func TestLoadRejectsBadFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framecheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output:\n  format: xml\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("FRAMECHECK_FORMAT", func(t *testing.T) {
		t.Setenv("FRAMECHECK_FORMAT", "json")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "json", cfg.Output.Format)
	})

	t.Run("FRAMECHECK_NO_CACHE", func(t *testing.T) {
		t.Setenv("FRAMECHECK_NO_CACHE", "true")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.False(t, cfg.Store.Cache)
	})

	t.Run("FRAMECHECK_DISABLE list", func(t *testing.T) {
		t.Setenv("FRAMECHECK_DISABLE", "FC001, FC007")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.True(t, cfg.IsRuleDisabled("FC001", ""))
		assert.True(t, cfg.IsRuleDisabled("FC007", ""))
	})

	t.Run("FRAMECHECK_DB", func(t *testing.T) {
		t.Setenv("FRAMECHECK_DB", "/tmp/alt.db")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "/tmp/alt.db", cfg.Store.Path)
		assert.Equal(t, "/tmp/alt.db", cfg.StorePath("/work"))
	})
}

func TestStorePathRelative(t *testing.T) {
	cfg := DefaultConfig()
	got := cfg.StorePath("/work")
	assert.Equal(t, filepath.Join("/work", ".framecheck", "framecheck.db"), got)
}
