package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BUNDLE_OUT", "public")
	path := filepath.Join(dir, "edgebundle.yaml")
	writeFile(t, path, `
input: .vercel/output
output: ${BUNDLE_OUT}
dedup: false
concurrency: 3
watch:
  debounce: 50ms
logging:
  level: DEBUG
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".vercel/output"), cfg.Input)
	assert.Equal(t, filepath.Join(dir, "public"), cfg.Output)
	assert.False(t, cfg.DedupEnabled())
	assert.True(t, cfg.MinifyEnabled())
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 50*time.Millisecond, time.Duration(cfg.Watch.Debounce))
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Input)
	assert.True(t, cfg.DedupEnabled())
	assert.Equal(t, DefaultDebounce, time.Duration(cfg.Watch.Debounce))
	assert.Equal(t, LogLevelInfo, cfg.Logging.Level)
	assert.Equal(t, LogFormatText, cfg.Logging.Format)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edgebundle.yaml")
	writeFile(t, path, "input: in\noutput: out\nminify: true\n")
	t.Setenv("EDGEBUNDLE_OUTPUT", "/srv/site")
	t.Setenv("EDGEBUNDLE_MINIFY", "false")
	t.Setenv("EDGEBUNDLE_CONCURRENCY", "8")
	t.Setenv("EDGEBUNDLE_LOG_LEVEL", "warning")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "in"), cfg.Input)
	assert.Equal(t, "/srv/site", cfg.Output)
	assert.False(t, cfg.MinifyEnabled())
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, LogLevelWarn, cfg.Logging.Level)
}

func TestLoad_InvalidEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EDGEBUNDLE_DEDUP", "sometimes")

	_, err := Load("")
	require.Error(t, err)
	ce, ok := errors.AsClassified(err)
	require.True(t, ok)
	v, _ := ce.Context().GetString("variable")
	assert.Equal(t, "EDGEBUNDLE_DEDUP", v)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("EDGEBUNDLE_ENTRYPOINT", "")
	t.Cleanup(func() { _ = os.Unsetenv("EDGEBUNDLE_INPUT") })
	writeFile(t, filepath.Join(dir, ".env"), "EDGEBUNDLE_INPUT=from-dotenv\nEDGEBUNDLE_ENTRYPOINT=ignored.js\n")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Input)
	assert.Empty(t, cfg.Entrypoint, "variables already present in the environment are not overridden")
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"yaml":        "input: [unterminated",
		"concurrency": "concurrency: -2",
		"debounce":    "watch:\n  debounce: soon",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			writeFile(t, path, content)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false))
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.DedupEnabled())
	assert.Equal(t, filepath.Join(filepath.Dir(path), "dist"), cfg.Output)
}
