package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, EngineSourceSystem, cfg.Engine.Source)
	assert.Equal(t, DefaultEngineVersion, cfg.Engine.Version)
	assert.Zero(t, cfg.Engine.ExecTimeout)
	assert.Equal(t, filepath.Join("data", "engine", DefaultEngineVersion), filepath.Clean(cfg.EngineCacheDir()))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Engine, cfg.Engine)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediaconv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/mediaconv
engine:
  source: artifact
  base_url: https://releases.example.com/ffmpeg
  version: "6.0"
  exec_timeout: 90s
sinks:
  s3:
    region: eu-west-1
`), 0o644))

	t.Setenv("MEDIACONV_ENGINE_VERSION", "6.1.1")
	t.Setenv("MEDIACONV_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/mediaconv", cfg.DataDir)
	assert.Equal(t, EngineSourceArtifact, cfg.Engine.Source)
	assert.Equal(t, "https://releases.example.com/ffmpeg", cfg.Engine.BaseURL)
	assert.Equal(t, "6.1.1", cfg.Engine.Version)
	assert.Equal(t, 90*time.Second, cfg.Engine.ExecTimeout)
	assert.Equal(t, "eu-west-1", cfg.Sinks.S3.Region)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, filepath.Join("/var/lib/mediaconv", "engine", "6.1.1"), cfg.EngineCacheDir())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("MEDIACONV_EXEC_TIMEOUT", "soon")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("MEDIACONV_EXEC_TIMEOUT", "")
	t.Setenv("MEDIACONV_ENGINE_SOURCE", "artifact")
	_, err = Load("")
	assert.ErrorContains(t, err, "base_url")

	t.Setenv("MEDIACONV_ENGINE_SOURCE", "wasm")
	_, err = Load("")
	assert.ErrorContains(t, err, "unknown engine source")
}

func TestGetDataDir(t *testing.T) {
	t.Setenv("MEDIACONV_DATA_DIR", "")
	assert.Equal(t, "./data", GetDataDir())
	t.Setenv("MEDIACONV_DATA_DIR", "/srv/mediaconv")
	assert.Equal(t, "/srv/mediaconv", GetDataDir())
}
