package config

import (
	"os"
	"path/filepath"
)

const defaultDataDir = "./data"

// GetDataDir returns the data directory from MEDIACONV_DATA_DIR or "./data".
// Only the engine artifact cache lives here; conversions never persist anything.
func GetDataDir() string {
	if dir := os.Getenv("MEDIACONV_DATA_DIR"); dir != "" {
		return dir
	}
	return defaultDataDir
}

func defaultScratchDir() string {
	return filepath.Join(os.TempDir(), "mediaconv")
}

// GetScratchDir returns the parent of every engine's private filesystem root.
// Configurable via MEDIACONV_SCRATCH_DIR; defaults to $TMPDIR/mediaconv.
func GetScratchDir() string {
	if dir := os.Getenv("MEDIACONV_SCRATCH_DIR"); dir != "" {
		return dir
	}
	return defaultScratchDir()
}

// EngineCacheDir returns where artifacts of one engine release are cached.
// Path: {DataDir}/engine/{version}
func (c *Config) EngineCacheDir() string {
	return filepath.Join(c.DataDir, "engine", c.Engine.Version)
}

// EngineScratchDir returns the root under which engine filesystems are created.
func (c *Config) EngineScratchDir() string {
	return filepath.Join(c.ScratchDir, "engine")
}
