// Package config loads mediaconv settings from an optional YAML file and
// MEDIACONV_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine sources
const (
	EngineSourceSystem   = "system"   // ffmpeg from PATH or FFmpegPath
	EngineSourceArtifact = "artifact" // pinned release fetched from BaseURL
)

// DefaultEngineVersion is the pinned engine release used by the artifact loader.
const DefaultEngineVersion = "6.1.1"

type Config struct {
	DataDir    string        `yaml:"data_dir" json:"data_dir"`
	ScratchDir string        `yaml:"scratch_dir" json:"scratch_dir"`
	Log        LogConfig     `yaml:"log" json:"log"`
	Engine     EngineConfig  `yaml:"engine" json:"engine"`
	Sinks      SinksConfig   `yaml:"sinks" json:"sinks"`
	Metrics    MetricsConfig `yaml:"metrics" json:"metrics"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

type EngineConfig struct {
	Source         string        `yaml:"source" json:"source"`
	FFmpegPath     string        `yaml:"ffmpeg_path" json:"ffmpeg_path"`
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	Version        string        `yaml:"version" json:"version"`
	ManifestSecret string        `yaml:"manifest_secret" json:"-"`
	LoadTimeout    time.Duration `yaml:"load_timeout" json:"load_timeout"`
	// ExecTimeout bounds a single engine run. Zero means no limit.
	ExecTimeout time.Duration `yaml:"exec_timeout" json:"exec_timeout"`
}

type SinksConfig struct {
	S3   S3Config   `yaml:"s3" json:"s3"`
	GCS  GCSConfig  `yaml:"gcs" json:"gcs"`
	SFTP SFTPConfig `yaml:"sftp" json:"sftp"`
}

type S3Config struct {
	Region    string `yaml:"region" json:"region"`
	AccessKey string `yaml:"access_key" json:"-"`
	SecretKey string `yaml:"secret_key" json:"-"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
}

type GCSConfig struct {
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
}

type SFTPConfig struct {
	Password       string `yaml:"password" json:"-"`
	KeyFile        string `yaml:"key_file" json:"key_file"`
	KnownHostsFile string `yaml:"known_hosts_file" json:"known_hosts_file"`
}

type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path" json:"textfile_path"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		DataDir:    defaultDataDir,
		ScratchDir: defaultScratchDir(),
		Log:        LogConfig{Level: "info"},
		Engine: EngineConfig{
			Source:      EngineSourceSystem,
			Version:     DefaultEngineVersion,
			LoadTimeout: 2 * time.Minute,
		},
		Sinks: SinksConfig{S3: S3Config{Region: "us-east-1"}},
	}
}

// Load reads path (if non-empty and present), applies environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("MEDIACONV_DATA_DIR", &c.DataDir)
	str("MEDIACONV_SCRATCH_DIR", &c.ScratchDir)
	str("MEDIACONV_LOG_LEVEL", &c.Log.Level)
	str("MEDIACONV_LOG_FILE", &c.Log.File)
	str("MEDIACONV_ENGINE_SOURCE", &c.Engine.Source)
	str("MEDIACONV_FFMPEG_PATH", &c.Engine.FFmpegPath)
	str("MEDIACONV_ENGINE_BASE_URL", &c.Engine.BaseURL)
	str("MEDIACONV_ENGINE_VERSION", &c.Engine.Version)
	str("MEDIACONV_MANIFEST_SECRET", &c.Engine.ManifestSecret)
	str("MEDIACONV_S3_REGION", &c.Sinks.S3.Region)
	str("MEDIACONV_S3_ACCESS_KEY", &c.Sinks.S3.AccessKey)
	str("MEDIACONV_S3_SECRET_KEY", &c.Sinks.S3.SecretKey)
	str("MEDIACONV_S3_ENDPOINT", &c.Sinks.S3.Endpoint)
	str("MEDIACONV_GCS_CREDENTIALS", &c.Sinks.GCS.CredentialsFile)
	str("MEDIACONV_SFTP_PASSWORD", &c.Sinks.SFTP.Password)
	str("MEDIACONV_SFTP_KEY_FILE", &c.Sinks.SFTP.KeyFile)
	str("MEDIACONV_SFTP_KNOWN_HOSTS", &c.Sinks.SFTP.KnownHostsFile)
	str("MEDIACONV_METRICS_FILE", &c.Metrics.TextfilePath)

	if err := dur("MEDIACONV_EXEC_TIMEOUT", &c.Engine.ExecTimeout); err != nil {
		return err
	}
	return dur("MEDIACONV_LOAD_TIMEOUT", &c.Engine.LoadTimeout)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.Engine.Source = strings.ToLower(strings.TrimSpace(c.Engine.Source))
	switch c.Engine.Source {
	case EngineSourceSystem:
	case EngineSourceArtifact:
		if c.Engine.BaseURL == "" {
			return fmt.Errorf("engine.base_url is required for the %q engine source", EngineSourceArtifact)
		}
		if c.Engine.Version == "" {
			return fmt.Errorf("engine.version is required for the %q engine source", EngineSourceArtifact)
		}
	default:
		return fmt.Errorf("unknown engine source %q", c.Engine.Source)
	}
	if c.Engine.ExecTimeout < 0 {
		return fmt.Errorf("engine.exec_timeout must not be negative")
	}
	if c.Engine.LoadTimeout < 0 {
		return fmt.Errorf("engine.load_timeout must not be negative")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.ScratchDir == "" {
		return fmt.Errorf("scratch_dir must not be empty")
	}
	return nil
}
