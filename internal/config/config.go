package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jgivc/downloadr/internal/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	StorageBlob  = "blob"
	StorageRedis = "redis"

	EnvPrefix = "DOWNLOADR_"

	defaultListen            = "127.0.0.1:8080"
	defaultRedisURL          = "redis://localhost:6379/0"
	defaultRedisKey          = "downloadr:items"
	defaultBucketDir         = "data/items"
	defaultDownloadDir       = "downloads"
	defaultMaxConcurrent     = 3
	defaultRequestTimeoutSec = 100
	defaultPollInterval      = time.Second
	defaultAdmissionInterval = 100 * time.Millisecond
	defaultSampleInterval    = 250 * time.Millisecond
	defaultBufferSize        = 81920
	defaultShutdownGrace     = 5 * time.Second
)

type StorageConfig struct {
	Type      string `yaml:"type"`
	RedisURL  string `yaml:"redis_url"`
	RedisKey  string `yaml:"redis_key"`
	BucketURL string `yaml:"bucket_url"`
}

type DownloadsConfig struct {
	Directory              string        `yaml:"directory"`
	MaxConcurrentDownloads int           `yaml:"max_concurrent_downloads"`
	RequestTimeoutSeconds  int           `yaml:"request_timeout_seconds"`
	PollInterval           time.Duration `yaml:"poll_interval"`
	AdmissionInterval      time.Duration `yaml:"admission_interval"`
	SampleInterval         time.Duration `yaml:"sample_interval"`
	BufferSize             int           `yaml:"buffer_size"`
	ShutdownGrace          time.Duration `yaml:"shutdown_grace"`
	AutoResume             bool          `yaml:"auto_resume"`
}

func (d *DownloadsConfig) RequestTimeout() time.Duration {
	return time.Duration(d.RequestTimeoutSeconds) * time.Second
}

type Config struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`
	// ReportTemplate replaces the built-in status page template when set.
	ReportTemplate string          `yaml:"report_template"`
	Storage        StorageConfig   `yaml:"storage"`
	Downloads      DownloadsConfig `yaml:"downloads"`
}

func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}

	if c.LogLevel == "" {
		c.LogLevel = LogLevelInfo
	}

	if c.Storage.Type == "" {
		c.Storage.Type = StorageBlob
	}

	if c.Storage.RedisURL == "" {
		c.Storage.RedisURL = defaultRedisURL
	}

	if c.Storage.RedisKey == "" {
		c.Storage.RedisKey = defaultRedisKey
	}

	if c.Storage.BucketURL == "" {
		c.Storage.BucketURL = fileBucketURL(defaultBucketDir)
	}

	d := &c.Downloads
	if d.Directory == "" {
		d.Directory = defaultDownloadDir
	}

	if d.MaxConcurrentDownloads == 0 {
		d.MaxConcurrentDownloads = defaultMaxConcurrent
	}

	if d.RequestTimeoutSeconds == 0 {
		d.RequestTimeoutSeconds = defaultRequestTimeoutSec
	}

	if d.PollInterval == 0 {
		d.PollInterval = defaultPollInterval
	}

	if d.AdmissionInterval == 0 {
		d.AdmissionInterval = defaultAdmissionInterval
	}

	if d.SampleInterval == 0 {
		d.SampleInterval = defaultSampleInterval
	}

	if d.BufferSize == 0 {
		d.BufferSize = defaultBufferSize
	}

	if d.ShutdownGrace == 0 {
		d.ShutdownGrace = defaultShutdownGrace
	}
}

func (c *Config) Validate() error {
	var errs []error

	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}

	switch c.Storage.Type {
	case StorageBlob, StorageRedis:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", common.ErrUnknownStorage, c.Storage.Type))
	}

	d := &c.Downloads
	if d.MaxConcurrentDownloads < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent_downloads must be positive, got %d", d.MaxConcurrentDownloads))
	}

	if d.RequestTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("request_timeout_seconds must be positive, got %d", d.RequestTimeoutSeconds))
	}

	if d.BufferSize < 1 {
		errs = append(errs, fmt.Errorf("buffer_size must be positive, got %d", d.BufferSize))
	}

	if d.PollInterval < 0 || d.AdmissionInterval < 0 || d.SampleInterval < 0 || d.ShutdownGrace < 0 {
		errs = append(errs, fmt.Errorf("intervals must not be negative"))
	}

	return errors.Join(errs...)
}

// Load reads the optional .env file next to the config, the YAML file (missing file
// means defaults) and then environment overrides.
func Load(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("cannot load env file %s: %w", envFile, err)
	}

	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"LISTEN":             &c.Listen,
		"LOG_LEVEL":          &c.LogLevel,
		"REPORT_TEMPLATE":    &c.ReportTemplate,
		"STORAGE_TYPE":       &c.Storage.Type,
		"REDIS_URL":          &c.Storage.RedisURL,
		"REDIS_KEY":          &c.Storage.RedisKey,
		"BUCKET_URL":         &c.Storage.BucketURL,
		"DOWNLOAD_DIRECTORY": &c.Downloads.Directory,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAX_CONCURRENT_DOWNLOADS": &c.Downloads.MaxConcurrentDownloads,
		"REQUEST_TIMEOUT_SECONDS":  &c.Downloads.RequestTimeoutSeconds,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok {
			continue
		}

		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("cannot parse %s%s: %w", EnvPrefix, name, err)
		}

		*dst = n
	}

	if v, ok := os.LookupEnv(EnvPrefix + "AUTO_RESUME"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("cannot parse %sAUTO_RESUME: %w", EnvPrefix, err)
		}

		c.Downloads.AutoResume = b
	}

	return nil
}

func fileBucketURL(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}

	return "file://" + filepath.ToSlash(abs) + "?create_dir=true"
}
