package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jgivc/downloadr/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, LogLevelInfo, cfg.LogLevel)
	assert.Equal(t, StorageBlob, cfg.Storage.Type)
	assert.True(t, strings.HasPrefix(cfg.Storage.BucketURL, "file://"))
	assert.Equal(t, "downloads", cfg.Downloads.Directory)
	assert.Equal(t, 3, cfg.Downloads.MaxConcurrentDownloads)
	assert.Equal(t, 100*time.Second, cfg.Downloads.RequestTimeout())
	assert.Equal(t, time.Second, cfg.Downloads.PollInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Downloads.AdmissionInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.Downloads.SampleInterval)
	assert.Equal(t, 81920, cfg.Downloads.BufferSize)
	assert.False(t, cfg.Downloads.AutoResume)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	writeFile(t, path, `
listen: ":9000"
log_level: debug
report_template: /etc/downloadr/page.html
storage:
  type: redis
  redis_url: redis://cache:6379/1
downloads:
  directory: /srv/downloads
  max_concurrent_downloads: 5
  poll_interval: 2s
  auto_resume: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, LogLevelDebug, cfg.LogLevel)
	assert.Equal(t, "/etc/downloadr/page.html", cfg.ReportTemplate)
	assert.Equal(t, StorageRedis, cfg.Storage.Type)
	assert.Equal(t, "redis://cache:6379/1", cfg.Storage.RedisURL)
	assert.Equal(t, defaultRedisKey, cfg.Storage.RedisKey)
	assert.Equal(t, "/srv/downloads", cfg.Downloads.Directory)
	assert.Equal(t, 5, cfg.Downloads.MaxConcurrentDownloads)
	assert.Equal(t, 2*time.Second, cfg.Downloads.PollInterval)
	assert.True(t, cfg.Downloads.AutoResume)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	writeFile(t, path, "downloads:\n  max_concurrent_downloads: 2\n")
	writeFile(t, filepath.Join(dir, ".env"), "DOWNLOADR_DOWNLOAD_DIRECTORY=/from/dotenv\n")

	t.Setenv("DOWNLOADR_MAX_CONCURRENT_DOWNLOADS", "7")
	t.Setenv("DOWNLOADR_AUTO_RESUME", "true")
	t.Cleanup(func() { os.Unsetenv("DOWNLOADR_DOWNLOAD_DIRECTORY") })

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Downloads.MaxConcurrentDownloads)
	assert.Equal(t, "/from/dotenv", cfg.Downloads.Directory)
	assert.True(t, cfg.Downloads.AutoResume)
}

func TestLoadInvalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		target  error
	}{
		{name: "unknown storage", content: "storage:\n  type: s3\n", target: common.ErrUnknownStorage},
		{name: "unknown log level", content: "log_level: verbose\n"},
		{name: "negative concurrency", content: "downloads:\n  max_concurrent_downloads: -1\n"},
		{name: "broken yaml", content: "listen: [\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yml")
			writeFile(t, path, tc.content)

			_, err := Load(path)
			require.Error(t, err)
			if tc.target != nil {
				assert.ErrorIs(t, err, tc.target)
			}
		})
	}
}

func TestMustLoadPanics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	writeFile(t, path, "log_level: loud\n")

	assert.Panics(t, func() { MustLoad(path) })
}
