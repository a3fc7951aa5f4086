package util

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeFileName(t *testing.T) {
	testCases := []struct {
		name     string
		url      string
		expected string
	}{
		{name: "last segment", url: "https://example.com/files/archive.zip", expected: "archive.zip"},
		{name: "trailing slash", url: "https://example.com/files/", expected: "files"},
		{name: "no path", url: "https://example.com", expected: "example.com"},
		{name: "root path", url: "https://example.com/", expected: "example.com"},
		{name: "percent decoded", url: "https://example.com/my%20file.txt", expected: "my file.txt"},
		{name: "illegal characters", url: "https://example.com/a%3Ab%2Ac%3F.bin", expected: "a_b_c_.bin"},
		{name: "trailing dots", url: "https://example.com/name...", expected: "name"},
		{name: "only dots", url: "https://example.com/..%2E", expected: "example.com"},
		{name: "query ignored", url: "https://example.com/data.csv?x=1", expected: "data.csv"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := url.Parse(tc.url)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, SafeFileName(u))
		})
	}
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", HumanBytes(512))
	assert.Equal(t, "1.5 KB", HumanBytes(1536))
	assert.Equal(t, "2.0 MB", HumanBytes(2*1024*1024))
	assert.Equal(t, "1.0 KB/s", HumanRate(1024))
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "01:05", HumanDuration(65*time.Second))
	assert.Equal(t, "01:01:01", HumanDuration(3661*time.Second))
}
