package util

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"
)

const invalidFileNameChars = `<>:"/\|?*`

// SafeFileName derives a file name from the last path segment of u, falling back to
// the host when the segment is empty.
func SafeFileName(u *url.URL) string {
	segment := strings.Trim(path.Base(u.EscapedPath()), "/")
	if segment == "." {
		segment = ""
	}

	base := segment
	if strings.TrimSpace(base) == "" {
		base = u.Hostname()
	}

	decoded, err := url.PathUnescape(base)
	if err != nil {
		decoded = base
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(invalidFileNameChars, r) {
			return '_'
		}

		return r
	}, decoded)

	cleaned = strings.TrimRight(strings.TrimSpace(cleaned), ". \t")
	if cleaned == "" {
		return u.Hostname()
	}

	return cleaned
}

// HumanBytes formats n with binary units.
func HumanBytes(n int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	i := 0
	val := float64(n)

	for val >= 1024 && i < len(units)-1 {
		val /= 1024
		i++
	}

	if i == 0 {
		return fmt.Sprintf("%d %s", n, units[i])
	}

	return fmt.Sprintf("%.1f %s", val, units[i])
}

func HumanRate(bytesPerSecond float64) string {
	return HumanBytes(int64(bytesPerSecond)) + "/s"
}

// HumanDuration formats d as mm:ss or hh:mm:ss.
func HumanDuration(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	hours := secs / 3600
	minutes := (secs % 3600) / 60
	seconds := secs % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}

	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
