package entity

import (
	"math"
	"time"
)

const (
	PartSuffix = ".part"

	shortIDLen = 8
)

// Item is one URL-to-file download job.
type Item struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	DestinationPath string `json:"destination_path"`

	TotalBytes      *int64 `json:"total_bytes,omitempty"`
	DownloadedBytes int64  `json:"downloaded_bytes"`

	Status Status `json:"status"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	AverageBytesPerSecond *float64 `json:"average_bytes_per_second,omitempty"`

	// Revalidators captured from the server, sent back as If-Range on resume.
	ETag            string     `json:"etag,omitempty"`
	LastModifiedUTC *time.Time `json:"last_modified_utc,omitempty"`
}

// PartPath is the sidecar file that holds bytes until the transfer is finalized.
func (i *Item) PartPath() string {
	return i.DestinationPath + PartSuffix
}

func (i *Item) ShortID() string {
	if len(i.ID) <= shortIDLen {
		return i.ID
	}

	return i.ID[:shortIDLen]
}

// EstimatedTimeRemaining is derived from the smoothed rate and is never stored.
// The second result is false when the estimate is undefined.
func (i *Item) EstimatedTimeRemaining() (time.Duration, bool) {
	if i.AverageBytesPerSecond == nil || *i.AverageBytesPerSecond <= 0 || i.TotalBytes == nil {
		return 0, false
	}

	remaining := *i.TotalBytes - i.DownloadedBytes
	if remaining <= 0 {
		return 0, true
	}

	return time.Duration(float64(remaining) / *i.AverageBytesPerSecond * float64(time.Second)), true
}

// CompletionFraction orders partially downloaded items. Items with bytes but no known
// total rank above everything else.
func (i *Item) CompletionFraction() float64 {
	if i.TotalBytes != nil && *i.TotalBytes > 0 {
		return float64(i.DownloadedBytes) / float64(*i.TotalBytes)
	}

	if i.DownloadedBytes > 0 {
		return math.Inf(1)
	}

	return 0
}

// Clone returns a deep copy so callers can mutate it without sharing pointers.
func (i *Item) Clone() *Item {
	c := *i
	c.TotalBytes = clonePtr(i.TotalBytes)
	c.StartedAt = clonePtr(i.StartedAt)
	c.CompletedAt = clonePtr(i.CompletedAt)
	c.AverageBytesPerSecond = clonePtr(i.AverageBytesPerSecond)
	c.LastModifiedUTC = clonePtr(i.LastModifiedUTC)

	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}

	v := *p

	return &v
}
