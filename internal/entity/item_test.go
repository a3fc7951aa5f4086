package entity

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func TestEstimatedTimeRemaining(t *testing.T) {
	testCases := []struct {
		name     string
		item     Item
		expected time.Duration
		defined  bool
	}{
		{
			name: "no rate",
			item: Item{TotalBytes: ptr(int64(100))},
		},
		{
			name: "zero rate",
			item: Item{TotalBytes: ptr(int64(100)), AverageBytesPerSecond: ptr(0.0)},
		},
		{
			name: "unknown total",
			item: Item{AverageBytesPerSecond: ptr(10.0)},
		},
		{
			name:     "remaining",
			item:     Item{TotalBytes: ptr(int64(1000)), DownloadedBytes: 500, AverageBytesPerSecond: ptr(100.0)},
			expected: 5 * time.Second,
			defined:  true,
		},
		{
			name:     "nothing left",
			item:     Item{TotalBytes: ptr(int64(1000)), DownloadedBytes: 1000, AverageBytesPerSecond: ptr(100.0)},
			expected: 0,
			defined:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			eta, ok := tc.item.EstimatedTimeRemaining()
			require.Equal(t, tc.defined, ok)
			assert.Equal(t, tc.expected, eta)
		})
	}
}

func TestCompletionFraction(t *testing.T) {
	assert.Equal(t, 0.0, (&Item{}).CompletionFraction())
	assert.True(t, math.IsInf((&Item{DownloadedBytes: 1}).CompletionFraction(), 1))
	assert.InDelta(t, 0.25, (&Item{DownloadedBytes: 25, TotalBytes: ptr(int64(100))}).CompletionFraction(), 1e-9)
}

func TestCloneDoesNotSharePointers(t *testing.T) {
	orig := &Item{ID: "0123456789", TotalBytes: ptr(int64(10)), AverageBytesPerSecond: ptr(1.0)}

	c := orig.Clone()
	*c.TotalBytes = 20
	*c.AverageBytesPerSecond = 2

	assert.Equal(t, int64(10), *orig.TotalBytes)
	assert.Equal(t, 1.0, *orig.AverageBytesPerSecond)
	assert.Equal(t, "01234567", c.ShortID())
	assert.Equal(t, "0123456789.part", (&Item{DestinationPath: "0123456789"}).PartPath())
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.False(t, StatusPaused.IsTerminal())
	assert.True(t, StatusCancelled.IsResumable())
	assert.False(t, StatusCompleted.IsResumable())
	assert.Equal(t, "Running", StatusRunning.String())
}
