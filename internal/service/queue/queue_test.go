package queue

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jgivc/downloadr/internal/common"
	"github.com/jgivc/downloadr/internal/entity"
	"github.com/jgivc/downloadr/internal/repository/item"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*QueueService, ItemRepository, afero.Fs) {
	t.Helper()

	bucket, err := item.OpenBucket(context.Background(), "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { bucket.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	repo := item.NewBlobRepository(bucket, log)
	fs := afero.NewMemMapFs()

	return NewQueueService(repo, fs, log), repo, fs
}

func TestAddRange(t *testing.T) {
	s, repo, fs := newTestService(t)
	ctx := context.Background()

	items, err := s.AddRange(ctx, []string{
		"https://example.com/files/a%20b.iso",
		"http://example.org/",
	}, "/downloads")
	require.NoError(t, err)
	require.Len(t, items, 2)

	exists, err := afero.DirExists(fs, "/downloads")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Equal(t, filepath.Join("/downloads", "a b.iso"), items[0].DestinationPath)
	assert.Equal(t, filepath.Join("/downloads", "example.org"), items[1].DestinationPath)

	for _, it := range items {
		assert.Len(t, it.ID, 36)
		assert.Equal(t, entity.StatusQueued, it.Status)
		assert.Zero(t, it.DownloadedBytes)

		stored, err := repo.Get(ctx, it.ID)
		require.NoError(t, err)
		assert.Equal(t, it.URL, stored.URL)
	}
}

func TestAddRangeInvalid(t *testing.T) {
	testCases := []struct {
		name   string
		urls   []string
		target error
	}{
		{name: "empty", target: common.ErrNoURLs},
		{name: "relative", urls: []string{"/just/a/path"}, target: common.ErrInvalidURL},
		{name: "ftp", urls: []string{"ftp://example.com/a"}, target: common.ErrInvalidURL},
		{name: "one bad among good", urls: []string{"https://example.com/a", "nope"}, target: common.ErrInvalidURL},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, repo, _ := newTestService(t)

			_, err := s.AddRange(context.Background(), tc.urls, "/downloads")
			assert.ErrorIs(t, err, tc.target)

			items, err := repo.ListAll(context.Background())
			require.NoError(t, err)
			assert.Empty(t, items)
		})
	}
}

func TestClearCompleted(t *testing.T) {
	s, repo, fs := newTestService(t)
	ctx := context.Background()

	for id, status := range map[string]entity.Status{
		"queued":    entity.StatusQueued,
		"running":   entity.StatusRunning,
		"paused":    entity.StatusPaused,
		"completed": entity.StatusCompleted,
		"failed":    entity.StatusFailed,
		"cancelled": entity.StatusCancelled,
	} {
		require.NoError(t, repo.Upsert(ctx, &entity.Item{ID: id, DestinationPath: "/d/" + id, Status: status}))
	}
	require.NoError(t, afero.WriteFile(fs, "/d/failed.part", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/d/paused.part", []byte("x"), 0o644))

	n, err := s.ClearCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	items, err := s.List(ctx)
	require.NoError(t, err)

	var ids []string
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	assert.ElementsMatch(t, []string{"queued", "running", "paused"}, ids)

	exists, _ := afero.Exists(fs, "/d/failed.part")
	assert.False(t, exists)
	exists, _ = afero.Exists(fs, "/d/paused.part")
	assert.True(t, exists)

	n, err = s.ClearCompleted(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDelete(t *testing.T) {
	s, repo, fs := newTestService(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &entity.Item{ID: "a", DestinationPath: "/d/a", Status: entity.StatusPaused}))
	require.NoError(t, afero.WriteFile(fs, "/d/a.part", []byte("partial"), 0o644))

	require.NoError(t, s.Delete(ctx, "a"))

	_, err := repo.Get(ctx, "a")
	assert.ErrorIs(t, err, common.ErrItemNotFound)

	exists, _ := afero.Exists(fs, "/d/a.part")
	assert.False(t, exists)

	assert.NoError(t, s.Delete(ctx, "missing"))
}

func TestParseURLs(t *testing.T) {
	text := "https://example.com/a\r\n\r\n  http://example.com/b  \nnot a url\nftp://example.com/c\r"

	assert.Equal(t, []string{"https://example.com/a", "http://example.com/b"}, ParseURLs(text))
	assert.Empty(t, ParseURLs(""))
}
