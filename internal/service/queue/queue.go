package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jgivc/downloadr/internal/common"
	"github.com/jgivc/downloadr/internal/entity"
	"github.com/jgivc/downloadr/internal/util"
	"github.com/spf13/afero"
)

const (
	dirPerm = 0o755
)

type ItemRepository interface {
	ListAll(ctx context.Context) ([]*entity.Item, error)
	Get(ctx context.Context, id string) (*entity.Item, error)
	Upsert(ctx context.Context, item *entity.Item) error
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) error
}

// QueueService creates download items and removes them once they are no longer needed.
type QueueService struct {
	repo ItemRepository
	fs   afero.Fs
	log  *slog.Logger
}

func NewQueueService(repo ItemRepository, fs afero.Fs, log *slog.Logger) *QueueService {
	return &QueueService{
		repo: repo,
		fs:   fs,
		log:  log.With(slog.String("item", "QueueService")),
	}
}

// AddRange queues one item per URL, saved under dir with a name derived from the URL.
// Nothing is queued when any URL is invalid.
func (s *QueueService) AddRange(ctx context.Context, urls []string, dir string) ([]*entity.Item, error) {
	if len(urls) < 1 {
		return nil, common.ErrNoURLs
	}

	parsed := make([]*url.URL, 0, len(urls))
	for _, raw := range urls {
		u, err := parseURL(raw)
		if err != nil {
			return nil, err
		}

		parsed = append(parsed, u)
	}

	if err := s.fs.MkdirAll(dir, dirPerm); err != nil {
		s.log.Error("Cannot create destination directory", slog.String("dir", dir), slog.Any("error", err))

		return nil, fmt.Errorf("cannot create destination directory %s: %w", dir, err)
	}

	items := make([]*entity.Item, 0, len(parsed))
	for _, u := range parsed {
		item := &entity.Item{
			ID:              uuid.NewString(),
			URL:             u.String(),
			DestinationPath: filepath.Join(dir, util.SafeFileName(u)),
			Status:          entity.StatusQueued,
		}

		if err := s.repo.Upsert(ctx, item); err != nil {
			s.log.Error("Cannot save item", slog.String("url", item.URL), slog.Any("error", err))

			return items, fmt.Errorf("cannot save item for %s: %w", item.URL, err)
		}

		items = append(items, item)
	}

	s.log.Info("Queued items", slog.Int("count", len(items)), slog.String("dir", dir))

	return items, nil
}

func (s *QueueService) List(ctx context.Context) ([]*entity.Item, error) {
	items, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list items: %w", err)
	}

	return items, nil
}

// ClearCompleted deletes every Completed, Failed or Cancelled item and returns how
// many were removed. Leftover sidecars are removed on a best-effort basis.
func (s *QueueService) ClearCompleted(ctx context.Context) (int, error) {
	items, err := s.repo.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("cannot list items: %w", err)
	}

	var ids []string
	for _, item := range items {
		if !item.Status.IsTerminal() {
			continue
		}

		s.removePart(item)
		ids = append(ids, item.ID)
	}

	if len(ids) < 1 {
		return 0, nil
	}

	if err := s.repo.DeleteMany(ctx, ids); err != nil {
		s.log.Error("Cannot delete items", slog.Any("error", err))

		return 0, fmt.Errorf("cannot delete items: %w", err)
	}

	s.log.Info("Cleared finished items", slog.Int("count", len(ids)))

	return len(ids), nil
}

// Delete removes the item record and its sidecar. Deleting an unknown id is not an error.
func (s *QueueService) Delete(ctx context.Context, id string) error {
	item, err := s.repo.Get(ctx, id)
	switch {
	case err == nil:
		s.removePart(item)
	case errors.Is(err, common.ErrItemNotFound):
	default:
		return fmt.Errorf("cannot get item %s: %w", id, err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("cannot delete item %s: %w", id, err)
	}

	return nil
}

func (s *QueueService) removePart(item *entity.Item) {
	if err := s.fs.Remove(item.PartPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("Cannot remove part file", slog.String("path", item.PartPath()), slog.Any("error", err))
	}
}

// ParseURLs splits text into lines and keeps the absolute http(s) URLs.
func ParseURLs(text string) []string {
	var urls []string
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' }) {
		line = strings.TrimSpace(line)
		if _, err := parseURL(line); err == nil {
			urls = append(urls, line)
		}
	}

	return urls
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidURL, raw)
	}

	return u, nil
}
