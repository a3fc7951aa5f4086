package item

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jgivc/downloadr/internal/common"
	"github.com/jgivc/downloadr/internal/entity"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

const (
	keySuffix       = ".json"
	contentTypeJSON = "application/json"
)

// blobRepository stores one JSON object per item. Writers publish the object only
// when closed, so a reader never sees a half-written item.
type blobRepository struct {
	bucket *blob.Bucket
	log    *slog.Logger
}

// OpenBucket opens a bucket by URL, e.g. file:///var/lib/downloadr/items or mem://.
func OpenBucket(ctx context.Context, url string) (*blob.Bucket, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("cannot open bucket %s: %w", url, err)
	}

	return bucket, nil
}

func NewBlobRepository(bucket *blob.Bucket, log *slog.Logger) *blobRepository {
	return &blobRepository{
		bucket: bucket,
		log:    log.With(slog.String("item", "BlobItemRepository")),
	}
}

func (r *blobRepository) Initialise(ctx context.Context) error {
	ok, err := r.bucket.IsAccessible(ctx)
	if err != nil {
		return fmt.Errorf("cannot check bucket: %w", err)
	}

	if !ok {
		return fmt.Errorf("bucket is not accessible")
	}

	return nil
}

func (r *blobRepository) ListAll(ctx context.Context) ([]*entity.Item, error) {
	var items []*entity.Item

	it := r.bucket.List(nil)
	for {
		obj, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("cannot list items: %w", err)
		}

		if obj.IsDir || !strings.HasSuffix(obj.Key, keySuffix) {
			continue
		}

		doc, err := r.bucket.ReadAll(ctx, obj.Key)
		if err != nil {
			if gcerrors.Code(err) == gcerrors.NotFound {
				continue
			}

			return nil, fmt.Errorf("cannot read %s: %w", obj.Key, err)
		}

		item, err := decodeItem(doc)
		if err != nil {
			r.log.Warn("Skip corrupted item", slog.String("key", obj.Key), slog.Any("error", err))

			continue
		}

		items = append(items, item)
	}

	return items, nil
}

func (r *blobRepository) Get(ctx context.Context, id string) (*entity.Item, error) {
	doc, err := r.bucket.ReadAll(ctx, itemKey(id))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, common.ErrItemNotFound
		}

		return nil, fmt.Errorf("cannot read item %s: %w", id, err)
	}

	item, err := decodeItem(doc)
	if err != nil {
		return nil, fmt.Errorf("cannot decode item %s: %w", id, err)
	}

	return item, nil
}

func (r *blobRepository) Upsert(ctx context.Context, item *entity.Item) error {
	doc, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode item %s: %w", item.ID, err)
	}

	if err := r.bucket.WriteAll(ctx, itemKey(item.ID), doc, &blob.WriterOptions{ContentType: contentTypeJSON}); err != nil {
		return fmt.Errorf("cannot save item %s: %w", item.ID, err)
	}

	return nil
}

func (r *blobRepository) Delete(ctx context.Context, id string) error {
	if err := r.bucket.Delete(ctx, itemKey(id)); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("cannot delete item %s: %w", id, err)
	}

	return nil
}

func (r *blobRepository) DeleteMany(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		if err := r.Delete(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func itemKey(id string) string {
	return id + keySuffix
}
