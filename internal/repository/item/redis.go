package item

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jgivc/downloadr/internal/common"
	"github.com/jgivc/downloadr/internal/entity"
	"github.com/redis/go-redis/v9"
)

// redisRepository keeps every item as a JSON document in one HASH: key id -> item.
// HSET of a single field is atomic, which is all the engine requires.
type redisRepository struct {
	cl  *redis.Client
	key string
	log *slog.Logger
}

func NewRedisRepository(cl *redis.Client, key string, log *slog.Logger) *redisRepository {
	return &redisRepository{
		cl:  cl,
		key: key,
		log: log.With(slog.String("item", "RedisItemRepository")),
	}
}

func (r *redisRepository) Initialise(ctx context.Context) error {
	if _, err := r.cl.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("cannot ping redis: %w", err)
	}

	return nil
}

func (r *redisRepository) ListAll(ctx context.Context) ([]*entity.Item, error) {
	docs, err := r.cl.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get items: %w", err)
	}

	items := make([]*entity.Item, 0, len(docs))
	for id, doc := range docs {
		item, err := decodeItem([]byte(doc))
		if err != nil {
			r.log.Warn("Skip corrupted item", slog.String("id", id), slog.Any("error", err))

			continue
		}

		items = append(items, item)
	}

	return items, nil
}

func (r *redisRepository) Get(ctx context.Context, id string) (*entity.Item, error) {
	doc, err := r.cl.HGet(ctx, r.key, id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrItemNotFound
		}

		return nil, fmt.Errorf("cannot get item %s: %w", id, err)
	}

	item, err := decodeItem([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("cannot decode item %s: %w", id, err)
	}

	return item, nil
}

func (r *redisRepository) Upsert(ctx context.Context, item *entity.Item) error {
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("cannot encode item %s: %w", item.ID, err)
	}

	if err := r.cl.HSet(ctx, r.key, item.ID, doc).Err(); err != nil {
		return fmt.Errorf("cannot save item %s: %w", item.ID, err)
	}

	return nil
}

func (r *redisRepository) Delete(ctx context.Context, id string) error {
	if err := r.cl.HDel(ctx, r.key, id).Err(); err != nil {
		return fmt.Errorf("cannot delete item %s: %w", id, err)
	}

	return nil
}

func (r *redisRepository) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) < 1 {
		return nil
	}

	pipe := r.cl.Pipeline()
	for _, id := range ids {
		pipe.HDel(ctx, r.key, id)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cannot delete items: %w", err)
	}

	return nil
}

func decodeItem(doc []byte) (*entity.Item, error) {
	var item entity.Item
	if err := json.Unmarshal(doc, &item); err != nil {
		return nil, err
	}

	if item.ID == "" {
		return nil, fmt.Errorf("item has no id")
	}

	return &item, nil
}
