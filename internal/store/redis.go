package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis stores a collection as a JSON array under a single key.
type Redis[T Record] struct {
	name   string
	key    string
	client *redis.Client
	logger *zap.Logger
}

// NewRedis returns a redis-backed collection stored at <prefix>:<name>.
func NewRedis[T Record](client *redis.Client, prefix, name string, logger *zap.Logger) *Redis[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	key := name
	if prefix != "" {
		key = prefix + ":" + name
	}
	return &Redis[T]{name: name, key: key, client: client, logger: logger}
}

func (r *Redis[T]) Load(ctx context.Context) ([]T, error) {
	content, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load collection %s: %w", r.name, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(content, &raw); err != nil {
		r.logger.Warn("collection corrupted; reinitializing",
			zap.String("collection", r.name), zap.String("key", r.key), zap.Error(err))
		if err := r.client.Rename(ctx, r.key, r.quarantineKey()).Err(); err != nil {
			r.logger.Error("quarantine corrupted key", zap.String("key", r.key), zap.Error(err))
		}
		return nil, nil
	}

	records, rejected := decodeRows[T](r.name, raw, r.logger)
	if len(rejected) > 0 {
		_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, i := range rejected {
				pipe.RPush(ctx, r.quarantineKey(), []byte(raw[i]))
			}
			return nil
		})
		if err != nil {
			r.logger.Error("quarantine rows", zap.String("collection", r.name), zap.Error(err))
		}
		if err := r.Save(ctx, records); err != nil {
			r.logger.Error("rewrite collection after quarantine", zap.String("collection", r.name), zap.Error(err))
		}
	}
	return records, nil
}

func (r *Redis[T]) Save(ctx context.Context, records []T) error {
	content, err := encodeRows(records)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", r.name, err)
	}
	if err := r.client.Set(ctx, r.key, content, 0).Err(); err != nil {
		return fmt.Errorf("save collection %s: %w", r.name, err)
	}
	return nil
}

func (r *Redis[T]) quarantineKey() string {
	return r.key + ":quarantine"
}
