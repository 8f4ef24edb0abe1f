package store

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Collection names used by the service.
const (
	CollectionUsers         = "users"
	CollectionRevokedTokens = "revoked_tokens"
	CollectionResetTokens   = "reset_tokens"
	CollectionPenalties     = "penalties"
)

// Options carries the handles every backend may need.
type Options struct {
	Backend   Backend
	Dir       string
	Pool      PgxPool
	Redis     *redis.Client
	KeyPrefix string
	Logger    *zap.Logger
}

// Open builds the collection named name on the configured backend.
func Open[T Record](opts Options, name string) (Collection[T], error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("backend", string(opts.Backend)))

	switch opts.Backend {
	case BackendFile:
		if opts.Dir == "" {
			return nil, errors.New("file backend requires a data directory")
		}
		return NewFile[T](opts.Dir, name, logger), nil
	case BackendPostgres:
		if opts.Pool == nil {
			return nil, errors.New("postgres backend requires a connection pool")
		}
		return NewPostgres[T](opts.Pool, name, logger), nil
	case BackendRedis:
		if opts.Redis == nil {
			return nil, errors.New("redis backend requires a client")
		}
		return NewRedis[T](opts.Redis, opts.KeyPrefix, name, logger), nil
	case BackendMemory:
		return NewMemory[T](name, logger), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
