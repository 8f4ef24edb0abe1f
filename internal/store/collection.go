package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Record is a row of a durable collection. Validate is applied at the load boundary.
type Record interface {
	Key() string
	Validate() error
}

// Collection persists a whole set of records. Save replaces the previous contents.
type Collection[T Record] interface {
	Load(ctx context.Context) ([]T, error)
	Save(ctx context.Context, records []T) error
}

// Backend selects the storage engine behind a collection.
type Backend string

const (
	BackendFile     Backend = "file"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendMemory   Backend = "memory"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendFile, BackendPostgres, BackendRedis, BackendMemory:
		return b, nil
	default:
		return "", fmt.Errorf("unknown store backend %q", s)
	}
}

// decodeRows turns raw rows into validated records. The indices of rows that fail to decode,
// validate or repeat an earlier key are returned so the backend can quarantine them.
func decodeRows[T Record](name string, raw []json.RawMessage, logger *zap.Logger) ([]T, []int) {
	records := make([]T, 0, len(raw))
	var rejected []int
	seen := make(map[string]struct{}, len(raw))

	for i, row := range raw {
		var rec T
		if err := json.Unmarshal(row, &rec); err != nil {
			logger.Warn("quarantining undecodable row",
				zap.String("collection", name), zap.Int("index", i), zap.Error(err), zap.ByteString("row", row))
			rejected = append(rejected, i)
			continue
		}
		if err := rec.Validate(); err != nil {
			logger.Warn("quarantining invalid row",
				zap.String("collection", name), zap.Int("index", i), zap.Error(err), zap.ByteString("row", row))
			rejected = append(rejected, i)
			continue
		}
		if _, dup := seen[rec.Key()]; dup {
			logger.Warn("quarantining duplicate row",
				zap.String("collection", name), zap.Int("index", i), zap.String("key", rec.Key()))
			rejected = append(rejected, i)
			continue
		}
		seen[rec.Key()] = struct{}{}
		records = append(records, rec)
	}
	return records, rejected
}

func encodeRows[T Record](records []T) ([]byte, error) {
	if records == nil {
		records = []T{}
	}
	return json.MarshalIndent(records, "", "    ")
}
