package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// PgxPool is the subset of *pgxpool.Pool used by the postgres backend.
type PgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres stores each record as a jsonb row in collection_records.
type Postgres[T Record] struct {
	name   string
	pool   PgxPool
	logger *zap.Logger
}

// NewPostgres returns a postgres-backed collection.
func NewPostgres[T Record](pool PgxPool, name string, logger *zap.Logger) *Postgres[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres[T]{name: name, pool: pool, logger: logger}
}

type pgRow struct {
	position int
	key      string
	body     []byte
}

func (p *Postgres[T]) Load(ctx context.Context) ([]T, error) {
	const query = `
        SELECT position, record_key, body
        FROM collection_records
        WHERE collection=$1
        ORDER BY position`

	rows, err := p.pool.Query(ctx, query, p.name)
	if err != nil {
		return nil, fmt.Errorf("load collection %s: %w", p.name, err)
	}
	defer rows.Close()

	var stored []pgRow
	for rows.Next() {
		var row pgRow
		if err := rows.Scan(&row.position, &row.key, &row.body); err != nil {
			return nil, fmt.Errorf("scan collection %s: %w", p.name, err)
		}
		stored = append(stored, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection %s: %w", p.name, err)
	}

	raw := make([]json.RawMessage, len(stored))
	for i, row := range stored {
		raw[i] = row.body
	}
	records, rejected := decodeRows[T](p.name, raw, p.logger)
	for _, i := range rejected {
		p.quarantine(ctx, stored[i])
	}
	return records, nil
}

func (p *Postgres[T]) Save(ctx context.Context, records []T) error {
	const (
		deleteQuery = `DELETE FROM collection_records WHERE collection=$1`
		insertQuery = `
        INSERT INTO collection_records (collection, record_key, position, body)
        VALUES ($1,$2,$3,$4)`
	)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save %s: %w", p.name, err)
	}

	if _, err := tx.Exec(ctx, deleteQuery, p.name); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("clear collection %s: %w", p.name, err)
	}
	for i, rec := range records {
		body, err := json.Marshal(rec)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("encode %s/%s: %w", p.name, rec.Key(), err)
		}
		if _, err := tx.Exec(ctx, insertQuery, p.name, rec.Key(), i, body); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("insert %s/%s: %w", p.name, rec.Key(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save %s: %w", p.name, err)
	}
	return nil
}

// quarantine moves a rejected row into collection_quarantine.
func (p *Postgres[T]) quarantine(ctx context.Context, row pgRow) {
	const (
		insertQuery = `
        INSERT INTO collection_quarantine (collection, record_key, body)
        VALUES ($1,$2,$3)`
		deleteQuery = `DELETE FROM collection_records WHERE collection=$1 AND position=$2`
	)

	if _, err := p.pool.Exec(ctx, insertQuery, p.name, row.key, string(row.body)); err != nil {
		p.logger.Error("quarantine row", zap.String("collection", p.name), zap.String("key", row.key), zap.Error(err))
		return
	}
	if _, err := p.pool.Exec(ctx, deleteQuery, p.name, row.position); err != nil {
		p.logger.Error("remove quarantined row", zap.String("collection", p.name), zap.String("key", row.key), zap.Error(err))
	}
}
