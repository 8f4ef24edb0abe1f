package store

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Memory keeps a collection in process memory. Rows are held encoded so callers never share
// slices with the stored state.
type Memory[T Record] struct {
	mu     sync.Mutex
	name   string
	rows   []json.RawMessage
	logger *zap.Logger
}

// NewMemory returns an empty in-memory collection.
func NewMemory[T Record](name string, logger *zap.Logger) *Memory[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory[T]{name: name, logger: logger}
}

func (m *Memory[T]) Load(_ context.Context) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, rejected := decodeRows[T](m.name, m.rows, m.logger)
	if len(rejected) > 0 {
		kept := make([]json.RawMessage, 0, len(m.rows)-len(rejected))
		skip := make(map[int]struct{}, len(rejected))
		for _, i := range rejected {
			skip[i] = struct{}{}
		}
		for i, row := range m.rows {
			if _, ok := skip[i]; !ok {
				kept = append(kept, row)
			}
		}
		m.rows = kept
	}
	return records, nil
}

func (m *Memory[T]) Save(_ context.Context, records []T) error {
	rows := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		row, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = rows
	return nil
}

// Seed stores raw rows as-is, bypassing encoding. Used to simulate drifted or malformed data.
func (m *Memory[T]) Seed(rows ...json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
}
