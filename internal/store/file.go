package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// File stores a collection as a JSON array on disk.
type File[T Record] struct {
	name   string
	path   string
	logger *zap.Logger
}

// NewFile returns a file collection at <dir>/<name>.json.
func NewFile[T Record](dir, name string, logger *zap.Logger) *File[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &File[T]{
		name:   name,
		path:   filepath.Join(dir, name+".json"),
		logger: logger,
	}
}

// Path returns the backing file location.
func (f *File[T]) Path() string {
	return f.path
}

// Load reads the collection. A missing file is an empty collection; an unparseable file is
// logged and reinitialized to empty.
func (f *File[T]) Load(_ context.Context) ([]T, error) {
	content, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read collection %s: %w", f.name, err)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(content, &raw); err != nil {
		f.logger.Warn("collection corrupted; reinitializing",
			zap.String("collection", f.name), zap.String("path", f.path), zap.Error(err))
		f.quarantine([]json.RawMessage{json.RawMessage(quoteBytes(content))})
		if err := f.Save(context.Background(), nil); err != nil {
			f.logger.Error("reinitialize collection", zap.String("collection", f.name), zap.Error(err))
		}
		return nil, nil
	}

	records, rejected := decodeRows[T](f.name, raw, f.logger)
	if len(rejected) > 0 {
		bad := make([]json.RawMessage, 0, len(rejected))
		for _, i := range rejected {
			bad = append(bad, raw[i])
		}
		f.quarantine(bad)
		if err := f.Save(context.Background(), records); err != nil {
			f.logger.Error("rewrite collection after quarantine", zap.String("collection", f.name), zap.Error(err))
		}
	}
	return records, nil
}

// Save atomically replaces the file contents.
func (f *File[T]) Save(_ context.Context, records []T) error {
	content, err := encodeRows(records)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", f.name, err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create collection dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), f.name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write collection %s: %w", f.name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close collection %s: %w", f.name, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace collection %s: %w", f.name, err)
	}
	return nil
}

// quarantine appends rejected rows to <name>.quarantine.json, one JSON value per line.
func (f *File[T]) quarantine(rows []json.RawMessage) {
	path := filepath.Join(filepath.Dir(f.path), f.name+".quarantine.json")
	out, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		f.logger.Error("open quarantine file", zap.String("path", path), zap.Error(err))
		return
	}
	defer out.Close()

	for _, row := range rows {
		var buf bytes.Buffer
		if err := json.Compact(&buf, row); err != nil {
			buf.Reset()
			buf.Write(row)
		}
		buf.WriteByte('\n')
		if _, err := out.Write(buf.Bytes()); err != nil {
			f.logger.Error("write quarantine file", zap.String("path", path), zap.Error(err))
			return
		}
	}
}

func quoteBytes(b []byte) []byte {
	quoted, _ := json.Marshal(string(b))
	return quoted
}
