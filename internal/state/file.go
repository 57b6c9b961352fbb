package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/danielpatrickdp/ouroboros/internal/attribute"
)

// Failsafe is the document kept by FileSink.
type Failsafe struct {
	State   attribute.Mapping `json:"state"`
	Cycles  attribute.Cycles  `json:"cycles"`
	SavedAt string            `json:"saved_at,omitempty"`
}

// FileSink keeps the most recent mapping and cycle collection in a single
// JSON file. Each save rewrites the file through a temp file and rename.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink returns a sink writing to path. The file is created on first save.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Path returns the destination file.
func (f *FileSink) Path() string {
	return f.path
}

// Save merges rec into the document under its kind and rewrites the file.
func (f *FileSink) Save(_ context.Context, rec attribute.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := LoadFailsafe(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	switch r := rec.(type) {
	case attribute.Mapping:
		doc.State = r.Clone()
	case attribute.Cycles:
		doc.Cycles = r.Clone()
		if doc.Cycles == nil {
			doc.Cycles = attribute.Cycles{}
		}
	default:
		return fmt.Errorf("unsupported record kind %s", rec.Kind())
	}
	doc.SavedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal failsafe: %w", err)
	}
	return writeAtomic(f.path, data)
}

// LoadFailsafe reads a fail-safe document. A missing file yields an empty
// document and an error wrapping os.ErrNotExist.
func LoadFailsafe(path string) (Failsafe, error) {
	var doc Failsafe
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read failsafe %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Failsafe{}, fmt.Errorf("parse failsafe %s: %w", path, err)
	}
	return doc, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".failsafe-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
