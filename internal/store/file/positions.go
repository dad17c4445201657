// Package file stores the open position set as a JSON document on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"trading-enginev1/internal/model"
)

// PositionRepo keeps positions in a single JSON file keyed by symbol.
// Writes go to a temp file in the same directory, are fsynced and then
// renamed over the target, so readers never observe a partial document.
// The directory is fsynced after the rename.
type PositionRepo struct {
	path string
}

// NewPositionRepo returns a repository writing to path.
func NewPositionRepo(path string) *PositionRepo {
	return &PositionRepo{path: path}
}

// Path returns the backing file.
func (r *PositionRepo) Path() string { return r.path }

// LoadAll reads the stored set. A missing file is an empty set.
func (r *PositionRepo) LoadAll(ctx context.Context) (map[string]model.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]model.Position{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	out := make(map[string]model.Position)
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode positions %s: %w", r.path, err)
	}
	return out, nil
}

// SaveAll atomically replaces the stored set.
func (r *PositionRepo) SaveAll(ctx context.Context, positions map[string]model.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if positions == nil {
		positions = map[string]model.Position{}
	}

	data, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		return fmt.Errorf("encode positions: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create positions dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write positions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync positions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("rename positions: %w", err)
	}
	if err := syncDir(dir); err != nil {
		return fmt.Errorf("sync positions dir: %w", err)
	}
	return nil
}

// syncDir flushes the directory entry so a completed rename survives a crash.
var syncDir = func(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		d.Close()
		return err
	}
	return d.Close()
}
