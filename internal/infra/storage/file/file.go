// Package file persists state as JSON documents written atomically
// (temp file in the same directory, then rename).
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/infra/storage"
)

// WriteBytes replaces path with data without ever exposing a partial file.
func WriteBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".verdict-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}

// WriteJSON marshals v indented and writes it atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON for %s: %w", path, err)
	}
	data = append(data, '\n')
	return WriteBytes(path, data)
}

// ReadJSON decodes path into v. It reports found=false, err=nil when the file
// does not exist, and wraps storage.ErrCorrupt when the content is not valid JSON.
func ReadJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("%w: %s: %v", storage.ErrCorrupt, path, err)
	}
	return true, nil
}

// ItemRepo stores a work-item list as one JSON array.
type ItemRepo struct {
	path string
}

func NewItemRepo(path string) *ItemRepo {
	return &ItemRepo{path: path}
}

// Path returns the backing file.
func (r *ItemRepo) Path() string {
	return r.path
}

func (r *ItemRepo) Load(ctx context.Context) ([]domain.WorkItem, error) {
	var items []domain.WorkItem
	if _, err := ReadJSON(r.path, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ItemRepo) Save(ctx context.Context, items []domain.WorkItem) error {
	if items == nil {
		items = []domain.WorkItem{}
	}
	return WriteJSON(r.path, items)
}
