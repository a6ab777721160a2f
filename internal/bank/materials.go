package bank

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/vietddude/verdict/internal/infra/storage"
	"github.com/vietddude/verdict/internal/infra/storage/file"
)

// Material is a context file handed to the backend before essay generation.
type Material struct {
	ID   int    `json:"id"`
	Path string `json:"path"`
}

// MaterialBank is a JSON-backed list of material files.
type MaterialBank struct {
	mu    sync.RWMutex
	path  string
	items []Material
}

// LoadMaterials reads the bank at path. Missing or corrupt files yield an
// empty bank.
func LoadMaterials(path string) (*MaterialBank, error) {
	b := &MaterialBank{path: path}
	_, err := file.ReadJSON(path, &b.items)
	if errors.Is(err, storage.ErrCorrupt) {
		slog.Warn("Ignoring corrupt material bank", "path", path, "error", err)
		b.items = nil
		return b, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Add registers a file path. An already registered path is returned as is.
func (b *MaterialBank) Add(path string) (Material, error) {
	if _, err := os.Stat(path); err != nil {
		return Material{}, fmt.Errorf("material %s: %w", path, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	next := 1
	for _, m := range b.items {
		if m.Path == path {
			return m, nil
		}
		if m.ID >= next {
			next = m.ID + 1
		}
	}
	m := Material{ID: next, Path: path}
	b.items = append(b.items, m)
	return m, file.WriteJSON(b.path, b.items)
}

// Remove deletes the material with id.
func (b *MaterialBank) Remove(id int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, m := range b.items {
		if m.ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true, file.WriteJSON(b.path, b.items)
		}
	}
	return false, nil
}

// List returns all materials.
func (b *MaterialBank) List() []Material {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Material(nil), b.items...)
}
