package storage

import (
	"context"
	"errors"

	"github.com/vietddude/verdict/internal/core/domain"
)

var (
	// ErrCorrupt is returned when persisted state exists but cannot be decoded.
	ErrCorrupt = errors.New("corrupt persisted state")
)

// ItemRepository persists one ordered list of work items.
// Save replaces the whole list; Load returns an empty list when nothing was saved yet.
type ItemRepository interface {
	// Load returns the persisted items in their stored order.
	Load(ctx context.Context) ([]domain.WorkItem, error)

	// Save rewrites the persisted list wholesale.
	Save(ctx context.Context, items []domain.WorkItem) error
}
