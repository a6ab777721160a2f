package memory

import (
	"context"
	"sync"

	"github.com/vietddude/verdict/internal/core/domain"
)

// ItemRepo keeps work items in process memory. State is lost on exit.
type ItemRepo struct {
	mu    sync.RWMutex
	items []domain.WorkItem
	saves int
	err   error
}

func NewItemRepo(seed ...domain.WorkItem) *ItemRepo {
	r := &ItemRepo{}
	for _, it := range seed {
		r.items = append(r.items, it.Clone())
	}
	return r
}

func (r *ItemRepo) Load(ctx context.Context) ([]domain.WorkItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.err != nil {
		return nil, r.err
	}
	return cloneAll(r.items), nil
}

func (r *ItemRepo) Save(ctx context.Context, items []domain.WorkItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.items = cloneAll(items)
	r.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (r *ItemRepo) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}

// Items returns a copy of what was last saved.
func (r *ItemRepo) Items() []domain.WorkItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAll(r.items)
}

// FailWith makes every subsequent call return err (nil clears it).
func (r *ItemRepo) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func cloneAll(items []domain.WorkItem) []domain.WorkItem {
	out := make([]domain.WorkItem, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
