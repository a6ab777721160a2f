// Package task keeps the persisted list of work items for one pipeline.
//
// Items are ordered oldest first; re-adding an input moves it to the end.
// Every visible mutation is written through the repository before the
// store lock is released, so a crash never loses an acknowledged change.
// Live progress text is the one exception and stays in memory.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/infra/storage"
)

var (
	// ErrEmptyInput is returned by Add for blank input.
	ErrEmptyInput = errors.New("input is empty")
)

// Pending names one check that still needs to run.
type Pending struct {
	ID    int
	Check string
}

// Store is a mutex-guarded, write-through list of work items.
type Store struct {
	mu     sync.Mutex
	repo   storage.ItemRepository
	kind   domain.ItemKind
	checks []string
	items  []domain.WorkItem
	nextID int
	now    func() time.Time
	log    *slog.Logger
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open loads the items persisted in repo. Missing state yields an empty
// store; corrupt state is logged and discarded. Items are normalized so every
// check in checks exists and carries a known status.
func Open(ctx context.Context, repo storage.ItemRepository, kind domain.ItemKind, checks []string, opts ...Option) (*Store, error) {
	s := &Store{
		repo:   repo,
		kind:   kind,
		checks: append([]string(nil), checks...),
		nextID: 1,
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("store", string(kind))

	items, err := repo.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrCorrupt):
		s.log.Error("Discarding corrupt work items", "error", err)
		items = nil
	case err != nil:
		return nil, fmt.Errorf("load %s items: %w", kind, err)
	}

	for _, it := range items {
		if it.Checks == nil {
			it.Checks = make(map[string]domain.CheckState, len(s.checks))
		}
		for _, name := range s.checks {
			st, ok := it.Checks[name]
			if !ok || !st.Status.Valid() {
				st.Status = domain.StatusPending
			}
			st.Progress = ""
			it.Checks[name] = st
		}
		if it.ID >= s.nextID {
			s.nextID = it.ID + 1
		}
		s.items = append(s.items, it)
	}

	s.log.Debug("Work items loaded", "count", len(s.items), "next_id", s.nextID)
	return s, nil
}

// Kind returns the pipeline this store belongs to.
func (s *Store) Kind() domain.ItemKind { return s.kind }

// Checks returns the check names every item carries.
func (s *Store) Checks() []string { return append([]string(nil), s.checks...) }

// Add registers input. An existing item with the same input is moved to the
// most-recent position and returned with existed=true; its checks are left
// as they were.
func (s *Store) Add(ctx context.Context, input string) (item domain.WorkItem, existed bool, err error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return domain.WorkItem{}, false, ErrEmptyInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if i := s.indexOfInput(input); i >= 0 {
		it := s.items[i]
		it.UpdatedAt = now
		s.items = append(s.items[:i], s.items[i+1:]...)
		s.items = append(s.items, it)
		return it.Clone(), true, s.persistLocked(ctx)
	}

	it := domain.WorkItem{
		ID:        s.nextID,
		Input:     input,
		Checks:    make(map[string]domain.CheckState, len(s.checks)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, name := range s.checks {
		it.Checks[name] = domain.CheckState{Status: domain.StatusPending}
	}
	s.nextID++
	s.items = append(s.items, it)
	return it.Clone(), false, s.persistLocked(ctx)
}

// Get returns a copy of the item with id.
func (s *Store) Get(id int) (domain.WorkItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.items[i].Clone(), true
	}
	return domain.WorkItem{}, false
}

// List returns copies of all items, oldest first.
func (s *Store) List() []domain.WorkItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WorkItem, len(s.items))
	for i, it := range s.items {
		out[i] = it.Clone()
	}
	return out
}

// UpdateCheck applies fn to one check and persists the result. It returns
// false without writing when the item or check no longer exists.
func (s *Store) UpdateCheck(ctx context.Context, id int, check string, fn func(*domain.CheckState)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}
	st, ok := s.items[i].Checks[check]
	if !ok {
		return false, nil
	}
	fn(&st)
	if !st.Status.Valid() {
		return false, fmt.Errorf("invalid status %q for check %s", st.Status, check)
	}
	s.items[i].Checks[check] = st
	s.items[i].UpdatedAt = s.now()
	return true, s.persistLocked(ctx)
}

// SetProgress stores transient progress text. It is never persisted.
func (s *Store) SetProgress(id int, check, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	st, ok := s.items[i].Checks[check]
	if !ok {
		return false
	}
	st.Progress = text
	s.items[i].Checks[check] = st
	return true
}

// Reset puts every check of the item back to Pending.
func (s *Store) Reset(ctx context.Context, id int) (domain.WorkItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.WorkItem{}, false, nil
	}
	for name := range s.items[i].Checks {
		s.items[i].Checks[name] = domain.CheckState{Status: domain.StatusPending}
	}
	s.items[i].UpdatedAt = s.now()
	return s.items[i].Clone(), true, s.persistLocked(ctx)
}

// Remove deletes the item with id.
func (s *Store) Remove(ctx context.Context, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return true, s.persistLocked(ctx)
}

// Clear removes every item. Ids keep counting up.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	return s.persistLocked(ctx)
}

// Incomplete lists every check that has not reached a terminal status, in
// item order.
func (s *Store) Incomplete() []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Pending
	for _, it := range s.items {
		for _, name := range it.Incomplete() {
			out = append(out, Pending{ID: it.ID, Check: name})
		}
	}
	return out
}

// Prune removes items whose checks are all terminal and that were last
// updated before cutoff. It returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.items[:0]
	removed := 0
	for _, it := range s.items {
		if it.Done() && it.UpdatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	s.items = kept
	if removed == 0 {
		return 0, nil
	}
	return removed, s.persistLocked(ctx)
}

func (s *Store) indexOf(id int) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexOfInput(input string) int {
	for i := range s.items {
		if s.items[i].Input == input {
			return i
		}
	}
	return -1
}

func (s *Store) persistLocked(ctx context.Context) error {
	snapshot := make([]domain.WorkItem, len(s.items))
	for i, it := range s.items {
		snapshot[i] = it.Clone()
	}
	if err := s.repo.Save(ctx, snapshot); err != nil {
		s.log.Error("Failed to persist work items", "error", err)
		return fmt.Errorf("persist %s items: %w", s.kind, err)
	}
	return nil
}
