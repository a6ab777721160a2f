package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/core/task"
	"github.com/vietddude/verdict/internal/infra/storage/memory"
)

type fakeStore struct {
	cutoff time.Time
	n      int
	err    error
}

func (f *fakeStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func TestPruner_UsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	a := &fakeStore{n: 2}
	b := &fakeStore{err: errors.New("disk full")}
	c := &fakeStore{n: 1}

	p := NewPruner(24*time.Hour, a, b, c)
	p.now = func() time.Time { return now }

	assert.Equal(t, 3, p.prune(context.Background()))
	assert.Equal(t, now.Add(-24*time.Hour), a.cutoff)
	assert.Equal(t, now.Add(-24*time.Hour), c.cutoff)
}

func TestPruner_DisabledReturnsImmediately(t *testing.T) {
	s := &fakeStore{}
	done := make(chan struct{})
	go func() {
		NewPruner(0, s).Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner with zero retention should not loop")
	}
	assert.True(t, s.cutoff.IsZero())
}

func TestPruner_DropsOnlyFinishedItems(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store, err := task.Open(ctx, memory.NewItemRepo(), domain.ItemKindGeneration,
		[]string{domain.CheckEssay}, task.WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	done, _, err := store.Add(ctx, "finished question")
	require.NoError(t, err)
	_, err = store.UpdateCheck(ctx, done.ID, domain.CheckEssay, func(st *domain.CheckState) {
		st.Status = domain.StatusDone
	})
	require.NoError(t, err)
	pending, _, err := store.Add(ctx, "pending question")
	require.NoError(t, err)

	p := NewPruner(time.Hour, store)
	p.now = func() time.Time { return clock.Add(2 * time.Hour) }
	assert.Equal(t, 1, p.prune(ctx))

	items := store.List()
	require.Len(t, items, 1)
	assert.Equal(t, pending.ID, items[0].ID)
}
