// Package runner launches and supervises the checks of work items.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/core/task"
	"github.com/vietddude/verdict/internal/infra/llm/provider"
	"github.com/vietddude/verdict/internal/infra/llm/routing"
	"github.com/vietddude/verdict/internal/processing/metrics"
)

// Check is one named unit of work run against an item.
type Check interface {
	Name() string
	Run(ctx context.Context, item domain.WorkItem, progress routing.ProgressFunc) (domain.Outcome, error)
}

type taskKey struct {
	id    int
	check string
}

// launch is one run of one check. Only the current launch for a key may
// write to the store.
type launch struct {
	token    uuid.UUID
	cancel   context.CancelFunc
	finished bool
}

// Runner runs every check of an item on its own goroutine and records the
// outcome in the store.
type Runner struct {
	store  *task.Store
	checks map[string]Check
	kind   string
	log    *slog.Logger

	base context.Context
	stop context.CancelFunc

	mu    sync.Mutex
	tasks map[taskKey]*launch
	wg    sync.WaitGroup
}

// New builds a runner over store. Checks are matched to the store's check
// names by Name().
func New(store *task.Store, checks ...Check) *Runner {
	base, stop := context.WithCancel(context.Background())
	r := &Runner{
		store:  store,
		checks: make(map[string]Check, len(checks)),
		kind:   string(store.Kind()),
		log:    slog.Default().With("runner", string(store.Kind())),
		base:   base,
		stop:   stop,
		tasks:  make(map[taskKey]*launch),
	}
	for _, c := range checks {
		r.checks[c.Name()] = c
	}
	return r
}

// Store returns the underlying item store.
func (r *Runner) Store() *task.Store { return r.store }

// Items returns the store's items, oldest first.
func (r *Runner) Items() []domain.WorkItem { return r.store.List() }

// Submit adds input and starts all of its checks. Submitting an input that
// already exists moves it to the end of the list and runs its checks again.
func (r *Runner) Submit(ctx context.Context, input string) (domain.WorkItem, bool, error) {
	item, existed, err := r.store.Add(ctx, input)
	if err != nil {
		return item, existed, err
	}
	if existed {
		r.cancelItem(item.ID)
		var ok bool
		item, ok, err = r.store.Reset(ctx, item.ID)
		if err != nil || !ok {
			return item, existed, err
		}
	}
	r.launchAll(item)
	return item, existed, nil
}

// Retry cancels whatever is running for id, resets its checks and runs them
// again. It reports false when the item does not exist.
func (r *Runner) Retry(ctx context.Context, id int) (domain.WorkItem, bool, error) {
	r.cancelItem(id)
	item, ok, err := r.store.Reset(ctx, id)
	if err != nil || !ok {
		return item, ok, err
	}
	r.launchAll(item)
	return item, true, nil
}

// Remove cancels the item's checks and deletes it.
func (r *Runner) Remove(ctx context.Context, id int) (bool, error) {
	r.cancelItem(id)
	return r.store.Remove(ctx, id)
}

// Clear cancels everything and empties the store.
func (r *Runner) Clear(ctx context.Context) error {
	r.mu.Lock()
	for key, l := range r.tasks {
		l.cancel()
		delete(r.tasks, key)
	}
	r.mu.Unlock()
	return r.store.Clear(ctx)
}

// Resume relaunches every check that has not reached a terminal status and
// is not already running. It returns how many checks were started.
func (r *Runner) Resume(ctx context.Context) int {
	started := 0
	for _, p := range r.store.Incomplete() {
		item, ok := r.store.Get(p.ID)
		if !ok {
			continue
		}
		r.mu.Lock()
		if _, running := r.tasks[taskKey{p.ID, p.Check}]; !running {
			r.launchLocked(item, p.Check)
			started++
		}
		r.mu.Unlock()
	}
	if started > 0 {
		r.log.Info("Resumed unfinished checks", "count", started)
	}
	return started
}

// Wait blocks until every launched check has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels all running checks and waits for them. Cancelled checks
// keep their persisted status and are picked up again by Resume.
func (r *Runner) Shutdown() {
	r.stop()
	r.wg.Wait()
}

func (r *Runner) launchAll(item domain.WorkItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.store.Checks() {
		r.launchLocked(item, name)
	}
}

func (r *Runner) launchLocked(item domain.WorkItem, name string) {
	key := taskKey{item.ID, name}
	if prev, ok := r.tasks[key]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(r.base)
	l := &launch{token: uuid.New(), cancel: cancel}
	r.tasks[key] = l

	metrics.ChecksInFlight.WithLabelValues(r.kind).Inc()
	r.wg.Add(1)
	go r.run(ctx, l, key, item)
}

func (r *Runner) cancelItem(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, l := range r.tasks {
		if key.id == id {
			l.cancel()
			delete(r.tasks, key)
		}
	}
}

func (r *Runner) run(ctx context.Context, l *launch, key taskKey, item domain.WorkItem) {
	log := r.log.With("item", key.id, "check", key.check, "launch", l.token.String())
	defer func() {
		r.mu.Lock()
		if r.tasks[key] == l {
			delete(r.tasks, key)
		}
		r.mu.Unlock()
		l.cancel()
		metrics.ChecksInFlight.WithLabelValues(r.kind).Dec()
		r.wg.Done()
	}()
	defer func() {
		if p := recover(); p != nil {
			log.Error("Check panicked", "panic", p)
			r.finish(l, key, domain.CheckState{Status: domain.StatusError, Detail: fmt.Sprintf("internal error: %v", p)})
		}
	}()

	check, ok := r.checks[key.check]
	if !ok {
		r.finish(l, key, domain.CheckState{Status: domain.StatusError, Detail: "no handler for check " + key.check})
		return
	}

	r.write(l, key, false, func(st *domain.CheckState) {
		*st = domain.CheckState{Status: domain.StatusChecking}
	})

	out, err := check.Run(ctx, item, func(ev routing.Event) { r.onProgress(l, key, ev) })
	if ctx.Err() != nil {
		log.Debug("Check cancelled")
		return
	}

	var st domain.CheckState
	switch {
	case errors.Is(err, provider.ErrNotConfigured):
		st = domain.CheckState{Status: domain.StatusError, Detail: "No backends configured"}
	case err != nil:
		log.Warn("Check failed", "error", err)
		st = domain.CheckState{Status: domain.StatusError, Detail: err.Error()}
	case out.Found:
		st = domain.CheckState{Status: domain.StatusDone, Value: out.Value, Detail: out.Note, Source: out.Source}
	default:
		st = domain.CheckState{Status: domain.StatusNotFound, Detail: out.Note, Source: out.Source}
	}
	r.finish(l, key, st)
}

func (r *Runner) onProgress(l *launch, key taskKey, ev routing.Event) {
	switch {
	case ev.Kind == routing.EventBackoff && ev.RateLimited:
		r.write(l, key, false, func(st *domain.CheckState) {
			st.Status = domain.StatusRateLimited
			st.Progress = ev.Message
		})
	case ev.Kind == routing.EventRetry:
		r.write(l, key, false, func(st *domain.CheckState) {
			st.Status = domain.StatusChecking
			st.Progress = ev.Message
		})
	default:
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.tasks[key] == l && !l.finished {
			r.store.SetProgress(key.id, key.check, ev.Message)
		}
	}
}

func (r *Runner) finish(l *launch, key taskKey, st domain.CheckState) {
	if r.write(l, key, true, func(cur *domain.CheckState) { *cur = st }) {
		metrics.ChecksCompleted.WithLabelValues(r.kind, key.check, string(st.Status)).Inc()
	}
}

// write applies fn only while l is still the current, unfinished launch.
func (r *Runner) write(l *launch, key taskKey, final bool, fn func(*domain.CheckState)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tasks[key] != l || l.finished {
		return false
	}
	if final {
		l.finished = true
	}
	ok, err := r.store.UpdateCheck(context.Background(), key.id, key.check, fn)
	if err != nil {
		r.log.Error("Failed to record check status", "item", key.id, "check", key.check, "error", err)
	}
	return ok
}
