package routing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/infra/llm/cooldown"
	"github.com/vietddude/verdict/internal/infra/llm/provider"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedClient returns errs in order, then reply forever.
type scriptedClient struct {
	id    domain.BackendIdentity
	reply string

	mu    sync.Mutex
	errs  []error
	calls atomic.Int32
}

func (c *scriptedClient) Identity() domain.BackendIdentity { return c.id }

func (c *scriptedClient) Complete(ctx context.Context, p provider.Prompt) (string, error) {
	c.calls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return "", err
	}
	return c.reply, nil
}

func completeOp(ctx context.Context, c provider.Client) (domain.Outcome, error) {
	text, err := c.Complete(ctx, provider.Prompt{Text: "ping"})
	if err != nil {
		return domain.Outcome{}, err
	}
	return domain.Found(text, ""), nil
}

type harness struct {
	clock    *clock
	registry *cooldown.Registry
	clients  []*scriptedClient
	exec     *Executor
	waits    []time.Duration
	pauses   int
}

func newHarness(t *testing.T, clients ...*scriptedClient) *harness {
	t.Helper()
	h := &harness{clock: &clock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}, clients: clients}
	h.registry = cooldown.NewRegistry(context.Background(), nil, cooldown.WithClock(h.clock.Now))

	chain := make([]Backend, 0, len(clients))
	for _, c := range clients {
		chain = append(chain, provider.NewAdapter(c, h.registry, provider.CooldownPolicy{Default: time.Second, Max: 10 * time.Minute}))
	}
	h.exec = NewExecutor(chain, h.registry, DefaultConfig)
	h.exec.wait = func(ctx context.Context, d, tick time.Duration, onTick func(time.Duration)) error {
		h.waits = append(h.waits, d)
		h.clock.Advance(d)
		return ctx.Err()
	}
	h.exec.pause = func(ctx context.Context, d time.Duration) error {
		h.pauses++
		return ctx.Err()
	}
	return h
}

func backend(model string) domain.BackendIdentity {
	return domain.BackendIdentity{Provider: "fake", Model: model}
}

func TestExecute_SkipsCooledAndFailedBackends(t *testing.T) {
	first := &scriptedClient{id: backend("a"), reply: "from a"}
	second := &scriptedClient{id: backend("b"), errs: []error{errors.New("connection reset")}}
	third := &scriptedClient{id: backend("c"), reply: "from c"}
	h := newHarness(t, first, second, third)
	h.registry.ReportLimitHit(first.id, 30*time.Second)

	out, err := h.exec.Execute(context.Background(), completeOp, nil)
	require.NoError(t, err)
	assert.Equal(t, "from c", out.Value)
	assert.Equal(t, int32(0), first.calls.Load())
	assert.Equal(t, int32(1), second.calls.Load())
	assert.Empty(t, h.waits)
}

func TestExecute_WaitsForShortestCooldown(t *testing.T) {
	a := &scriptedClient{id: backend("a"), reply: "a"}
	b := &scriptedClient{id: backend("b"), reply: "b"}
	c := &scriptedClient{id: backend("c"), reply: "c"}
	h := newHarness(t, a, b, c)
	h.registry.ReportLimitHit(a.id, 5*time.Second)
	h.registry.ReportLimitHit(b.id, 2*time.Second)
	h.registry.ReportLimitHit(c.id, 9*time.Second)

	out, err := h.exec.Execute(context.Background(), completeOp, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", out.Value)
	require.Len(t, h.waits, 1)
	assert.Equal(t, 2*time.Second+DefaultConfig.Buffer, h.waits[0])
	assert.Equal(t, int32(0), a.calls.Load())
	assert.Equal(t, int32(0), c.calls.Load())
}

func TestExecute_RateLimitDuringCallReportsCooldown(t *testing.T) {
	a := &scriptedClient{id: backend("a"), errs: []error{&provider.StatusError{Code: 429, Message: "quota", RetryAfter: 3 * time.Second}}, reply: "a"}
	h := newHarness(t, a)

	out, err := h.exec.Execute(context.Background(), completeOp, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", out.Value)
	require.Len(t, h.waits, 1)
	assert.Equal(t, 3*time.Second+DefaultConfig.Buffer, h.waits[0])
	assert.Equal(t, int32(2), a.calls.Load())
}

func TestExecute_CapsWaitAtMax(t *testing.T) {
	a := &scriptedClient{id: backend("a"), reply: "a"}
	h := newHarness(t, a)
	h.registry.ReportLimitHit(a.id, 10*time.Minute)

	// The first capped wait is not enough; the second pass still sees a cooldown.
	_, err := h.exec.Execute(context.Background(), completeOp, nil)
	require.NoError(t, err)
	require.NotEmpty(t, h.waits)
	for _, w := range h.waits {
		assert.LessOrEqual(t, w, DefaultConfig.MaxWait)
	}
	assert.Equal(t, DefaultConfig.MaxWait, h.waits[0])
}

func TestExecute_FallbackWaitWhenNothingRateLimited(t *testing.T) {
	a := &scriptedClient{id: backend("a"), errs: []error{errors.New("boom")}, reply: "a"}
	h := newHarness(t, a)

	out, err := h.exec.Execute(context.Background(), completeOp, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", out.Value)
	assert.Equal(t, []time.Duration{DefaultConfig.FallbackWait}, h.waits)
}

func TestExecute_UnavailablePausesAndMovesOn(t *testing.T) {
	a := &scriptedClient{id: backend("a"), errs: []error{&provider.StatusError{Code: 404, Message: "model not found"}}}
	b := &scriptedClient{id: backend("b"), reply: "b"}
	h := newHarness(t, a, b)

	var (
		mu     sync.Mutex
		events []Event
	)
	done := make(chan struct{})
	out, err := h.exec.Execute(context.Background(), completeOp, func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
		if ev.Kind == EventUnavailable {
			close(done)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, "b", out.Value)
	assert.Equal(t, 1, h.pauses)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("no unavailable event delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	var found bool
	for _, ev := range events {
		if ev.Kind == EventUnavailable {
			found = true
			assert.Equal(t, "Model fake:a unavailable, skipping...", ev.String())
		}
	}
	assert.True(t, found)
}

func TestExecute_EmptyChain(t *testing.T) {
	exec := NewExecutor(nil, nil, DefaultConfig)
	_, err := exec.Execute(context.Background(), completeOp, nil)
	assert.ErrorIs(t, err, provider.ErrNotConfigured)
}

func TestExecute_CancelDuringBackoff(t *testing.T) {
	a := &scriptedClient{id: backend("a"), reply: "a"}
	reg := cooldown.NewRegistry(context.Background(), nil)
	reg.ReportLimitHit(a.id, time.Hour)
	adapter := provider.NewAdapter(a, reg, provider.DefaultCooldownPolicy)
	exec := NewExecutor([]Backend{adapter}, reg, DefaultConfig)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := exec.Execute(ctx, completeOp, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(0), a.calls.Load())
}

func TestExecute_SlowSinkDoesNotBlock(t *testing.T) {
	a := &scriptedClient{id: backend("a"), errs: []error{errors.New("boom")}, reply: "a"}
	reg := cooldown.NewRegistry(context.Background(), nil)
	adapter := provider.NewAdapter(a, reg, provider.DefaultCooldownPolicy)
	cfg := DefaultConfig
	cfg.FallbackWait = 100 * time.Millisecond
	cfg.Tick = 10 * time.Millisecond
	exec := NewExecutor([]Backend{adapter}, reg, cfg)

	start := time.Now()
	out, err := exec.Execute(context.Background(), completeOp, func(Event) {
		time.Sleep(time.Second)
	})
	require.NoError(t, err)
	assert.Equal(t, "a", out.Value)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCountdown_ReportsRemaining(t *testing.T) {
	var ticks []time.Duration
	err := countdown(context.Background(), 60*time.Millisecond, 10*time.Millisecond, func(d time.Duration) {
		ticks = append(ticks, d)
	})
	require.NoError(t, err)
	require.NotEmpty(t, ticks)
	assert.Equal(t, 60*time.Millisecond, ticks[0])
	for i := 1; i < len(ticks); i++ {
		assert.LessOrEqual(t, ticks[i], ticks[i-1])
	}
}

func TestChain_PreservesOrder(t *testing.T) {
	h := newHarness(t,
		&scriptedClient{id: backend("x")},
		&scriptedClient{id: backend("y")},
	)
	assert.Equal(t, []domain.BackendIdentity{backend("x"), backend("y")}, h.exec.Chain())
}
