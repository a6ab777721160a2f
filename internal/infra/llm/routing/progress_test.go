package routing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_KeepsTransitionsUnderPressure(t *testing.T) {
	release := make(chan struct{})
	var (
		mu   sync.Mutex
		got  []Event
		done = make(chan struct{})
	)
	d := newDispatcher(func(ev Event) {
		if ev.Kind == EventAttempt {
			<-release
		}
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		if ev.Kind == EventRetry {
			close(done)
		}
	})

	d.emit(Event{Kind: EventAttempt})
	d.emit(Event{Kind: EventBackoff, RateLimited: true})
	for i := 200; i > 0; i-- {
		d.emit(Event{Kind: EventTick, Remaining: time.Duration(i) * time.Millisecond})
	}
	d.emit(Event{Kind: EventRetry})
	d.close()
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("retry event never delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, EventAttempt, got[0].Kind)
	assert.Equal(t, EventBackoff, got[1].Kind)
	assert.Equal(t, EventRetry, got[len(got)-1].Kind)

	ticks := got[2 : len(got)-1]
	require.NotEmpty(t, ticks)
	assert.Less(t, len(ticks), 200)
	assert.Equal(t, time.Millisecond, ticks[len(ticks)-1].Remaining)
}

func TestDispatcher_DropsAfterClose(t *testing.T) {
	var (
		mu    sync.Mutex
		kinds []EventKind
	)
	d := newDispatcher(func(ev Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})
	d.emit(Event{Kind: EventAttempt})
	d.close()
	d.emit(Event{Kind: EventRetry})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventKind{EventAttempt}, kinds)
}

func TestDispatcher_NilIsSafe(t *testing.T) {
	d := newDispatcher(nil)
	assert.Nil(t, d)
	d.emit(Event{Kind: EventTick})
	d.close()
}
