package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/dl-progress/internal/domain"
)

func newTestDispatcher(t *testing.T, size int, timeout time.Duration) *Dispatcher {
	t.Helper()
	d := NewDispatcher(&domain.DispatchConfig{QueueSize: size, PublishTimeout: timeout}, nil)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() {
		if d.IsRunning() {
			d.Stop()
		}
	})
	return d
}

func TestDispatcher_RunsInOrderOnOneGoroutine(t *testing.T) {
	d := newTestDispatcher(t, 16, time.Second)

	var got []int
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, d.Dispatch(func() { got = append(got, i) }))
	}
	require.NoError(t, d.Dispatch(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not drain")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestDispatcher_StartTwice(t *testing.T) {
	d := newTestDispatcher(t, 1, 0)

	err := d.Start(context.Background())
	assert.Error(t, err)
	assert.True(t, d.IsRunning())
}

func TestDispatcher_BoundedWhenFull(t *testing.T) {
	d := NewDispatcher(&domain.DispatchConfig{QueueSize: 1, PublishTimeout: 20 * time.Millisecond}, nil)

	// Not started: the buffer fills and the next dispatch times out.
	require.NoError(t, d.Dispatch(func() {}))

	start := time.Now()
	err := d.Dispatch(func() {})
	assert.ErrorIs(t, err, ErrDispatchTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, d.Pending())
}

func TestDispatcher_ZeroTimeoutDropsImmediately(t *testing.T) {
	d := NewDispatcher(&domain.DispatchConfig{QueueSize: 1}, nil)

	require.NoError(t, d.Dispatch(func() {}))
	assert.ErrorIs(t, d.Dispatch(func() {}), ErrDispatchTimeout)
}

func TestDispatcher_SurvivesPanics(t *testing.T) {
	d := newTestDispatcher(t, 4, time.Second)

	var ran atomic.Bool
	require.NoError(t, d.Dispatch(func() { panic("boom") }))
	require.NoError(t, d.Dispatch(func() { ran.Store(true) }))

	assert.Eventually(t, ran.Load, 2*time.Second, 5*time.Millisecond)
}

func TestDispatcher_StopRejectsWork(t *testing.T) {
	d := newTestDispatcher(t, 4, time.Second)

	require.NoError(t, d.Stop())
	assert.False(t, d.IsRunning())
	assert.ErrorIs(t, d.Dispatch(func() {}), ErrDispatcherStopped)
	assert.Error(t, d.Stop())
	assert.ErrorIs(t, d.Start(context.Background()), ErrDispatcherStopped)
}

func TestDispatcher_ContextCancelStops(t *testing.T) {
	d := NewDispatcher(&domain.DispatchConfig{QueueSize: 4, PublishTimeout: time.Second}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))

	cancel()
	require.Eventually(t, func() bool { return !d.IsRunning() }, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	assert.ErrorIs(t, d.Dispatch(func() {}), ErrDispatcherStopped)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "Dispatch fails fast instead of waiting for the timeout")
	assert.Error(t, d.Stop())
}
