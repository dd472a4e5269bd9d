package app

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/dl-progress/internal/domain"
)

// recordingObserver collects every event it receives
type recordingObserver struct {
	mu          sync.Mutex
	updates     []domain.DownloadRequest
	completions map[string]domain.FetcherResponse
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{completions: make(map[string]domain.FetcherResponse)}
}

func (o *recordingObserver) DownloadDidUpdate(progress domain.DownloadRequest) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updates = append(o.updates, progress)
}

func (o *recordingObserver) DownloadWasCompleted(id string, response domain.FetcherResponse) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completions[id] = response
}

func (o *recordingObserver) updateCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.updates)
}

func (o *recordingObserver) completion(id string) (domain.FetcherResponse, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	resp, ok := o.completions[id]
	return resp, ok
}

type panickingObserver struct{}

func (panickingObserver) DownloadDidUpdate(domain.DownloadRequest) { panic("observer bug") }
func (panickingObserver) DownloadWasCompleted(string, domain.FetcherResponse) {
	panic("observer bug")
}

func newTestNotifier(t *testing.T) (*Notifier, *Dispatcher) {
	t.Helper()
	d := newTestDispatcher(t, 64, time.Second)
	return NewNotifier(d, nil), d
}

// flush waits until everything dispatched so far has run
func flush(t *testing.T, d *Dispatcher) {
	t.Helper()
	done := make(chan struct{})
	require.NoError(t, d.Dispatch(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not flush")
	}
}

func TestNotifier_DeliversToAllSubscribers(t *testing.T) {
	n, d := newTestNotifier(t)
	first, second := newRecordingObserver(), newRecordingObserver()
	n.Subscribe(first)
	n.Subscribe(second)

	req := domain.NewDownloadRequest("a", "", 100).Advance(10, -1)
	require.NoError(t, n.PublishProgress(req))
	require.NoError(t, n.PublishCompletion("a", domain.Success("/tmp/a")))
	flush(t, d)

	for _, o := range []*recordingObserver{first, second} {
		require.Equal(t, 1, o.updateCount())
		assert.Equal(t, req, o.updates[0])
		resp, ok := o.completion("a")
		require.True(t, ok)
		assert.True(t, resp.Succeeded())
	}
}

func TestNotifier_NoReplayForLateSubscribers(t *testing.T) {
	n, d := newTestNotifier(t)
	early := newRecordingObserver()
	n.Subscribe(early)

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, n.PublishProgress(domain.NewDownloadRequest("a", "", 5).Advance(i, -1)))
	}

	late := newRecordingObserver()
	n.Subscribe(late)
	flush(t, d)

	assert.Equal(t, 5, early.updateCount())
	assert.Equal(t, 0, late.updateCount())

	require.NoError(t, n.PublishCompletion("a", domain.Success("/tmp/a")))
	flush(t, d)
	_, ok := late.completion("a")
	assert.True(t, ok, "events after subscribing are delivered")
}

func TestNotifier_IsolatesPanickingObserver(t *testing.T) {
	n, d := newTestNotifier(t)
	n.Subscribe(panickingObserver{})
	healthy := newRecordingObserver()
	n.Subscribe(healthy)
	n.Subscribe(panickingObserver{})

	require.NoError(t, n.PublishProgress(domain.NewDownloadRequest("a", "", 0)))
	require.NoError(t, n.PublishCompletion("a", domain.Failure(errors.New("404"))))
	flush(t, d)

	assert.Equal(t, 1, healthy.updateCount())
	resp, ok := healthy.completion("a")
	require.True(t, ok)
	assert.Equal(t, "404", resp.ErrorMessage())
	assert.Equal(t, 3, n.SubscriberCount(), "panicking observers stay subscribed")
}

func TestNotifier_UnsubscribeStopsDelivery(t *testing.T) {
	n, d := newTestNotifier(t)
	o := newRecordingObserver()
	sub := n.Subscribe(o)

	require.NoError(t, n.PublishProgress(domain.NewDownloadRequest("a", "", 0)))
	flush(t, d)
	sub.Unsubscribe()
	require.NoError(t, n.PublishProgress(domain.NewDownloadRequest("b", "", 0)))
	flush(t, d)

	assert.Equal(t, 1, o.updateCount())
	assert.False(t, sub.Active())
	assert.Equal(t, 0, n.SubscriberCount())
}

func TestNotifier_UnsubscribeBeforeQueuedDelivery(t *testing.T) {
	n, d := newTestNotifier(t)
	o := newRecordingObserver()
	sub := n.Subscribe(o)

	// Hold the dispatch goroutine so the publish below stays queued.
	release := make(chan struct{})
	require.NoError(t, d.Dispatch(func() { <-release }))
	require.NoError(t, n.PublishProgress(domain.NewDownloadRequest("a", "", 0)))

	n.Unsubscribe(sub)
	close(release)
	flush(t, d)

	assert.Equal(t, 0, o.updateCount(), "queued event must not reach an unsubscribed observer")
}

func TestNotifier_UnsubscribeFromInsideCallback(t *testing.T) {
	n, d := newTestNotifier(t)
	var sub *Subscription
	calls := 0
	sub = n.Subscribe(&domain.ObserverFuncs{
		OnUpdate: func(domain.DownloadRequest) {
			calls++
			sub.Unsubscribe()
		},
	})

	for i := 0; i < 3; i++ {
		n.PublishProgress(domain.NewDownloadRequest("a", "", 0))
	}
	flush(t, d)

	assert.Equal(t, 1, calls)
}

func TestNotifier_UnsubscribeDuringPublishFromOtherGoroutine(t *testing.T) {
	n, d := newTestNotifier(t)
	entered := make(chan struct{})
	proceed := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	sub := n.Subscribe(&domain.ObserverFuncs{
		OnUpdate: func(domain.DownloadRequest) {
			mu.Lock()
			calls++
			first := calls == 1
			mu.Unlock()
			if first {
				close(entered)
				<-proceed
			}
		},
	})

	require.NoError(t, n.PublishProgress(domain.NewDownloadRequest("a", "", 0)))
	require.NoError(t, n.PublishProgress(domain.NewDownloadRequest("b", "", 0)))
	<-entered

	// The first callback is in flight; unsubscribing must not wait for it
	// and must prevent the second delivery.
	n.Unsubscribe(sub)
	close(proceed)
	flush(t, d)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestNotifier_PublishWithoutSubscribersIsNoop(t *testing.T) {
	d := NewDispatcher(&domain.DispatchConfig{QueueSize: 1}, nil)
	n := NewNotifier(d, nil)

	for i := 0; i < 10; i++ {
		require.NoError(t, n.PublishProgress(domain.NewDownloadRequest("a", "", 0)))
	}
	assert.Equal(t, 0, d.Pending())
}

func TestNotifier_PublishDoesNotBlockWhenQueueFull(t *testing.T) {
	d := NewDispatcher(&domain.DispatchConfig{QueueSize: 1, PublishTimeout: 10 * time.Millisecond}, nil)
	n := NewNotifier(d, nil)
	n.Subscribe(newRecordingObserver())

	require.NoError(t, n.PublishProgress(domain.NewDownloadRequest("a", "", 0)))
	err := n.PublishProgress(domain.NewDownloadRequest("a", "", 0))
	assert.ErrorIs(t, err, ErrDispatchTimeout)
}

type weakObserver struct {
	received *int
}

func (w *weakObserver) DownloadDidUpdate(domain.DownloadRequest)            { *w.received++ }
func (w *weakObserver) DownloadWasCompleted(string, domain.FetcherResponse) {}

func TestSubscribeWeak_DeliversWhileAlive(t *testing.T) {
	n, d := newTestNotifier(t)
	received := 0
	o := &weakObserver{received: &received}
	sub := SubscribeWeak(n, o)

	require.NoError(t, n.PublishProgress(domain.NewDownloadRequest("a", "", 0)))
	flush(t, d)

	assert.Equal(t, 1, received)
	assert.True(t, sub.Active())
	runtime.KeepAlive(o)
}

func TestSubscribeWeak_DropsCollectedObserver(t *testing.T) {
	n, d := newTestNotifier(t)
	received := 0
	sub := SubscribeWeak(n, &weakObserver{received: &received})

	require.Eventually(t, func() bool {
		runtime.GC()
		n.PublishProgress(domain.NewDownloadRequest("a", "", 0))
		flush(t, d)
		return !sub.Active()
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, n.SubscriberCount())
}
