package app

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/dl-progress/internal/domain"
)

func newTestRegistry(t *testing.T) (*Registry, *Dispatcher) {
	t.Helper()
	n, d := newTestNotifier(t)
	return NewRegistry(NewProgressStore(), n, nil), d
}

func TestRegistry_BeginProgressGet(t *testing.T) {
	r, d := newTestRegistry(t)
	o := newRecordingObserver()
	r.Subscribe(o)

	require.NoError(t, r.Begin("a", "Episode 1", 100))
	require.NoError(t, r.Progress("a", 50, -1))
	flush(t, d)

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Episode 1", got.Title)
	assert.Equal(t, int64(50), got.WrittenBytes)
	assert.Equal(t, int64(100), got.ExpectedContentLength)
	assert.Equal(t, domain.ProgressInProgress, got.State)

	require.Equal(t, 2, o.updateCount())
	assert.Equal(t, domain.ProgressNotStarted, o.updates[0].State)
	assert.Equal(t, got, o.updates[1])
}

func TestRegistry_ProgressWithoutBegin(t *testing.T) {
	r, _ := newTestRegistry(t)

	require.NoError(t, r.Progress("a", 10, 0))

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, domain.ProgressInProgress, got.State)
	assert.Equal(t, "In progress", got.Label())
}

func TestRegistry_ProgressRejectsOverrun(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Begin("a", "", 100))

	err := r.Progress("a", 150, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidSnapshot)

	got, _ := r.Get("a")
	assert.Equal(t, domain.ProgressNotStarted, got.State)
}

func TestRegistry_FailureKeepsLastSnapshot(t *testing.T) {
	r, d := newTestRegistry(t)
	o := newRecordingObserver()
	r.Subscribe(o)

	require.NoError(t, r.Begin("a", "", 100))
	require.NoError(t, r.Progress("a", 30, -1))
	last, _ := r.Get("a")

	require.NoError(t, r.Complete("a", domain.Failure(errors.New("connection reset"))))
	flush(t, d)

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, last, got, "failure does not clear or alter the snapshot")

	resp, ok := o.completion("a")
	require.True(t, ok)
	assert.Equal(t, "connection reset", resp.ErrorMessage())

	outcome, ok := r.Outcome("a")
	require.True(t, ok)
	assert.False(t, outcome.Succeeded())

	assert.True(t, r.Remove("a"))
	_, ok = r.Get("a")
	assert.False(t, ok)
	_, ok = r.Outcome("a")
	assert.False(t, ok)
}

func TestRegistry_SuccessMarksComplete(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Begin("a", "", 100))
	require.NoError(t, r.Progress("a", 100, -1))

	require.NoError(t, r.Complete("a", domain.Success("/downloads/a.mkv")))

	got, _ := r.Get("a")
	assert.Equal(t, domain.ProgressComplete, got.State)
	assert.Equal(t, "100.0%", got.Label())
}

func TestRegistry_RejectsTicksAfterCompletion(t *testing.T) {
	r, d := newTestRegistry(t)
	o := newRecordingObserver()
	r.Subscribe(o)

	require.NoError(t, r.Begin("a", "", 100))
	require.NoError(t, r.Progress("a", 100, -1))
	require.NoError(t, r.Complete("a", domain.Success("/downloads/a.mkv")))

	assert.ErrorIs(t, r.Progress("a", 40, -1), domain.ErrAlreadyCompleted)
	assert.ErrorIs(t, r.Report(domain.NewDownloadRequest("a", "", 100).Advance(60, -1)), domain.ErrAlreadyCompleted)
	flush(t, d)

	got, _ := r.Get("a")
	assert.Equal(t, domain.ProgressComplete, got.State, "a late tick does not reopen the download")
	assert.Equal(t, 2, o.updateCount())

	// A new attempt accepts ticks again.
	require.NoError(t, r.Begin("a", "", 100))
	require.NoError(t, r.Progress("a", 10, -1))
}

func TestRegistry_CompleteOncePerAttempt(t *testing.T) {
	r, d := newTestRegistry(t)
	completions := 0
	r.Subscribe(&domain.ObserverFuncs{
		OnComplete: func(string, domain.FetcherResponse) { completions++ },
	})

	require.NoError(t, r.Begin("a", "", 0))
	require.NoError(t, r.Complete("a", domain.Failure(errors.New("first"))))
	err := r.Complete("a", domain.Failure(errors.New("second")))
	assert.ErrorIs(t, err, domain.ErrAlreadyCompleted)

	// A new attempt may complete again.
	require.NoError(t, r.Begin("a", "", 0))
	require.NoError(t, r.Complete("a", domain.Success("/tmp/a")))
	flush(t, d)

	assert.Equal(t, 2, completions)
	outcome, _ := r.Outcome("a")
	assert.True(t, outcome.Succeeded())
}

func TestRegistry_Restore(t *testing.T) {
	r, _ := newTestRegistry(t)
	snap := domain.NewDownloadRequest("a", "", 10).Advance(5, -1)
	snap.UpdatedAt = time.Now().Add(-time.Hour)

	loaded := r.Restore(
		[]domain.DownloadRequest{snap},
		[]*domain.CompletionRecord{domain.NewCompletionRecord("a", domain.Failure(errors.New("gone")))},
	)

	assert.Equal(t, 1, loaded)
	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(5), got.WrittenBytes)
	outcome, ok := r.Outcome("a")
	require.True(t, ok)
	assert.Equal(t, "gone", outcome.ErrorMessage())
	assert.ErrorIs(t, r.Complete("a", domain.Success("/x")), domain.ErrAlreadyCompleted)
}
