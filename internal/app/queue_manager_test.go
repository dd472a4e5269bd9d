package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/dl-progress/internal/domain"
)

func newTestQueueManager(t *testing.T, repo *mockJobRepo, fm *FetchManager) *QueueManager {
	t.Helper()
	config := &domain.QueueConfig{
		CheckInterval:   10 * time.Millisecond,
		AutoExitOnEmpty: false,
		EmptyWaitTime:   30 * time.Second,
	}
	return NewQueueManager(repo, fm, config, nil)
}

func TestAddJob_Valid(t *testing.T) {
	repo := newMockJobRepo()
	qm := newTestQueueManager(t, repo, nil)

	job, err := qm.AddJob("https://media.example.com/films/intro.mp4", "", "")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "intro.mp4", job.Title)
	assert.Equal(t, domain.StatusQueued, job.Status)

	stored, err := qm.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.URL, stored.URL)
}

func TestAddJob_InvalidURL(t *testing.T) {
	repo := newMockJobRepo()
	qm := newTestQueueManager(t, repo, nil)

	_, err := qm.AddJob("ftp://media.example.com/a", "", "")
	require.Error(t, err)

	jobs, err := qm.ListJobs(nil)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestDeleteJob(t *testing.T) {
	repo := newMockJobRepo()
	qm := newTestQueueManager(t, repo, nil)

	job, err := qm.AddJob("https://media.example.com/a.mkv", "", "")
	require.NoError(t, err)
	require.NoError(t, qm.DeleteJob(job.ID))

	_, err = qm.GetJob(job.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	running := &domain.FetchJob{ID: "running", Status: domain.StatusProcessing}
	require.NoError(t, repo.Create(running))
	err = qm.DeleteJob("running")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "currently processing")
}

func TestQueueManager_ProcessesQueuedJobs(t *testing.T) {
	fetcher := &scriptedFetcher{}
	fm, repo, registry, _ := newTestFetchManager(t, fetcher, 0)
	qm := newTestQueueManager(t, repo, fm)

	first, err := qm.AddJob("https://media.example.com/a.mkv", "", "")
	require.NoError(t, err)
	second, err := qm.AddJob("https://media.example.com/b.mkv", "", "")
	require.NoError(t, err)

	require.NoError(t, qm.Start(context.Background()))
	assert.True(t, qm.IsRunning())

	require.Eventually(t, func() bool {
		return repo.status(first.ID) == domain.StatusCompleted && repo.status(second.ID) == domain.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, qm.Stop())
	assert.False(t, qm.IsRunning())
	assert.Equal(t, 2, fetcher.callCount(), "each job is fetched exactly once")

	for _, id := range []string{first.ID, second.ID} {
		outcome, ok := registry.Outcome(id)
		require.True(t, ok)
		assert.True(t, outcome.Succeeded())
	}
}

func TestQueueManager_StopInterruptsRunningJobs(t *testing.T) {
	fetcher := &scriptedFetcher{block: true}
	fm, repo, registry, d := newTestFetchManager(t, fetcher, 3)
	qm := newTestQueueManager(t, repo, fm)

	job, err := qm.AddJob("https://media.example.com/a.mkv", "", "")
	require.NoError(t, err)

	// The parent context stays live, as it does in the server until Stop returns.
	require.NoError(t, qm.Start(context.Background()))
	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- qm.Stop() }()

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on an in-flight fetch")
	}
	flush(t, d)

	assert.Equal(t, domain.StatusProcessing, repo.status(job.ID), "interrupted jobs are requeued on the next start")
	assert.Equal(t, 1, fetcher.callCount(), "shutdown is not retried")
	_, ok := registry.Outcome(job.ID)
	assert.False(t, ok, "shutdown publishes no terminal event")
}

func TestQueueManager_StartStopErrors(t *testing.T) {
	repo := newMockJobRepo()
	qm := newTestQueueManager(t, repo, nil)

	assert.Error(t, qm.Stop())
	require.NoError(t, qm.Start(context.Background()))
	assert.Error(t, qm.Start(context.Background()))
	require.NoError(t, qm.Stop())
}

func TestQueueManager_AutoExitOnEmpty(t *testing.T) {
	repo := newMockJobRepo()
	config := &domain.QueueConfig{
		CheckInterval:   5 * time.Millisecond,
		AutoExitOnEmpty: true,
		EmptyWaitTime:   20 * time.Millisecond,
	}
	qm := NewQueueManager(repo, nil, config, nil)

	require.NoError(t, qm.Start(context.Background()))

	select {
	case <-qm.WaitForExit():
	case <-time.After(2 * time.Second):
		t.Fatal("queue manager did not auto-exit")
	}
	require.NoError(t, qm.Stop())
}
