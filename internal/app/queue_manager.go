package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/dl-progress/internal/domain"
	"github.com/yourusername/dl-progress/pkg/logger"
)

// QueueManager feeds persisted fetch jobs to the fetch manager
type QueueManager struct {
	repo        domain.FetchJobRepository
	fetchMgr    *FetchManager
	config      *domain.QueueConfig
	multiLogger *logger.MultiLogger
	mu          sync.RWMutex
	running     bool
	cancelJobs  context.CancelFunc
	inFlight    map[string]bool
	stopChan    chan struct{}
	exitChan    chan struct{}
	exitOnce    sync.Once
	workerWg    sync.WaitGroup
}

// NewQueueManager creates a new queue manager
func NewQueueManager(
	repo domain.FetchJobRepository,
	fetchMgr *FetchManager,
	config *domain.QueueConfig,
	multiLogger *logger.MultiLogger,
) *QueueManager {
	return &QueueManager{
		repo:        repo,
		fetchMgr:    fetchMgr,
		config:      config,
		multiLogger: multiLogger,
		inFlight:    make(map[string]bool),
		stopChan:    make(chan struct{}),
		exitChan:    make(chan struct{}),
	}
}

// Start starts the queue processor
func (qm *QueueManager) Start(ctx context.Context) error {
	qm.mu.Lock()
	if qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager already running")
	}
	qm.running = true
	ctx, qm.cancelJobs = context.WithCancel(ctx)
	qm.mu.Unlock()

	if reset, err := qm.repo.ResetOrphanedProcessing(); err != nil {
		qm.logError("Failed to reset orphaned jobs", zap.Error(err))
	} else if reset > 0 {
		qm.logEvent("orphaned_jobs_requeued", zap.Int64("count", reset))
	}

	qm.logEvent("queue_started")

	qm.workerWg.Add(1)
	go qm.processQueue(ctx)

	return nil
}

// Stop stops the queue processor, interrupts running jobs and waits for
// them to return. Interrupted jobs stay processing and are requeued on the
// next Start.
func (qm *QueueManager) Stop() error {
	qm.mu.Lock()
	if !qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager not running")
	}
	qm.running = false
	cancelJobs := qm.cancelJobs
	qm.mu.Unlock()

	qm.logEvent("queue_stopped", zap.Int("interrupted", qm.inFlightCount()))
	close(qm.stopChan)
	cancelJobs()
	qm.workerWg.Wait()

	return nil
}

// IsRunning returns whether the queue manager is running
func (qm *QueueManager) IsRunning() bool {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return qm.running
}

// WaitForExit is closed when the queue stopped itself after staying empty
func (qm *QueueManager) WaitForExit() <-chan struct{} {
	return qm.exitChan
}

// AddJob validates and enqueues a new fetch job
func (qm *QueueManager) AddJob(rawURL, destination, title string) (*domain.FetchJob, error) {
	if err := domain.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	job := domain.NewFetchJob(rawURL, destination, title)
	if err := qm.repo.Create(job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	qm.logEvent("job_added",
		zap.String("id", job.ID),
		zap.String("url", rawURL),
		zap.String("title", job.Title))

	return job, nil
}

// GetJob retrieves a job by ID
func (qm *QueueManager) GetJob(id string) (*domain.FetchJob, error) {
	return qm.repo.FindByID(id)
}

// ListJobs lists all jobs with optional filters
func (qm *QueueManager) ListJobs(filters map[string]interface{}) ([]*domain.FetchJob, error) {
	return qm.repo.FindAll(filters)
}

// GetStats returns queue statistics
func (qm *QueueManager) GetStats() (*domain.FetchStats, error) {
	return qm.repo.GetStats()
}

// DeleteJob removes a job that is not running
func (qm *QueueManager) DeleteJob(id string) error {
	job, err := qm.repo.FindByID(id)
	if err != nil {
		return err
	}
	if job.IsProcessing() {
		return fmt.Errorf("%w: job currently processing, cancel it first", domain.ErrInvalidState)
	}
	if err := qm.repo.Delete(id); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	qm.logEvent("job_deleted", zap.String("id", id))
	return nil
}

// processQueue polls for queued jobs and runs each in its own goroutine.
// The fetch manager's semaphore bounds actual concurrency.
func (qm *QueueManager) processQueue(ctx context.Context) {
	defer qm.workerWg.Done()

	ticker := time.NewTicker(qm.config.CheckInterval)
	defer ticker.Stop()

	emptyStartTime := time.Time{}

	for {
		select {
		case <-ctx.Done():
			qm.logEvent("queue_processor_stopped", zap.String("reason", "context_cancelled"))
			return
		case <-qm.stopChan:
			qm.logEvent("queue_processor_stopped", zap.String("reason", "stop_signal"))
			return
		case <-ticker.C:
			started, err := qm.dispatchPending(ctx)
			if err != nil {
				qm.logError("Failed to fetch pending jobs", zap.Error(err))
				continue
			}

			if started == 0 && qm.inFlightCount() == 0 {
				if emptyStartTime.IsZero() {
					emptyStartTime = time.Now()
					qm.logEvent("queue_empty")
				} else if qm.config.AutoExitOnEmpty && time.Since(emptyStartTime) > qm.config.EmptyWaitTime {
					qm.logEvent("queue_auto_exit", zap.String("reason", "empty_timeout"))
					qm.exitOnce.Do(func() { close(qm.exitChan) })
					return
				}
				continue
			}

			emptyStartTime = time.Time{}
		}
	}
}

// dispatchPending starts every queued job not already in flight
func (qm *QueueManager) dispatchPending(ctx context.Context) (int, error) {
	pending, err := qm.repo.FindPending()
	if err != nil {
		return 0, err
	}

	started := 0
	for _, job := range pending {
		qm.mu.Lock()
		if qm.inFlight[job.ID] {
			qm.mu.Unlock()
			continue
		}
		qm.inFlight[job.ID] = true
		qm.mu.Unlock()

		qm.logEvent("job_started",
			zap.String("id", job.ID),
			zap.String("url", job.URL))

		started++
		qm.workerWg.Add(1)
		go qm.runJob(ctx, job)
	}
	return started, nil
}

func (qm *QueueManager) runJob(ctx context.Context, job *domain.FetchJob) {
	defer qm.workerWg.Done()
	defer func() {
		qm.mu.Lock()
		delete(qm.inFlight, job.ID)
		qm.mu.Unlock()
	}()

	if err := qm.fetchMgr.ProcessJob(ctx, job); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			qm.logEvent("job_interrupted",
				zap.String("id", job.ID),
				zap.String("status", string(job.Status)))
			return
		}
		qm.logEvent("job_failed",
			zap.String("id", job.ID),
			zap.String("status", string(job.Status)),
			zap.Error(err))
		qm.logError("Failed to process job",
			zap.String("id", job.ID),
			zap.Error(err))
		return
	}

	qm.logEvent("job_completed",
		zap.String("id", job.ID),
		zap.String("file_path", job.FilePath))
}

func (qm *QueueManager) inFlightCount() int {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return len(qm.inFlight)
}

func (qm *QueueManager) logEvent(event string, fields ...zap.Field) {
	if qm.multiLogger != nil {
		qm.multiLogger.LogQueueEvent(event, fields...)
	}
}

func (qm *QueueManager) logError(msg string, fields ...zap.Field) {
	if qm.multiLogger != nil {
		qm.multiLogger.LogAppError(msg, fields...)
	}
}
