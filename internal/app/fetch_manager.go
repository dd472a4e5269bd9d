package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/dl-progress/internal/domain"
)

// FetchManager runs fetch jobs and reports their progress into the registry.
// Retry policy lives here; the registry only ever sees one terminal outcome.
type FetchManager struct {
	repo      domain.FetchJobRepository
	fetcher   domain.Fetcher
	registry  *Registry
	config    *domain.FetchConfig
	logger    *zap.Logger
	semaphore chan struct{}
	mu        sync.Mutex
	cancels   map[string]context.CancelFunc
}

// NewFetchManager creates a new fetch manager
func NewFetchManager(
	repo domain.FetchJobRepository,
	fetcher domain.Fetcher,
	registry *Registry,
	config *domain.FetchConfig,
	logger *zap.Logger,
) *FetchManager {
	limit := config.ConcurrentLimit
	if limit < 1 {
		limit = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FetchManager{
		repo:      repo,
		fetcher:   fetcher,
		registry:  registry,
		config:    config,
		logger:    logger,
		semaphore: make(chan struct{}, limit),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// ProcessJob runs a single job to a terminal state
func (fm *FetchManager) ProcessJob(ctx context.Context, job *domain.FetchJob) error {
	// Registered before waiting for a slot so CancelJob reaches waiting jobs too.
	jobCtx, cancel := context.WithCancel(ctx)
	fm.mu.Lock()
	fm.cancels[job.ID] = cancel
	fm.mu.Unlock()
	defer func() {
		fm.mu.Lock()
		delete(fm.cancels, job.ID)
		fm.mu.Unlock()
		cancel()
	}()

	select {
	case fm.semaphore <- struct{}{}:
		defer func() { <-fm.semaphore }()
	case <-jobCtx.Done():
		return fm.finishCancelled(ctx, job)
	}

	if jobCtx.Err() != nil {
		return fm.finishCancelled(ctx, job)
	}

	current, err := fm.repo.FindByID(job.ID)
	if err != nil {
		return fmt.Errorf("failed to reload job: %w", err)
	}
	*job = *current
	if job.Status != domain.StatusQueued {
		fm.logger.Info("Skipping fetch no longer queued",
			zap.String("id", job.ID),
			zap.String("status", string(job.Status)))
		return nil
	}

	fm.logger.Info("Processing fetch",
		zap.String("id", job.ID),
		zap.String("url", job.URL))

	job.MarkProcessing()
	if err := fm.repo.Update(job); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if err := fm.registry.Begin(job.ID, job.Title, 0); err != nil {
		fm.logger.Debug("Progress publish failed", zap.String("id", job.ID), zap.Error(err))
	}

	report := func(written, expected int64) {
		if err := fm.registry.Progress(job.ID, written, expected); err != nil {
			fm.logger.Debug("Progress publish failed", zap.String("id", job.ID), zap.Error(err))
		}
	}

	var lastErr error
	for attempt := 0; attempt <= fm.config.MaxRetries; attempt++ {
		if attempt > 0 {
			fm.logger.Info("Retrying fetch",
				zap.String("id", job.ID),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", fm.config.MaxRetries))

			select {
			case <-time.After(fm.config.RetryDelay):
			case <-jobCtx.Done():
				return fm.finishCancelled(ctx, job)
			}

			job.IncrementRetry()
			if err := fm.repo.Update(job); err != nil {
				fm.logger.Error("Failed to update job", zap.String("id", job.ID), zap.Error(err))
			}
		}

		path, err := fm.fetcher.Fetch(jobCtx, job, report)
		if err == nil {
			job.MarkCompleted(path)
			if err := fm.repo.Update(job); err != nil {
				fm.logger.Error("Failed to update job status", zap.Error(err))
			}
			fm.logger.Info("Fetch completed",
				zap.String("id", job.ID),
				zap.String("file", path))
			fm.complete(job.ID, domain.Success(path))
			return nil
		}

		if jobCtx.Err() != nil {
			return fm.finishCancelled(ctx, job)
		}

		lastErr = err
		fm.logger.Warn("Fetch attempt failed",
			zap.String("id", job.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	job.MarkFailed(lastErr)
	if err := fm.repo.Update(job); err != nil {
		fm.logger.Error("Failed to update job status", zap.Error(err))
	}
	fm.logger.Error("Fetch failed after retries",
		zap.String("id", job.ID),
		zap.String("url", job.URL),
		zap.Error(lastErr))

	fm.complete(job.ID, domain.Failure(lastErr))
	return lastErr
}

// finishCancelled records a cancelled job. When the parent context ended
// (shutdown) the job is left as is: a processing job is requeued on the
// next start and a job still waiting for a slot stays queued.
func (fm *FetchManager) finishCancelled(parent context.Context, job *domain.FetchJob) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	job.MarkCancelled()
	if err := fm.repo.Update(job); err != nil {
		fm.logger.Error("Failed to update job status", zap.Error(err))
	}
	fm.logger.Info("Fetch cancelled", zap.String("id", job.ID))
	fm.complete(job.ID, domain.Failure(domain.ErrCancelled))
	return domain.ErrCancelled
}

func (fm *FetchManager) complete(id string, response domain.FetcherResponse) {
	if err := fm.registry.Complete(id, response); err != nil {
		fm.logger.Warn("Completion publish failed", zap.String("id", id), zap.Error(err))
	}
}

// IsActive reports whether a job is currently being fetched
func (fm *FetchManager) IsActive(id string) bool {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	_, ok := fm.cancels[id]
	return ok
}

// CancelJob cancels a queued or running job
func (fm *FetchManager) CancelJob(id string) error {
	job, err := fm.repo.FindByID(id)
	if err != nil {
		return fmt.Errorf("job not found: %w", err)
	}

	if job.IsTerminal() {
		return fmt.Errorf("%w: job already in terminal state: %s", domain.ErrInvalidState, job.Status)
	}

	fm.mu.Lock()
	cancel, running := fm.cancels[id]
	fm.mu.Unlock()
	if running {
		// ProcessJob records the cancellation once the fetch, or its wait
		// for a slot, returns.
		cancel()
		fm.logger.Info("Fetch cancellation requested", zap.String("id", id))
		return nil
	}

	job.MarkCancelled()
	if err := fm.repo.Update(job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if err := fm.registry.Complete(id, domain.Failure(domain.ErrCancelled)); err != nil && !errors.Is(err, domain.ErrAlreadyCompleted) {
		fm.logger.Warn("Completion publish failed", zap.String("id", id), zap.Error(err))
	}

	fm.logger.Info("Fetch cancelled", zap.String("id", id))
	return nil
}

// RetryJob requeues a failed or cancelled job
func (fm *FetchManager) RetryJob(id string) error {
	job, err := fm.repo.FindByID(id)
	if err != nil {
		return fmt.Errorf("job not found: %w", err)
	}

	switch job.Status {
	case domain.StatusQueued:
		return fmt.Errorf("%w: job already queued", domain.ErrInvalidState)
	case domain.StatusProcessing:
		return fmt.Errorf("%w: job currently processing", domain.ErrInvalidState)
	case domain.StatusCompleted:
		return fmt.Errorf("%w: job already completed", domain.ErrInvalidState)
	}

	job.Requeue()
	if err := fm.repo.Update(job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	fm.logger.Info("Fetch queued for retry", zap.String("id", id))
	return nil
}
