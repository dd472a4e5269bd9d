package app

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/dl-progress/internal/domain"
)

// Registry ties the progress store to the notifier. It is handed explicitly
// to the fetch engine (writer side) and to the API (reader side).
type Registry struct {
	store    *ProgressStore
	notifier *Notifier
	logger   *zap.Logger

	mu        sync.RWMutex
	outcomes  map[string]domain.FetcherResponse
	completed map[string]bool // terminal event already published for the current attempt
}

// NewRegistry creates a new registry
func NewRegistry(store *ProgressStore, notifier *Notifier, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:     store,
		notifier:  notifier,
		logger:    logger,
		outcomes:  make(map[string]domain.FetcherResponse),
		completed: make(map[string]bool),
	}
}

// Begin records a not-started snapshot for a new attempt and publishes it
func (r *Registry) Begin(id, title string, expected int64) error {
	r.mu.Lock()
	delete(r.completed, id)
	r.mu.Unlock()

	return r.Report(domain.NewDownloadRequest(id, title, expected))
}

// Progress applies a progress tick to the stored snapshot and publishes it.
// A download without a snapshot is started implicitly. A negative expected
// length keeps the previously known one.
func (r *Registry) Progress(id string, written, expected int64) error {
	current, ok := r.store.Get(id)
	if !ok {
		current = domain.NewDownloadRequest(id, "", 0)
	}
	return r.Report(current.Advance(written, expected))
}

// Report stores a snapshot and publishes it to observers. Once the current
// attempt has completed, further snapshots are rejected until Begin.
func (r *Registry) Report(req domain.DownloadRequest) error {
	// Held through publish so a concurrent Complete is queued after this tick.
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.completed[req.ID] {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyCompleted, req.ID)
	}

	if err := r.store.Update(req.ID, req); err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return r.notifier.PublishProgress(req)
}

// Complete publishes the terminal outcome of a download once per attempt.
// On success the stored snapshot is marked complete; on failure the last
// progress snapshot is kept as is.
func (r *Registry) Complete(id string, response domain.FetcherResponse) error {
	r.mu.Lock()
	if r.completed[id] {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrAlreadyCompleted, id)
	}
	r.completed[id] = true
	r.outcomes[id] = response
	r.mu.Unlock()

	if response.Succeeded() {
		if _, _, err := r.store.Apply(id, domain.DownloadRequest.Completed); err != nil {
			r.logger.Warn("Failed to mark snapshot complete", zap.String("id", id), zap.Error(err))
		}
		r.logger.Info("Download completed", zap.String("id", id), zap.String("path", response.Path))
	} else {
		r.logger.Warn("Download failed", zap.String("id", id), zap.String("error", response.ErrorMessage()))
	}

	return r.notifier.PublishCompletion(id, response)
}

// Remove drops the snapshot and outcome of a download
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, hadOutcome := r.outcomes[id]
	delete(r.outcomes, id)
	delete(r.completed, id)
	r.mu.Unlock()

	return r.store.Remove(id) || hadOutcome
}

// Get returns the latest snapshot for id
func (r *Registry) Get(id string) (domain.DownloadRequest, bool) {
	return r.store.Get(id)
}

// List returns all snapshots ordered by id
func (r *Registry) List() []domain.DownloadRequest {
	return r.store.List()
}

// Outcome returns the terminal outcome recorded for id, if any
func (r *Registry) Outcome(id string) (domain.FetcherResponse, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resp, ok := r.outcomes[id]
	return resp, ok
}

// Restore loads persisted snapshots and outcomes without publishing them
func (r *Registry) Restore(snapshots []domain.DownloadRequest, completions []*domain.CompletionRecord) int {
	loaded := r.store.Restore(snapshots)

	r.mu.Lock()
	for _, rec := range completions {
		r.outcomes[rec.ID] = rec.Response()
		r.completed[rec.ID] = true
	}
	r.mu.Unlock()

	return loaded
}

// Subscribe registers an observer for live updates
func (r *Registry) Subscribe(observer domain.Observer) *Subscription {
	return r.notifier.Subscribe(observer)
}

// Notifier exposes the underlying notifier, e.g. for weak subscriptions
func (r *Registry) Notifier() *Notifier {
	return r.notifier
}
