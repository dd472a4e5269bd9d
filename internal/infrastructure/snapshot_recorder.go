package infrastructure

import (
	"go.uber.org/zap"

	"github.com/yourusername/dl-progress/internal/domain"
)

// SnapshotLookup returns the current snapshot of a download
type SnapshotLookup func(id string) (domain.DownloadRequest, bool)

// SnapshotRecorder persists snapshots and outcomes as they are published.
// It runs on the dispatch goroutine, so writes land in publish order.
type SnapshotRecorder struct {
	repo   domain.SnapshotRepository
	lookup SnapshotLookup
	logger *zap.Logger
}

// NewSnapshotRecorder creates a recorder. lookup is used to persist the
// completed snapshot after a successful outcome and may be nil.
func NewSnapshotRecorder(repo domain.SnapshotRepository, lookup SnapshotLookup, logger *zap.Logger) *SnapshotRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotRecorder{repo: repo, lookup: lookup, logger: logger}
}

// DownloadDidUpdate saves the snapshot
func (s *SnapshotRecorder) DownloadDidUpdate(progress domain.DownloadRequest) {
	if err := s.repo.SaveSnapshot(progress); err != nil {
		s.logger.Error("Failed to persist snapshot",
			zap.String("id", progress.ID),
			zap.Error(err))
	}
}

// DownloadWasCompleted saves the outcome, and the completed snapshot on success
func (s *SnapshotRecorder) DownloadWasCompleted(id string, response domain.FetcherResponse) {
	if err := s.repo.SaveCompletion(domain.NewCompletionRecord(id, response)); err != nil {
		s.logger.Error("Failed to persist completion",
			zap.String("id", id),
			zap.Error(err))
	}

	if !response.Succeeded() || s.lookup == nil {
		return
	}
	if snap, ok := s.lookup(id); ok {
		s.DownloadDidUpdate(snap)
	}
}
