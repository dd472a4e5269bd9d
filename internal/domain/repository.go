package domain

// FetchJobRepository defines the interface for fetch job persistence
type FetchJobRepository interface {
	// Create creates a new job
	Create(job *FetchJob) error

	// Update updates an existing job
	Update(job *FetchJob) error

	// Delete deletes a job by ID
	Delete(id string) error

	// FindByID finds a job by ID, returning ErrNotFound when missing
	FindByID(id string) (*FetchJob, error)

	// FindPending finds all queued jobs ordered by priority and creation time
	FindPending() ([]*FetchJob, error)

	// FindAll finds all jobs with optional column filters
	FindAll(filters map[string]interface{}) ([]*FetchJob, error)

	// ResetOrphanedProcessing requeues jobs left processing by a previous run
	ResetOrphanedProcessing() (int64, error)

	// GetStats returns job statistics
	GetStats() (*FetchStats, error)
}

// SnapshotRepository persists progress snapshots and terminal outcomes
type SnapshotRepository interface {
	SaveSnapshot(snapshot DownloadRequest) error
	DeleteSnapshot(id string) error
	ListSnapshots() ([]DownloadRequest, error)
	SaveCompletion(record *CompletionRecord) error
	FindCompletion(id string) (*CompletionRecord, error)
	ListCompletions() ([]*CompletionRecord, error)
}
