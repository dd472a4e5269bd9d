package domain

import "context"

// ProgressFunc receives byte counts while a fetch runs. expected is 0 when unknown.
type ProgressFunc func(written, expected int64)

// Fetcher performs the actual byte transfer for a job
type Fetcher interface {
	// Fetch downloads job.URL and returns the path of the written file
	Fetch(ctx context.Context, job *FetchJob, progress ProgressFunc) (string, error)
}

// SpaceChecker reports free space for the filesystem holding dir
type SpaceChecker interface {
	FreeBytes(dir string) (uint64, error)
}
