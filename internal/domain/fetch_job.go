package domain

import (
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
)

// FetchStatus represents the current status of a fetch job
type FetchStatus string

const (
	StatusQueued     FetchStatus = "queued"
	StatusProcessing FetchStatus = "processing"
	StatusCompleted  FetchStatus = "completed"
	StatusFailed     FetchStatus = "failed"
	StatusCancelled  FetchStatus = "cancelled"
)

// FetchJob is a unit of work for the fetch engine. Its ID doubles as the
// download identifier under which progress is reported.
type FetchJob struct {
	ID           string      `json:"id" gorm:"primaryKey"`
	URL          string      `json:"url" gorm:"not null"`
	Title        string      `json:"title,omitempty"`
	Destination  string      `json:"destination,omitempty"`
	Status       FetchStatus `json:"status" gorm:"not null;index"`
	Priority     int         `json:"priority" gorm:"default:0;index"`
	RetryCount   int         `json:"retry_count" gorm:"default:0"`
	ErrorMessage string      `json:"error_message,omitempty"`
	FilePath     string      `json:"file_path,omitempty"`
	CreatedAt    time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (FetchJob) TableName() string {
	return "fetch_jobs"
}

// NewFetchJob creates a new queued fetch job. An empty title falls back to
// the last path element of the URL.
func NewFetchJob(rawURL, destination, title string) *FetchJob {
	if title == "" {
		title = TitleFromURL(rawURL)
	}
	now := time.Now()
	return &FetchJob{
		ID:          uuid.New().String(),
		URL:         rawURL,
		Title:       title,
		Destination: destination,
		Status:      StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkProcessing marks the job as processing
func (j *FetchJob) MarkProcessing() {
	j.Status = StatusProcessing
	now := time.Now()
	j.StartedAt = &now
	j.UpdatedAt = now
}

// MarkCompleted marks the job as completed
func (j *FetchJob) MarkCompleted(filePath string) {
	j.Status = StatusCompleted
	j.FilePath = filePath
	j.ErrorMessage = ""
	now := time.Now()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkFailed marks the job as failed
func (j *FetchJob) MarkFailed(err error) {
	j.Status = StatusFailed
	j.ErrorMessage = err.Error()
	j.UpdatedAt = time.Now()
}

// MarkCancelled marks the job as cancelled
func (j *FetchJob) MarkCancelled() {
	j.Status = StatusCancelled
	j.UpdatedAt = time.Now()
}

// Requeue resets a finished job so the queue picks it up again
func (j *FetchJob) Requeue() {
	j.Status = StatusQueued
	j.RetryCount = 0
	j.ErrorMessage = ""
	j.StartedAt = nil
	j.CompletedAt = nil
	j.UpdatedAt = time.Now()
}

// IncrementRetry increments the retry count
func (j *FetchJob) IncrementRetry() {
	j.RetryCount++
	j.UpdatedAt = time.Now()
}

// CanRetry checks if the job can be retried
func (j *FetchJob) CanRetry(maxRetries int) bool {
	return j.RetryCount < maxRetries && j.Status == StatusFailed
}

// IsTerminal checks if the job is in a terminal state
func (j *FetchJob) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed || j.Status == StatusCancelled
}

// IsPending checks if the job is waiting in the queue
func (j *FetchJob) IsPending() bool {
	return j.Status == StatusQueued
}

// IsProcessing checks if the job is currently processing
func (j *FetchJob) IsProcessing() bool {
	return j.Status == StatusProcessing
}

// ValidateURL checks that a fetch URL is absolute http(s)
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: no host in %s", ErrInvalidURL, rawURL)
	}
	return nil
}

// TitleFromURL derives a display name from the URL path
func TitleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		if err == nil && u.Host != "" {
			return u.Host
		}
		return rawURL
	}
	return path.Base(u.Path)
}

// FetchStats represents fetch job statistics
type FetchStats struct {
	Total      int64 `json:"total"`
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
}
