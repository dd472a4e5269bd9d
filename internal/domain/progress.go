package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProgressState tells a download that has not reported bytes yet apart from one in flight
type ProgressState string

const (
	ProgressNotStarted ProgressState = "not_started"
	ProgressInProgress ProgressState = "in_progress"
	ProgressComplete   ProgressState = "complete"
)

// Valid reports whether s is one of the known states
func (s ProgressState) Valid() bool {
	return s == ProgressNotStarted || s == ProgressInProgress || s == ProgressComplete
}

// IsActive returns true while bytes are still expected to arrive
func (s ProgressState) IsActive() bool {
	return s == ProgressNotStarted || s == ProgressInProgress
}

// DownloadRequest is the progress snapshot of a single download.
// It is a value: every tick produces a new copy which replaces the stored one.
type DownloadRequest struct {
	ID                    string        `json:"id" gorm:"primaryKey"`
	Title                 string        `json:"title,omitempty"`
	WrittenBytes          int64         `json:"written_bytes"`
	ExpectedContentLength int64         `json:"expected_content_length"` // 0 when unknown
	State                 ProgressState `json:"state" gorm:"not null;index"`
	UpdatedAt             time.Time     `json:"updated_at" gorm:"autoUpdateTime:false"`
}

// TableName specifies the table name for GORM
func (DownloadRequest) TableName() string {
	return "progress_snapshots"
}

// NewDownloadRequest creates a snapshot for a download that has not started yet
func NewDownloadRequest(id, title string, expectedContentLength int64) DownloadRequest {
	if expectedContentLength < 0 {
		expectedContentLength = 0
	}
	return DownloadRequest{
		ID:                    id,
		Title:                 title,
		ExpectedContentLength: expectedContentLength,
		State:                 ProgressNotStarted,
		UpdatedAt:             time.Now(),
	}
}

// Advance returns a copy reflecting a progress tick.
// A negative expected length keeps the previously known length.
func (r DownloadRequest) Advance(written, expected int64) DownloadRequest {
	if expected >= 0 {
		r.ExpectedContentLength = expected
	}
	r.WrittenBytes = written
	r.State = ProgressInProgress
	r.UpdatedAt = time.Now()
	return r
}

// Completed returns a copy marked as complete
func (r DownloadRequest) Completed() DownloadRequest {
	if r.ExpectedContentLength > 0 && r.WrittenBytes < r.ExpectedContentLength {
		r.WrittenBytes = r.ExpectedContentLength
	}
	if r.ExpectedContentLength == 0 {
		r.ExpectedContentLength = r.WrittenBytes
	}
	r.State = ProgressComplete
	r.UpdatedAt = time.Now()
	return r
}

// Validate checks the snapshot invariants
func (r DownloadRequest) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidSnapshot)
	}
	if r.WrittenBytes < 0 {
		return fmt.Errorf("%w: negative written bytes %d", ErrInvalidSnapshot, r.WrittenBytes)
	}
	if r.ExpectedContentLength < 0 {
		return fmt.Errorf("%w: negative expected length %d", ErrInvalidSnapshot, r.ExpectedContentLength)
	}
	if r.ExpectedContentLength > 0 && r.WrittenBytes > r.ExpectedContentLength {
		return fmt.Errorf("%w: written %d exceeds expected %d", ErrInvalidSnapshot, r.WrittenBytes, r.ExpectedContentLength)
	}
	if !r.State.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidSnapshot, r.State)
	}
	return nil
}

// Progress returns the completed fraction in [0,1].
// known is false when the download has not started or its length is unknown.
func (r DownloadRequest) Progress() (fraction float64, known bool) {
	switch r.State {
	case ProgressComplete:
		return 1, true
	case ProgressInProgress:
		if r.ExpectedContentLength <= 0 {
			return 0, false
		}
		return float64(r.WrittenBytes) / float64(r.ExpectedContentLength), true
	default:
		return 0, false
	}
}

// Label renders the progress the way list rows show it, truncated to one decimal
func (r DownloadRequest) Label() string {
	switch r.State {
	case ProgressComplete:
		return "100.0%"
	case ProgressInProgress:
		if r.ExpectedContentLength <= 0 {
			return "In progress"
		}
		permille := r.WrittenBytes * 1000 / r.ExpectedContentLength
		return fmt.Sprintf("%d.%d%%", permille/10, permille%10)
	default:
		return "Not started"
	}
}

// MarshalJSON adds the derived progress and label fields
func (r DownloadRequest) MarshalJSON() ([]byte, error) {
	type snapshot DownloadRequest
	var progress *float64
	if fraction, ok := r.Progress(); ok {
		progress = &fraction
	}
	return json.Marshal(struct {
		snapshot
		Progress *float64 `json:"progress"`
		Label    string   `json:"label"`
	}{
		snapshot: snapshot(r),
		Progress: progress,
		Label:    r.Label(),
	})
}
