package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// Outcome tags the terminal result of a download
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// FetcherResponse is the terminal outcome of a download: success(path) or failed(error)
type FetcherResponse struct {
	Outcome Outcome
	Path    string
	Err     error
}

// Success creates a successful response pointing at the written file
func Success(path string) FetcherResponse {
	return FetcherResponse{Outcome: OutcomeSuccess, Path: path}
}

// Failure creates a failed response
func Failure(err error) FetcherResponse {
	if err == nil {
		err = ErrUnknownFailure
	}
	return FetcherResponse{Outcome: OutcomeFailed, Err: err}
}

// Succeeded reports whether the download finished successfully
func (r FetcherResponse) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// ErrorMessage returns the failure message, or "" on success
func (r FetcherResponse) ErrorMessage() string {
	if r.Succeeded() || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

type fetcherResponseJSON struct {
	Outcome Outcome `json:"outcome"`
	Path    string  `json:"path,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// MarshalJSON encodes the variant with its tag
func (r FetcherResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(fetcherResponseJSON{
		Outcome: r.Outcome,
		Path:    r.Path,
		Error:   r.ErrorMessage(),
	})
}

// UnmarshalJSON decodes a tagged variant; the error text is kept as a plain error
func (r *FetcherResponse) UnmarshalJSON(data []byte) error {
	var raw fetcherResponseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Outcome {
	case OutcomeSuccess:
		*r = Success(raw.Path)
	case OutcomeFailed:
		if raw.Error == "" {
			*r = Failure(nil)
		} else {
			*r = Failure(errors.New(raw.Error))
		}
	default:
		return errors.New("unknown outcome: " + string(raw.Outcome))
	}
	return nil
}

// CompletionRecord persists the last terminal outcome of a download
type CompletionRecord struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	Outcome     Outcome   `json:"outcome" gorm:"not null;index"`
	Path        string    `json:"path,omitempty"`
	Error       string    `json:"error,omitempty" gorm:"type:text"`
	CompletedAt time.Time `json:"completed_at"`
}

// TableName specifies the table name for GORM
func (CompletionRecord) TableName() string {
	return "completions"
}

// NewCompletionRecord converts a response into its persisted form
func NewCompletionRecord(id string, resp FetcherResponse) *CompletionRecord {
	return &CompletionRecord{
		ID:          id,
		Outcome:     resp.Outcome,
		Path:        resp.Path,
		Error:       resp.ErrorMessage(),
		CompletedAt: time.Now(),
	}
}

// Response rebuilds the response carried by the record
func (c *CompletionRecord) Response() FetcherResponse {
	if c.Outcome == OutcomeSuccess {
		return Success(c.Path)
	}
	if c.Error == "" {
		return Failure(nil)
	}
	return Failure(errors.New(c.Error))
}
