package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDownloadRequest(t *testing.T) {
	req := NewDownloadRequest("a", "Episode 1", 100)

	assert.Equal(t, "a", req.ID)
	assert.Equal(t, "Episode 1", req.Title)
	assert.Equal(t, int64(0), req.WrittenBytes)
	assert.Equal(t, int64(100), req.ExpectedContentLength)
	assert.Equal(t, ProgressNotStarted, req.State)
	assert.False(t, req.UpdatedAt.IsZero())

	negative := NewDownloadRequest("b", "", -1)
	assert.Equal(t, int64(0), negative.ExpectedContentLength)
}

func TestDownloadRequest_Advance(t *testing.T) {
	req := NewDownloadRequest("a", "", 100)

	next := req.Advance(50, -1)

	assert.Equal(t, ProgressNotStarted, req.State, "original value is untouched")
	assert.Equal(t, ProgressInProgress, next.State)
	assert.Equal(t, int64(50), next.WrittenBytes)
	assert.Equal(t, int64(100), next.ExpectedContentLength)

	resized := next.Advance(60, 200)
	assert.Equal(t, int64(200), resized.ExpectedContentLength)
}

func TestDownloadRequest_Completed(t *testing.T) {
	known := NewDownloadRequest("a", "", 100).Advance(40, -1).Completed()
	assert.Equal(t, ProgressComplete, known.State)
	assert.Equal(t, int64(100), known.WrittenBytes)

	unknown := NewDownloadRequest("b", "", 0).Advance(70, -1).Completed()
	assert.Equal(t, int64(70), unknown.WrittenBytes)
	assert.Equal(t, int64(70), unknown.ExpectedContentLength)
	require.NoError(t, unknown.Validate())
}

func TestDownloadRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     DownloadRequest
		wantErr bool
	}{
		{"valid", DownloadRequest{ID: "a", WrittenBytes: 50, ExpectedContentLength: 100, State: ProgressInProgress}, false},
		{"unknown length", DownloadRequest{ID: "a", WrittenBytes: 5000, State: ProgressInProgress}, false},
		{"empty id", DownloadRequest{State: ProgressNotStarted}, true},
		{"negative written", DownloadRequest{ID: "a", WrittenBytes: -1, State: ProgressInProgress}, true},
		{"negative expected", DownloadRequest{ID: "a", ExpectedContentLength: -1, State: ProgressInProgress}, true},
		{"overrun", DownloadRequest{ID: "a", WrittenBytes: 101, ExpectedContentLength: 100, State: ProgressInProgress}, true},
		{"bad state", DownloadRequest{ID: "a", State: "paused"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSnapshot)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDownloadRequest_ProgressAndLabel(t *testing.T) {
	notStarted := NewDownloadRequest("a", "", 100)
	fraction, known := notStarted.Progress()
	assert.False(t, known)
	assert.Zero(t, fraction)
	assert.Equal(t, "Not started", notStarted.Label())

	half := notStarted.Advance(50, -1)
	fraction, known = half.Progress()
	assert.True(t, known)
	assert.InDelta(t, 0.5, fraction, 1e-9)
	assert.Equal(t, "50.0%", half.Label())

	assert.Equal(t, "42.3%", notStarted.Advance(4237, 10000).Label())
	assert.Equal(t, "0.0%", notStarted.Advance(0, -1).Label())

	unknown := NewDownloadRequest("b", "", 0).Advance(1024, -1)
	_, known = unknown.Progress()
	assert.False(t, known)
	assert.Equal(t, "In progress", unknown.Label())

	done := half.Completed()
	fraction, known = done.Progress()
	assert.True(t, known)
	assert.Equal(t, 1.0, fraction)
	assert.Equal(t, "100.0%", done.Label())
}

func TestDownloadRequest_MarshalJSON(t *testing.T) {
	req := NewDownloadRequest("a", "Episode 1", 100).Advance(25, -1)

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "a", decoded["id"])
	assert.Equal(t, "in_progress", decoded["state"])
	assert.Equal(t, 0.25, decoded["progress"])
	assert.Equal(t, "25.0%", decoded["label"])

	data, err = json.Marshal(NewDownloadRequest("b", "", 0))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["progress"])
	assert.Equal(t, "Not started", decoded["label"])
}

func TestFetcherResponse(t *testing.T) {
	ok := Success("/downloads/a.mkv")
	assert.True(t, ok.Succeeded())
	assert.Empty(t, ok.ErrorMessage())

	failed := Failure(errors.New("timeout"))
	assert.False(t, failed.Succeeded())
	assert.Equal(t, "timeout", failed.ErrorMessage())

	unknown := Failure(nil)
	assert.ErrorIs(t, unknown.Err, ErrUnknownFailure)
}

func TestFetcherResponse_JSON(t *testing.T) {
	data, err := json.Marshal(Failure(errors.New("timeout")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"outcome":"failed","error":"timeout"}`, string(data))

	var decoded FetcherResponse
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, OutcomeFailed, decoded.Outcome)
	assert.Equal(t, "timeout", decoded.ErrorMessage())

	data, err = json.Marshal(Success("/downloads/a.mkv"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"outcome":"success","path":"/downloads/a.mkv"}`, string(data))

	assert.Error(t, json.Unmarshal([]byte(`{"outcome":"paused"}`), &decoded))
}

func TestCompletionRecord_Response(t *testing.T) {
	record := NewCompletionRecord("a", Failure(errors.New("disk full")))
	assert.Equal(t, OutcomeFailed, record.Outcome)
	assert.Equal(t, "disk full", record.Error)
	assert.Equal(t, "disk full", record.Response().ErrorMessage())

	record = NewCompletionRecord("b", Success("/x"))
	assert.True(t, record.Response().Succeeded())
	assert.Equal(t, "/x", record.Response().Path)
}
