package infrastructure

import (
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/dl-progress/internal/domain"
)

// RegistryEventSink receives structured registry events, e.g. a MultiLogger
type RegistryEventSink interface {
	LogRegistryEvent(event string, fields ...zap.Field)
}

// EventLogger writes start and terminal events of each download to the
// registry log. Intermediate ticks are not logged.
type EventLogger struct {
	sink    RegistryEventSink
	mu      sync.Mutex
	started map[string]bool
}

// NewEventLogger creates a new event logger
func NewEventLogger(sink RegistryEventSink) *EventLogger {
	return &EventLogger{sink: sink, started: make(map[string]bool)}
}

// DownloadDidUpdate logs the first snapshot of each attempt
func (l *EventLogger) DownloadDidUpdate(progress domain.DownloadRequest) {
	l.mu.Lock()
	first := !l.started[progress.ID] || progress.State == domain.ProgressNotStarted
	l.started[progress.ID] = true
	l.mu.Unlock()

	if !first {
		return
	}
	l.sink.LogRegistryEvent("download_started",
		zap.String("id", progress.ID),
		zap.String("title", progress.Title),
		zap.Int64("expected_bytes", progress.ExpectedContentLength))
}

// DownloadWasCompleted logs the outcome
func (l *EventLogger) DownloadWasCompleted(id string, response domain.FetcherResponse) {
	l.mu.Lock()
	delete(l.started, id)
	l.mu.Unlock()

	if response.Succeeded() {
		l.sink.LogRegistryEvent("download_completed",
			zap.String("id", id),
			zap.String("path", response.Path))
		return
	}
	l.sink.LogRegistryEvent("download_failed",
		zap.String("id", id),
		zap.String("error", response.ErrorMessage()))
}
