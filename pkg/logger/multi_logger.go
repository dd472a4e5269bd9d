package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryQueue    LogCategory = "queue"    // Fetch queue lifecycle events (JSON)
	CategoryRegistry LogCategory = "registry" // Progress and completion events (JSON)
	CategoryError    LogCategory = "error"    // Application errors (JSON)
)

// Categories lists every category in display order
func Categories() []LogCategory {
	return []LogCategory{CategoryQueue, CategoryRegistry, CategoryError}
}

// ValidCategory reports whether c is a known category
func ValidCategory(c LogCategory) bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

type categoryLogger struct {
	logger *zap.Logger
	file   *os.File
}

// MultiLogger provides categorized logging with one JSON file per category
// and day. Files roll over on the first write after midnight.
type MultiLogger struct {
	loggers     map[LogCategory]*categoryLogger
	config      MultiLoggerConfig
	level       zapcore.Level
	mu          sync.RWMutex
	currentDate string
	now         func() time.Time
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string // Directory for log files
}

// NewMultiLogger creates a new multi-output logger
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	return newMultiLogger(config, time.Now)
}

func newMultiLogger(config MultiLoggerConfig, now func() time.Time) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}

	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	ml := &MultiLogger{
		loggers: make(map[LogCategory]*categoryLogger),
		config:  config,
		level:   level,
		now:     now,
	}

	if err := ml.open(ml.now().Format("20060102")); err != nil {
		return nil, err
	}
	return ml, nil
}

// open creates the per-category loggers for date. Caller holds mu or owns ml.
func (ml *MultiLogger) open(date string) error {
	opened := make(map[LogCategory]*categoryLogger, len(Categories()))
	for _, category := range Categories() {
		level := ml.level
		if category == CategoryError {
			level = zapcore.ErrorLevel
		}
		cl, err := ml.createStructuredLogger(category, date, level)
		if err != nil {
			for _, prev := range opened {
				prev.file.Close()
			}
			return fmt.Errorf("failed to create %s logger: %w", category, err)
		}
		opened[category] = cl
	}

	for _, old := range ml.loggers {
		old.logger.Sync()
		old.file.Close()
	}
	ml.loggers = opened
	ml.currentDate = date
	return nil
}

// createStructuredLogger creates a JSON-formatted logger for a category
func (ml *MultiLogger) createStructuredLogger(category LogCategory, date string, level zapcore.Level) (*categoryLogger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"
	encoderConfig.LevelKey = "level"
	encoderConfig.CallerKey = ""

	encoder := zapcore.NewJSONEncoder(encoderConfig)

	file, err := os.OpenFile(categoryLogPath(ml.config.LogsDir, category, date), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(file), level)
	return &categoryLogger{logger: zap.New(core), file: file}, nil
}

func categoryLogPath(dir string, category LogCategory, date string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.log", category, date))
}

// rotate reopens the files when the date changed since the last write
func (ml *MultiLogger) rotate() {
	date := ml.now().Format("20060102")

	ml.mu.RLock()
	current := ml.currentDate
	ml.mu.RUnlock()
	if date == current {
		return
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()
	if date == ml.currentDate {
		return
	}
	if err := ml.open(date); err != nil {
		// Keep writing to the previous day's files.
		if cl, ok := ml.loggers[CategoryError]; ok {
			cl.logger.Error("Log rotation failed", zap.Error(err))
		}
	}
}

// GetLogsDir returns the logs directory path
func (ml *MultiLogger) GetLogsDir() string {
	return ml.config.LogsDir
}

// GetLogger returns the structured logger for a specific category
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	ml.rotate()

	ml.mu.RLock()
	defer ml.mu.RUnlock()

	if cl, ok := ml.loggers[category]; ok {
		return cl.logger
	}
	return ml.loggers[CategoryError].logger
}

// Queue returns the queue logger (JSON format)
func (ml *MultiLogger) Queue() *zap.Logger {
	return ml.GetLogger(CategoryQueue)
}

// Registry returns the registry logger (JSON format)
func (ml *MultiLogger) Registry() *zap.Logger {
	return ml.GetLogger(CategoryRegistry)
}

// Error returns the error logger (JSON format)
func (ml *MultiLogger) Error() *zap.Logger {
	return ml.GetLogger(CategoryError)
}

// LogAppError logs an application-level error (Go errors, panics)
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.Error().Error(msg, fields...)
}

// LogQueueEvent logs a queue lifecycle event with structured data
func (ml *MultiLogger) LogQueueEvent(event string, fields ...zap.Field) {
	ml.Queue().Info(event, fields...)
}

// LogRegistryEvent logs a progress or completion event with structured data
func (ml *MultiLogger) LogRegistryEvent(event string, fields ...zap.Field) {
	ml.Registry().Info(event, fields...)
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	var lastErr error
	for _, cl := range ml.loggers {
		if err := cl.logger.Sync(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close flushes and closes all log files
func (ml *MultiLogger) Close() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var lastErr error
	for _, cl := range ml.loggers {
		if err := cl.logger.Sync(); err != nil {
			lastErr = err
		}
		if err := cl.file.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
