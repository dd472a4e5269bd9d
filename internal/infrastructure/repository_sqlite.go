package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/yourusername/dl-progress/internal/domain"
)

// allowedFilters are the columns FindAll accepts as filter keys
var allowedFilters = map[string]bool{
	"status":      true,
	"destination": true,
	"priority":    true,
}

// SQLiteRepository implements FetchJobRepository and SnapshotRepository using SQLite
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository opens (and migrates) the database at dbPath
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.FetchJob{}, &domain.DownloadRequest{}, &domain.CompletionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Create creates a new job
func (r *SQLiteRepository) Create(job *domain.FetchJob) error {
	return r.db.Create(job).Error
}

// Update updates an existing job
func (r *SQLiteRepository) Update(job *domain.FetchJob) error {
	return r.db.Save(job).Error
}

// Delete deletes a job by ID
func (r *SQLiteRepository) Delete(id string) error {
	return r.db.Delete(&domain.FetchJob{}, "id = ?", id).Error
}

// FindByID finds a job by ID
func (r *SQLiteRepository) FindByID(id string) (*domain.FetchJob, error) {
	var job domain.FetchJob
	if err := r.db.First(&job, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

// FindPending finds all queued jobs ordered by priority and creation time
func (r *SQLiteRepository) FindPending() ([]*domain.FetchJob, error) {
	var jobs []*domain.FetchJob
	err := r.db.Where("status = ?", domain.StatusQueued).
		Order("priority DESC, created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// FindAll finds all jobs with optional filters
func (r *SQLiteRepository) FindAll(filters map[string]interface{}) ([]*domain.FetchJob, error) {
	var jobs []*domain.FetchJob
	query := r.db

	for key, value := range filters {
		if !allowedFilters[key] {
			return nil, fmt.Errorf("unsupported filter: %s", key)
		}
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}

	err := query.Order("created_at DESC").Find(&jobs).Error
	return jobs, err
}

// ResetOrphanedProcessing requeues jobs a previous process left running
func (r *SQLiteRepository) ResetOrphanedProcessing() (int64, error) {
	result := r.db.Model(&domain.FetchJob{}).
		Where("status = ?", domain.StatusProcessing).
		Updates(map[string]interface{}{
			"status":     domain.StatusQueued,
			"started_at": nil,
		})
	return result.RowsAffected, result.Error
}

// GetStats returns job statistics
func (r *SQLiteRepository) GetStats() (*domain.FetchStats, error) {
	stats := &domain.FetchStats{}

	if err := r.db.Model(&domain.FetchJob{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	statusCounts := []struct {
		Status domain.FetchStatus
		Count  int64
	}{}

	if err := r.db.Model(&domain.FetchJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		switch sc.Status {
		case domain.StatusQueued:
			stats.Queued = sc.Count
		case domain.StatusProcessing:
			stats.Processing = sc.Count
		case domain.StatusCompleted:
			stats.Completed = sc.Count
		case domain.StatusFailed:
			stats.Failed = sc.Count
		case domain.StatusCancelled:
			stats.Cancelled = sc.Count
		}
	}

	return stats, nil
}

// SaveSnapshot upserts the latest snapshot for a download
func (r *SQLiteRepository) SaveSnapshot(snapshot domain.DownloadRequest) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "written_bytes", "expected_content_length", "state", "updated_at"}),
	}).Create(&snapshot).Error
}

// DeleteSnapshot removes the snapshot and completion of a download
func (r *SQLiteRepository) DeleteSnapshot(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.DownloadRequest{}, "id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.CompletionRecord{}, "id = ?", id).Error
	})
}

// ListSnapshots returns all persisted snapshots
func (r *SQLiteRepository) ListSnapshots() ([]domain.DownloadRequest, error) {
	var snapshots []domain.DownloadRequest
	err := r.db.Order("id ASC").Find(&snapshots).Error
	return snapshots, err
}

// SaveCompletion upserts the last outcome of a download
func (r *SQLiteRepository) SaveCompletion(record *domain.CompletionRecord) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"outcome", "path", "error", "completed_at"}),
	}).Create(record).Error
}

// FindCompletion finds the outcome of a download
func (r *SQLiteRepository) FindCompletion(id string) (*domain.CompletionRecord, error) {
	var record domain.CompletionRecord
	if err := r.db.First(&record, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &record, nil
}

// ListCompletions returns all persisted outcomes
func (r *SQLiteRepository) ListCompletions() ([]*domain.CompletionRecord, error) {
	var records []*domain.CompletionRecord
	err := r.db.Order("completed_at ASC").Find(&records).Error
	return records, err
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
