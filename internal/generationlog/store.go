package generationlog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Recorder persists generation outcomes.
type Recorder interface {
	Record(ctx context.Context, rec *Record) error
}

// NopRecorder drops every record.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *Record) error { return nil }

// Open connects to the generation log database. Supported drivers are
// "sqlite" and "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported generation log driver: %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	return db, nil
}

// Store handles generation record storage and retention
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("failed to migrate generation records: %w", err)
	}
	return nil
}

func (s *Store) Record(ctx context.Context, rec *Record) error {
	if rec.RequestedAt.IsZero() {
		rec.RequestedAt = time.Now()
	}
	rec.RequestedAt = rec.RequestedAt.UTC()
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to store generation record: %w", err)
	}
	s.logger.Debug("stored generation record",
		zap.String("request_id", rec.RequestID),
		zap.String("status", string(rec.Status)))
	return nil
}

// PruneBefore hard-deletes records requested before cutoff.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Unscoped().
		Where("requested_at < ?", cutoff.UTC()).
		Delete(&Record{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune generation records: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Summary counts records per status since the given time.
func (s *Store) Summary(ctx context.Context, since time.Time) (map[Status]int64, error) {
	var rows []struct {
		Status Status
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&Record{}).
		Select("status, count(*) as count").
		Where("requested_at >= ?", since.UTC()).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarise generation records: %w", err)
	}

	summary := make(map[Status]int64, len(rows))
	for _, row := range rows {
		summary[row.Status] = row.Count
	}
	return summary, nil
}

func (s *Store) ListByRoom(ctx context.Context, roomID string, limit int) ([]Record, error) {
	var records []Record

	query := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("requested_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list generation records for room %s: %w", roomID, err)
	}
	return records, nil
}
