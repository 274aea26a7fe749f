package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"speechbridge-server-go/internal/domain/cache"
	"speechbridge-server-go/internal/domain/pipeline"
	"speechbridge-server-go/internal/platform/config"
	plerrors "speechbridge-server-go/internal/platform/errors"
	"speechbridge-server-go/internal/platform/logging"
)

// PipelineRun is one persisted pipeline record. Stage payloads are stored
// as JSON; synthesized audio is not persisted.
type PipelineRun struct {
	ID              string         `gorm:"primaryKey;type:varchar(36)" json:"pipeline_id"`
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`
	SourceLanguage  string         `json:"source_language,omitempty"`
	TargetLanguage  string         `json:"target_language,omitempty"`
	Status          string         `gorm:"index" json:"status"`
	FailedStage     string         `json:"failed_stage,omitempty"`
	ErrorKind       string         `json:"error_kind,omitempty"`
	ErrorCode       string         `json:"error_code,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	CacheHits       int            `json:"cache_hits"`
	TotalDurationMS float64        `json:"total_duration_ms"`
	Stages          datatypes.JSON `json:"stages"`
}

func (PipelineRun) TableName() string {
	return "pipeline_runs"
}

// History persists finished pipeline records to sqlite. It implements
// pipeline.HistoryWriter.
type History struct {
	db     *gorm.DB
	keep   int
	logger *logging.Logger
}

func NewHistory(cfg config.HistoryConfig, log *logging.Logger) (*History, error) {
	const op = "storage.NewHistory"

	dsn := cfg.DSN
	if dsn == "" {
		dsn = filepath.Join("data", "speechbridge.db")
	}
	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, plerrors.Wrap(plerrors.KindStorage, op, "create data directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, plerrors.Wrap(plerrors.KindStorage, op, "open database", err)
	}
	if err := db.AutoMigrate(&PipelineRun{}); err != nil {
		return nil, plerrors.Wrap(plerrors.KindStorage, op, "migrate schema", err)
	}

	return &History{
		db:     db,
		keep:   cfg.Keep,
		logger: log,
	}, nil
}

// Save writes one record and trims the table to the retention limit.
func (h *History) Save(ctx context.Context, record *pipeline.Record) error {
	const op = "storage.History.Save"

	stages, err := cache.Marshal(record.Stages)
	if err != nil {
		return plerrors.Wrap(plerrors.KindStorage, op, "encode stages", err)
	}

	row := PipelineRun{
		ID:              record.ID,
		CreatedAt:       record.CreatedAt,
		SourceLanguage:  record.SourceLanguage,
		TargetLanguage:  record.TargetLanguage,
		Status:          record.Status,
		FailedStage:     string(record.FailedStage),
		CacheHits:       record.CacheHits,
		TotalDurationMS: record.TotalDurationMS,
		Stages:          datatypes.JSON(stages),
	}
	if record.Error != nil {
		row.ErrorKind = record.Error.Kind
		row.ErrorCode = record.Error.Code
		row.ErrorMessage = record.Error.Message
	}

	if err := h.db.WithContext(ctx).Create(&row).Error; err != nil {
		return plerrors.Wrap(plerrors.KindStorage, op, "insert record", err)
	}

	h.trim(ctx)
	return nil
}

// Recent returns the newest records, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]PipelineRun, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []PipelineRun
	err := h.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, plerrors.Wrap(plerrors.KindStorage, "storage.History.Recent", "query records", err)
	}
	return rows, nil
}

// Get returns one record by pipeline id.
func (h *History) Get(ctx context.Context, id string) (*PipelineRun, error) {
	const op = "storage.History.Get"

	var row PipelineRun
	err := h.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, plerrors.Wrap(plerrors.KindStorage, op, "query record", err)
	}
	return &row, nil
}

func (h *History) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// trim drops rows beyond the retention limit. Failure only costs disk.
func (h *History) trim(ctx context.Context) {
	if h.keep <= 0 {
		return
	}
	newest := h.db.Model(&PipelineRun{}).
		Select("id").
		Order("created_at DESC").
		Limit(h.keep)
	err := h.db.WithContext(ctx).
		Where("id NOT IN (?)", newest).
		Delete(&PipelineRun{}).Error
	if err != nil {
		h.logger.WarnTag("HISTORY", "trim failed: %v", err)
	}
}
