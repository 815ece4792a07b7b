package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/config"
)

// ExportLog is the audit trail row persisted for every export attempt,
// successful or not. The pipeline works without a database; logging is
// skipped when no DB is configured.
type ExportLog struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	BusinessId    string    `gorm:"index" json:"businessId"`
	Kind          string    `json:"kind"`
	Format        string    `json:"format"`
	Scope         string    `json:"scope"`
	Filename      string    `json:"filename"`
	ByteSize      int       `json:"byteSize"`
	Delivery      string    `json:"delivery"` // remote | local-fallback
	Success       bool      `json:"success"`
	ErrorCategory string    `json:"errorCategory"`
	CorrelationId string    `json:"correlationId"`
	CreatedAt     time.Time `json:"createdAt"`
}

func SaveExportLog(ctx context.Context, entry *ExportLog) error {
	db := config.GetDB()
	if db == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}
