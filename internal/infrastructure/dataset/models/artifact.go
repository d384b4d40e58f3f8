package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ArtifactModel maps the `dataset_artifacts` table. One row per persisted
// yearly dataset; the date and symbol indexes are stored denormalized so
// a read reproduces the exact row set and column order.
type ArtifactModel struct {
	ArtifactID  uuid.UUID      `gorm:"primaryKey;column:artifact_id;type:uuid;not null"`
	Name        string         `gorm:"column:name;type:varchar(255);not null;uniqueIndex"`
	Year        int            `gorm:"column:year;type:integer;not null;index"`
	Source      string         `gorm:"column:source;type:varchar(50);not null"`
	GroupLabel  string         `gorm:"column:group_label;type:varchar(50);not null"`
	FilterLabel string         `gorm:"column:filter_label;type:varchar(50)"`
	Dates       []byte         `gorm:"column:dates;type:jsonb;not null"`
	Symbols     []byte         `gorm:"column:symbols;type:jsonb;not null"`
	CreatedAt   time.Time      `gorm:"column:created_at;type:timestamp;default:CURRENT_TIMESTAMP"`
	DeletedAt   gorm.DeletedAt `gorm:"column:deleted_at;type:timestamp;index"`
}

// BarModel maps the `dataset_bars` table: the long-form (date, symbol,
// field) cells of one artifact.
type BarModel struct {
	ArtifactID uuid.UUID `gorm:"column:artifact_id;type:uuid;not null;index"`
	Symbol     string    `gorm:"column:symbol;type:varchar(50);not null"`
	Date       time.Time `gorm:"column:date;type:timestamp;not null"`
	Open       float64   `gorm:"column:open;type:double precision;not null"`
	High       float64   `gorm:"column:high;type:double precision;not null"`
	Low        float64   `gorm:"column:low;type:double precision;not null"`
	Close      float64   `gorm:"column:close;type:double precision;not null"`
	Volume     int64     `gorm:"column:volume;type:bigint;not null"`
	TradeCount int64     `gorm:"column:trade_count;type:bigint;not null"`
	VWAP       float64   `gorm:"column:vwap;type:double precision;not null"`
}
