package postgres

import (
	"time"

	"gorm.io/gorm"
)

// RecordModel maps to the "records" table. Every persistence table shares
// it, keyed by (table_name, id), with the attributes stored as JSON text.
type RecordModel struct {
	Collection string `gorm:"column:table_name;primaryKey;size:128"`
	ID         string `gorm:"primaryKey;size:255"`
	Data       string `gorm:"type:text;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (RecordModel) TableName() string { return "records" }

// AutoMigrate creates or updates the records table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&RecordModel{})
}
