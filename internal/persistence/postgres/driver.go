package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jkaninda/oneline/internal/persistence"
)

// Driver implements persistence.Driver on any GORM dialect. The sqlite
// package reuses it with a SQLite connection.
type Driver struct {
	db    *gorm.DB
	name  string
	multi bool
}

// NewDriver wraps an open, migrated GORM connection.
func NewDriver(db *gorm.DB, name string, multiProcess bool) *Driver {
	return &Driver{db: db, name: name, multi: multiProcess}
}

func (d *Driver) Name() string { return d.name }

func (d *Driver) MultiProcess() bool { return d.multi }

// GormDB returns the underlying connection.
func (d *Driver) GormDB() *gorm.DB { return d.db }

func (d *Driver) Insert(ctx context.Context, table string, rec persistence.Record) error {
	if err := persistence.Validate(table, rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	model := RecordModel{Collection: table, ID: rec.ID(), Data: string(data)}

	err = d.db.WithContext(ctx).Create(&model).Error
	if err == nil {
		return nil
	}
	// The primary key rejects duplicates; dialects without error translation
	// are detected by looking the row up.
	if errors.Is(err, gorm.ErrDuplicatedKey) || d.exists(ctx, table, model.ID) {
		return fmt.Errorf("%s/%s: %w", table, model.ID, persistence.ErrExists)
	}
	return fmt.Errorf("inserting %s/%s: %w", table, model.ID, err)
}

func (d *Driver) exists(ctx context.Context, table, id string) bool {
	var n int64
	err := d.db.WithContext(ctx).
		Model(&RecordModel{}).
		Where("table_name = ? AND id = ?", table, id).
		Count(&n).Error
	return err == nil && n > 0
}

func (d *Driver) Find(ctx context.Context, table, id string) (persistence.Record, error) {
	var model RecordModel
	err := d.db.WithContext(ctx).
		Where("table_name = ? AND id = ?", table, id).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s/%s: %w", table, id, persistence.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding %s/%s: %w", table, id, err)
	}
	return decode(&model)
}

func (d *Driver) Update(ctx context.Context, table string, rec persistence.Record) error {
	if err := persistence.Validate(table, rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	res := d.db.WithContext(ctx).
		Model(&RecordModel{}).
		Where("table_name = ? AND id = ?", table, rec.ID()).
		Updates(map[string]any{"data": string(data), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("updating %s/%s: %w", table, rec.ID(), res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s/%s: %w", table, rec.ID(), persistence.ErrNotFound)
	}
	return nil
}

func (d *Driver) Delete(ctx context.Context, table, id string) error {
	res := d.db.WithContext(ctx).
		Where("table_name = ? AND id = ?", table, id).
		Delete(&RecordModel{})
	if res.Error != nil {
		return fmt.Errorf("deleting %s/%s: %w", table, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s/%s: %w", table, id, persistence.ErrNotFound)
	}
	return nil
}

func (d *Driver) All(ctx context.Context, table string) ([]persistence.Record, error) {
	var models []RecordModel
	err := d.db.WithContext(ctx).
		Where("table_name = ?", table).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	out := make([]persistence.Record, 0, len(models))
	for i := range models {
		rec, err := decode(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	// Database collation may differ from byte order.
	persistence.SortByID(out)
	return out, nil
}

// Ping checks the database connection for health/readiness probes.
func (d *Driver) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the database connection pool.
func (d *Driver) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func decode(m *RecordModel) (persistence.Record, error) {
	var rec persistence.Record
	if err := json.Unmarshal([]byte(m.Data), &rec); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", m.Collection, m.ID, err)
	}
	return rec, nil
}
