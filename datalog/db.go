package datalog

import (
	"os"
	"path/filepath"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB keeps entries in SQLite for querying. The driver stores times as text
// with their zone offset, so every time crossing into the database is in UTC
// to keep comparisons and ordering chronological.
type DB struct {
	db *gorm.DB
}

func OpenDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to create %s", dir)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open database %s", path)
	}

	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to migrate entries")
	}

	return &DB{db: db}, nil
}

func (d *DB) Write(e *Entry) error {
	row := *e
	row.TakenAt = e.TakenAt.UTC()
	if r := d.db.Create(&row); r.Error != nil {
		return pkgerrors.Wrapf(r.Error, "failed to store entry of %s", e.PlantID)
	}
	e.ID = row.ID
	return nil
}

// Latest returns the newest entry of a plant, or gorm.ErrRecordNotFound.
func (d *DB) Latest(plantID string) (*Entry, error) {
	var e Entry
	r := d.db.Where("plant_id = ?", plantID).Order("taken_at DESC").Order("id DESC").First(&e)
	if r.Error != nil {
		return nil, r.Error
	}
	return &e, nil
}

// List returns up to limit entries of a plant, newest first.
func (d *DB) List(plantID string, limit int) ([]Entry, error) {
	var entries []Entry
	r := d.db.Where("plant_id = ?", plantID).Order("taken_at DESC").Order("id DESC").Limit(limit).Find(&entries)
	if r.Error != nil {
		return nil, pkgerrors.Wrapf(r.Error, "failed to list entries of %s", plantID)
	}
	return entries, nil
}

// Since returns the entries of a plant taken at or after t, oldest first.
func (d *DB) Since(plantID string, t time.Time) ([]Entry, error) {
	var entries []Entry
	r := d.db.Where("plant_id = ? AND taken_at >= ?", plantID, t.UTC()).Order("taken_at ASC").Order("id ASC").Find(&entries)
	if r.Error != nil {
		return nil, pkgerrors.Wrapf(r.Error, "failed to list entries of %s", plantID)
	}
	return entries, nil
}

func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
