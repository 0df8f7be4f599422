package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	gnomecache "github.com/wolfeidau/gnome-cache"
)

type photoRow struct {
	URL  string `gorm:"column:url;primaryKey"`
	Path string `gorm:"column:path;not null"`
}

func (photoRow) TableName() string { return "cached_pictures" }

// PutPhotoPath upserts the path recorded for src.
func (db *DB) PutPhotoPath(ctx context.Context, src, path string) error {
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"path"}),
	}).Create(&photoRow{URL: src, Path: path}).Error
	if err != nil {
		return gnomecache.Errorf(gnomecache.ErrStorage, "recording photo path: %w", err)
	}
	return nil
}

// PhotoPath returns the path recorded for src.
func (db *DB) PhotoPath(ctx context.Context, src string) (string, bool, error) {
	var row photoRow
	err := db.WithContext(ctx).First(&row, "url = ?", src).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, gnomecache.Errorf(gnomecache.ErrStorage, "looking up photo path: %w", err)
	}
	return row.Path, true, nil
}

// PhotoCount returns the number of recorded photos.
func (db *DB) PhotoCount(ctx context.Context) (int64, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&photoRow{}).Count(&n).Error; err != nil {
		return 0, gnomecache.Errorf(gnomecache.ErrStorage, "counting photos: %w", err)
	}
	return n, nil
}
