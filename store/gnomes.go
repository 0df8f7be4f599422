package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	gnomecache "github.com/wolfeidau/gnome-cache"
)

const insertBatchSize = 200

// gnomeRow is the persisted form of a gnome. List fields use the
// gnomecache list codec.
type gnomeRow struct {
	ID           int    `gorm:"column:id;primaryKey;autoIncrement:false"`
	Position     int    `gorm:"column:position;index;not null;default:0"`
	Name         string `gorm:"column:name;index;not null"`
	ThumbnailURL string `gorm:"column:thumbnail_url"`
	Age          int    `gorm:"column:age"`
	Weight       int    `gorm:"column:weight"`
	Height       int    `gorm:"column:height"`
	HairColor    string `gorm:"column:hair_color"`
	Professions  string `gorm:"column:professions"`
	Friends      string `gorm:"column:friends"`
}

func (gnomeRow) TableName() string { return "gnomes" }

func toGnomeRow(g gnomecache.Gnome) gnomeRow {
	return gnomeRow{
		ID:           g.ID,
		Name:         g.Name,
		ThumbnailURL: g.ThumbnailURL,
		Age:          g.Age,
		Weight:       g.Weight,
		Height:       g.Height,
		HairColor:    g.HairColor,
		Professions:  gnomecache.JoinList(g.Professions),
		Friends:      gnomecache.JoinList(g.Friends),
	}
}

func (r gnomeRow) gnome() gnomecache.Gnome {
	return gnomecache.Gnome{
		ID:           r.ID,
		Name:         r.Name,
		ThumbnailURL: r.ThumbnailURL,
		Age:          r.Age,
		Weight:       r.Weight,
		Height:       r.Height,
		HairColor:    r.HairColor,
		Professions:  gnomecache.SplitList(r.Professions),
		Friends:      gnomecache.SplitList(r.Friends),
	}
}

// ReplaceAll deletes every stored gnome and inserts gnomes inside one
// transaction. On failure the previous population is left intact.
func (db *DB) ReplaceAll(ctx context.Context, gnomes []gnomecache.Gnome) error {
	rows := make([]gnomeRow, 0, len(gnomes))
	for i, g := range gnomes {
		if g.ID < 0 {
			return gnomecache.Errorf(gnomecache.ErrStorage, "refusing to store gnome %q with id %d", g.Name, g.ID)
		}
		row := toGnomeRow(g)
		row.Position = i
		rows = append(rows, row)
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&gnomeRow{}).Error; err != nil {
			return fmt.Errorf("deleting gnomes: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("inserting gnomes: %w", err)
		}
		return nil
	})
	if err != nil {
		return gnomecache.Errorf(gnomecache.ErrStorage, "replacing population: %w", err)
	}

	db.logger.Debug("replaced population", "count", len(rows))
	return nil
}

// All returns every stored gnome in the order it was passed to ReplaceAll.
func (db *DB) All(ctx context.Context) ([]gnomecache.Gnome, error) {
	var rows []gnomeRow
	err := db.WithContext(ctx).
		Where("id > ?", gnomecache.AbsentID).
		Order("position").
		Find(&rows).Error
	if err != nil {
		return nil, gnomecache.Errorf(gnomecache.ErrStorage, "listing gnomes: %w", err)
	}

	gnomes := make([]gnomecache.Gnome, 0, len(rows))
	for _, r := range rows {
		gnomes = append(gnomes, r.gnome())
	}
	return gnomes, nil
}

// ByName returns the first stored gnome called name.
func (db *DB) ByName(ctx context.Context, name string) (gnomecache.Gnome, bool, error) {
	var row gnomeRow
	err := db.WithContext(ctx).Order("position").First(&row, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return gnomecache.Absent(), false, nil
		}
		return gnomecache.Absent(), false, gnomecache.Errorf(gnomecache.ErrStorage, "looking up gnome %q: %w", name, err)
	}
	return row.gnome(), true, nil
}

// GnomeCount returns the number of stored gnomes.
func (db *DB) GnomeCount(ctx context.Context) (int64, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&gnomeRow{}).Count(&n).Error; err != nil {
		return 0, gnomecache.Errorf(gnomecache.ErrStorage, "counting gnomes: %w", err)
	}
	return n, nil
}
