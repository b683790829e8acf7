// Package catalogue loads the static map furniture set. The catalogue
// ships as a SQLite file next to the engine and is read once per
// session; markers are immutable after load.
package catalogue

import (
	"fmt"
	"os"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cadlive/livemap/pkg/core"
)

// markerRow maps the static_markers catalogue table.
type markerRow struct {
	ID       string  `gorm:"column:id;primaryKey"`
	Category string  `gorm:"column:category"`
	Label    string  `gorm:"column:label"`
	X        float64 `gorm:"column:x"`
	Y        float64 `gorm:"column:y"`
	Z        float64 `gorm:"column:z"`
}

func (markerRow) TableName() string {
	return "static_markers"
}

// Load reads all static markers from the catalogue file. A missing file
// is not an error: the map simply renders without furniture.
func Load(path string) ([]core.StaticMarker, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalogue %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	defer sqlDB.Close()

	var rows []markerRow
	if err := db.Order("category, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read catalogue: %w", err)
	}

	markers := make([]core.StaticMarker, len(rows))
	for i, r := range rows {
		markers[i] = core.StaticMarker{
			ID:       r.ID,
			Category: r.Category,
			Label:    r.Label,
			Position: core.Position3D{X: r.X, Y: r.Y, Z: r.Z},
		}
	}
	return markers, nil
}

// Write creates or replaces a catalogue file from a marker set. Used by
// deployment tooling to build the shipped catalogue.
func Write(path string, markers []core.StaticMarker) error {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to create catalogue %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	defer sqlDB.Close()

	if err := db.AutoMigrate(&markerRow{}); err != nil {
		return fmt.Errorf("failed to migrate catalogue schema: %w", err)
	}
	if err := db.Where("1 = 1").Delete(&markerRow{}).Error; err != nil {
		return fmt.Errorf("failed to clear catalogue: %w", err)
	}

	rows := make([]markerRow, len(markers))
	for i, m := range markers {
		rows[i] = markerRow{
			ID:       m.ID,
			Category: m.Category,
			Label:    m.Label,
			X:        m.Position.X,
			Y:        m.Position.Y,
			Z:        m.Position.Z,
		}
	}
	if len(rows) == 0 {
		return nil
	}
	if err := db.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to write catalogue: %w", err)
	}
	return nil
}
