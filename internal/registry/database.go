package registry

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// UpsertName overwrites an existing record for the name or creates a new one
func (d *Database) UpsertName(name, address string) error {
	record := &NameRecord{Name: name, Address: address}
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"address", "updated_at"}),
	}).Create(record).Error
}

// GetName returns the record for a name, or nil if absent
func (d *Database) GetName(name string) (*NameRecord, error) {
	var record NameRecord
	if err := d.db.Where("name = ?", name).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// ListNames returns every registered name record
func (d *Database) ListNames() ([]NameRecord, error) {
	var records []NameRecord
	if err := d.db.Order("name ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
