package registry

import (
	"time"

	"gorm.io/gorm"
)

// NameRecord maps a well-known module name to an opaque address string
type NameRecord struct {
	gorm.Model `json:"-"`
	Name       string    `gorm:"uniqueIndex" json:"name"`
	Address    string    `json:"address"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ImportRequest is the admin payload for bulk address imports
type ImportRequest struct {
	Names     []string `json:"names" binding:"required"`
	Addresses []string `json:"addresses" binding:"required"`
}

// CacheStatus reports one dependent module's cache health
type CacheStatus struct {
	Module  string `json:"module"`
	Current bool   `json:"current"`
}
