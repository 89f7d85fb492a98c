package models

import (
	"time"

	"gorm.io/datatypes"
)

// StoreNode is one JSON document of the realtime store when it is backed by Postgres.
type StoreNode struct {
	Path       string         `json:"path" gorm:"primaryKey;size:255"`
	Collection string         `json:"collection" gorm:"size:128;not null;index"`
	Value      datatypes.JSON `json:"value" gorm:"not null"`
	Version    int64          `json:"version" gorm:"not null;default:0"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
