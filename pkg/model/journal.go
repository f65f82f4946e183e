package model

import "time"

// ReconcileEntry records one reconciliation run.
type ReconcileEntry struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Path      string    `gorm:"size:512" json:"path"`
	Trigger   string    `gorm:"size:16" json:"trigger"` // startup/watch
	Address   string    `gorm:"size:64" json:"address,omitempty"`
	Port      string    `gorm:"size:16" json:"port,omitempty"`
	Changed   bool      `json:"changed"`
	Created   bool      `json:"created"` // a new static section was appended
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}
