package domain

import "time"

// Idempotency maps a client-supplied Idempotency-Key to the submission it
// produced, so a retried POST returns the original receipt instead of
// appending a second row.
type Idempotency struct {
	ID           string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Key          string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idempotency_key"`
	SubmissionID string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt    time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt    time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// GeoCacheEntry caches a resolved location for a client address.
type GeoCacheEntry struct {
	IP        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	City      string    `gorm:"type:TEXT NOT NULL"`
	Region    string    `gorm:"type:TEXT NOT NULL"`
	Country   string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (GeoCacheEntry) TableName() string { return "geo_cache" }
