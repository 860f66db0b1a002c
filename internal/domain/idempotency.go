// Package domain defines the core models for the application. Idempotency is
// the only GORM-mapped type: its rows live in an in-memory SQLite database and
// disappear with the process, like everything else.
package domain

import "time"

// Idempotency records the outcome of a request made with an Idempotency-Key,
// keyed by (scope, key). Scope is the route the key was used on, so the same
// key may be reused across unrelated endpoints. ResourceID is the id of the
// record the original request created; a retry within the TTL returns it
// instead of creating another record.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Scope      string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_scope_key,priority:1"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_scope_key,priority:2"`
	ResourceID string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
