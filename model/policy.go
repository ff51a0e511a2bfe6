package model

import "time"

// PolicyAnchor is the fixed value of the unique anchor column; it pins the
// table to a single logical row so concurrent get-or-create cannot insert
// duplicates.
const PolicyAnchor = "default"

// AuthPolicy is the singleton lockout and session policy row.
type AuthPolicy struct {
	ID              uint          `gorm:"primarykey"`
	Anchor          string        `gorm:"uniqueIndex;size:16;not null"`
	MaxAttempts     int           `gorm:"not null"`
	SessionLifetime time.Duration `gorm:"not null"` // stored as nanoseconds
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (AuthPolicy) TableName() string {
	return "auth_policy"
}
