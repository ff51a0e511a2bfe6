package model

import "time"

// SecurityLog is an append-only audit record. There is no update or
// delete path for these rows.
type SecurityLog struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	Action       string    `gorm:"size:50;not null;index"`
	ResourceType string    `gorm:"size:50;not null;index"`
	ResourceID   *uint     `gorm:"index"`
	UserID       *uint     `gorm:"index"`
	Username     string    `gorm:"size:100"` // snapshot, kept even when no account was resolved
	IPAddress    string    `gorm:"size:45"`
	UserAgent    string    `gorm:"size:512"`
	Metadata     string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (SecurityLog) TableName() string {
	return "security_log"
}
