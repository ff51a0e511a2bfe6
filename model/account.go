package model

import (
	"time"

	"gorm.io/gorm"
)

// Account stores local credential state. Rows are never hard-deleted;
// deactivation clears IsActive instead.
type Account struct {
	ID                uint       `gorm:"primarykey"`
	Username          string     `gorm:"uniqueIndex;size:100;not null"`
	Password          string     `gorm:"size:255;not null"`
	ExternalID        *string    `gorm:"uniqueIndex;size:128"` // remote identity provider uid, nil until linked
	Role              Role       `gorm:"size:16;not null"`
	IsActive          bool       `gorm:"default:true;not null"`
	IsLocked          bool       `gorm:"default:false;not null;index"`
	Attempts          int        `gorm:"default:0;not null"`
	LastFailedLoginAt *time.Time
	LastLoginAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == 0 {
		a.ID = GenerateID()
	}
	return nil
}

// Linked reports whether the account has been reconciled with the remote
// identity provider.
func (a *Account) Linked() bool {
	return a.ExternalID != nil
}
