package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is a bearer proof of authentication. The token is a secret and
// must never appear in logs or audit entries. Sessions are created and
// deleted, never updated.
type Session struct {
	ID        string    `gorm:"primarykey;size:36"`
	AccountID uint      `gorm:"index;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	IPAddress string    `gorm:"size:45;not null"`
	UserAgent string    `gorm:"size:512;not null"`
	CreatedAt time.Time
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Expired reports whether the session is past its lifetime at the given
// instant. Validation always re-checks this regardless of sweeps.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
