package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the per-person record keyed by email. Empty token strings mean
// "absent"; a nil TokenExpiry is treated as already expired.
type User struct {
	gorm.Model
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string
	AccessToken  string
	RefreshToken string
	TokenExpiry  *time.Time
	LastLogin    time.Time
	LastLogout   *time.Time
}

// HasSession reports whether the record can still be used to reach the
// calendar provider, either directly or after a refresh.
func (u *User) HasSession() bool {
	return u.RefreshToken != ""
}

// Event mirrors an event created through this service. The calendar
// provider is the source of truth.
type Event struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	UserID        uint      `gorm:"not null;uniqueIndex:idx_events_user_google" json:"userId"`
	GoogleEventID string    `gorm:"not null;uniqueIndex:idx_events_user_google" json:"googleEventId"`
	Summary       string    `json:"summary"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
