package models

import (
	"time"

	"github.com/lib/pq" // Необхідний для pq.StringArray
)

// UserStatus is the lifecycle position of a user. A ban is tracked separately
// by IsBanned and overlays whichever status the user had.
type UserStatus string

const (
	StatusIdle      UserStatus = "idle"
	StatusSearching UserStatus = "searching"
	StatusInChat    UserStatus = "in_chat"
)

// User is the durable record kept for every participant.
// Records are created lazily on first contact and never deleted.
type User struct {
	ID        string     `gorm:"primaryKey" json:"id"` // Telegram chat ID or anonymous UUID
	Status    UserStatus `gorm:"type:text;not null;default:idle" json:"status"`
	SessionID string     `gorm:"type:text;index" json:"session_id,omitempty"`
	// Interests are the labels of the last search. Empty means "any".
	Interests pq.StringArray `gorm:"type:text[]" json:"interests"`

	Balance         int64 `gorm:"not null;default:0;check:balance >= 0" json:"balance"`
	WarningCount    int   `gorm:"not null;default:0" json:"warning_count"`
	IsBanned        bool  `gorm:"not null;default:false;index" json:"is_banned"`
	UnlockedPremium bool  `gorm:"not null;default:false" json:"unlocked_premium"`

	// ReferredBy is set at most once.
	ReferredBy    *string `gorm:"type:text" json:"referred_by,omitempty"`
	ReferralCount int     `gorm:"not null;default:0" json:"referral_count"`

	Language    string    `gorm:"type:text" json:"language,omitempty"`
	// DisplayName is shown to the partner on a successful reveal.
	DisplayName string    `gorm:"type:text" json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a deep copy, so callers can mutate it and only commit on a
// successful save.
func (u *User) Clone() *User {
	c := *u
	if u.Interests != nil {
		c.Interests = append(pq.StringArray(nil), u.Interests...)
	}
	if u.ReferredBy != nil {
		ref := *u.ReferredBy
		c.ReferredBy = &ref
	}
	return &c
}

// ResetToIdle clears the session and search state.
func (u *User) ResetToIdle() {
	u.Status = StatusIdle
	u.SessionID = ""
}
