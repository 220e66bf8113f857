package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatSession is the persisted record of a 1-on-1 conversation.
type ChatSession struct {
	// ID is the unique identifier for the session (UUID).
	ID string `gorm:"primaryKey"`
	// UserAID and UserBID are the two participants; the pair is unordered.
	UserAID string `gorm:"type:text;not null;index"`
	UserBID string `gorm:"type:text;not null;index"`
	// IsActive is false once the session has been torn down.
	IsActive bool `gorm:"index"`
	// StartedAt is the timestamp when the pair was matched.
	StartedAt time.Time
	// ChatDeadline is StartedAt plus the configured chat duration.
	ChatDeadline time.Time
	// EndedAt is set on teardown.
	EndedAt *time.Time
	// EndReason records why the session ended (see EndReason constants).
	EndReason string `gorm:"type:text"`
}

// BeforeCreate is a GORM hook that generates a UUID for the session if the
// ID has not been set yet.
func (s *ChatSession) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return
}

// PartnerOf returns the other participant, or "" when userID is not part of
// the session.
func (s *ChatSession) PartnerOf(userID string) string {
	switch userID {
	case s.UserAID:
		return s.UserBID
	case s.UserBID:
		return s.UserAID
	}
	return ""
}

// EndReason explains why a session was terminated.
type EndReason string

const (
	EndByUser          EndReason = "user"
	EndByBan           EndReason = "ban"
	EndByAdmin         EndReason = "admin"
	EndByRevealTimeout EndReason = "reveal_timeout"
	EndAfterReveal     EndReason = "reveal_done"
	EndByInvariant     EndReason = "invariant"
)
