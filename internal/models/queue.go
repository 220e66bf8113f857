package models

import "time"

// QueueEntry is a user's standing request to be matched.
type QueueEntry struct {
	UserID     string    `json:"user_id"`
	Interests  []string  `json:"interests"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Stats is the aggregate view returned to administrators.
type Stats struct {
	TotalUsers     int64 `json:"total_users"`
	UsersInChat    int   `json:"users_in_chat"`
	ActiveSessions int   `json:"active_sessions"`
	BannedUsers    int64 `json:"banned_users"`
	QueueDepth     int   `json:"queue_depth"`
	TotalBalance   int64 `json:"total_balance"`
	TotalReferrals int64 `json:"total_referrals"`
}

// UserAggregate is what storage can count over the users table.
type UserAggregate struct {
	TotalUsers     int64
	BannedUsers    int64
	TotalBalance   int64
	TotalReferrals int64
}
