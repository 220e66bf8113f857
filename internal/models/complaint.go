package models

import "time"

// Complaint is a report filed by one participant against the other.
type Complaint struct {
	ComplaintID    string `gorm:"primaryKey"`
	ReporterID     string `gorm:"type:text;not null"`
	ReportedUserID string `gorm:"type:text;not null;index"`
	SessionID      string `gorm:"type:text"`
	ComplaintType  string // "Low", "Medium", "Critical"
	Reason         string
	Status         string // "new", "warned"
	CreatedAt      time.Time
}
