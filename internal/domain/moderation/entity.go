package moderation

import (
	"time"

	"github.com/google/uuid"
)

// ReportContext is where the reported behavior happened
type ReportContext string

const (
	ReportContextVideoCall ReportContext = "video_call"
	ReportContextSnacc     ReportContext = "snacc"
	ReportContextProfile   ReportContext = "profile"
	ReportContextMessage   ReportContext = "message"
)

// ReportContexts lists every accepted context
var ReportContexts = []ReportContext{
	ReportContextVideoCall,
	ReportContextSnacc,
	ReportContextProfile,
	ReportContextMessage,
}

// Valid reports whether c is a known context
func (c ReportContext) Valid() bool {
	for _, known := range ReportContexts {
		if c == known {
			return true
		}
	}
	return false
}

// DisplayName returns the user-facing name of the context
func (c ReportContext) DisplayName() string {
	switch c {
	case ReportContextProfile:
		return "Profile"
	case ReportContextSnacc:
		return "Snacc"
	case ReportContextVideoCall:
		return "Video Call"
	case ReportContextMessage:
		return "Message"
	default:
		return "Unknown"
	}
}

// ReportStatus represents the status of a report
type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "pending"
	ReportStatusReviewing ReportStatus = "reviewing"
	ReportStatusResolved  ReportStatus = "resolved"
	ReportStatusDismissed ReportStatus = "dismissed"
)

// Report is a user-submitted report against another account
type Report struct {
	ID         uuid.UUID     `db:"id" json:"id"`
	ReporterID uuid.UUID     `db:"reporter_id" json:"reporter_id"`
	TargetID   uuid.UUID     `db:"target_id" json:"target_id"`
	Context    ReportContext `db:"context" json:"context"`
	Reason     string        `db:"reason" json:"reason"`
	Status     ReportStatus  `db:"status" json:"status"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// ReportWithTarget adds the reported profile to a report
type ReportWithTarget struct {
	Report
	TargetUsername    *string `db:"target_username" json:"target_username,omitempty"`
	TargetDisplayName *string `db:"target_display_name" json:"target_display_name,omitempty"`
}
