package model

import (
	"time"

	"github.com/google/uuid"
)

// Notification is one fan-out entry produced by the notifier from a
// milestone transition event. RecipientID is nil for role-addressed
// notifications (the supervisor pool is resolved by the platform mailer).
type Notification struct {
	ID            int64      `json:"id"`
	MilestoneID   uuid.UUID  `json:"milestone_id"`
	ProjectID     uuid.UUID  `json:"project_id"`
	RecipientID   *uuid.UUID `json:"recipient_id,omitempty"`
	RecipientRole string     `json:"recipient_role"`
	Channel       string     `json:"channel"`
	Message       string     `json:"message"`
	IsRead        bool       `json:"is_read"`
	CreatedAt     time.Time  `json:"created_at"`
}
