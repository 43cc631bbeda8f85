package model

import (
	"time"

	"github.com/google/uuid"
)

// Project is the engagement a milestone belongs to. This service does not
// own project records; it only reads the two relationships the permission
// evaluator needs. AssigneeID is nil until a participant or group has been
// accepted onto the project.
type Project struct {
	ID         uuid.UUID  `json:"id"`
	OwnerID    uuid.UUID  `json:"owner_id"`
	AssigneeID *uuid.UUID `json:"assignee_id,omitempty"`
	Title      string     `json:"title"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsOwner reports whether userID funds this project.
func (p *Project) IsOwner(userID uuid.UUID) bool {
	return p.OwnerID == userID
}

// IsAssignee reports whether userID is the accepted worker.
func (p *Project) IsAssignee(userID uuid.UUID) bool {
	return p.AssigneeID != nil && *p.AssigneeID == userID
}
