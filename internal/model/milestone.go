package model

import (
	"time"

	"github.com/google/uuid"

	"milestone-service/internal/workflow"
)

// Milestone is a funded, dated unit of work inside a project. Status and
// SupervisorGate are first-class stored fields; they are only ever written
// through the transition engine. Amount is in minor units of Currency.
// Version increments on every committed write and backs the optimistic
// guard on top of the row lock.
type Milestone struct {
	ID                 uuid.UUID       `json:"id"`
	ProjectID          uuid.UUID       `json:"project_id"`
	Title              string          `json:"title"`
	Scope              string          `json:"scope"`
	AcceptanceCriteria string          `json:"acceptance_criteria"`
	DueDate            time.Time       `json:"due_date"`
	Amount             int64           `json:"amount"`
	Currency           string          `json:"currency"`
	Status             workflow.Status `json:"status"`
	SupervisorGate     bool            `json:"supervisor_gate"`
	Version            int             `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
