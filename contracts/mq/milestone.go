package mq

import (
	"time"

	"github.com/google/uuid"
)

// RoutingKeyPrefix namespaces every milestone event on the topic exchange;
// the notifier binds "milestone.*".
const RoutingKeyPrefix = "milestone."

// MilestoneTransitionedPayload is emitted once per committed transition.
// EventID is unique per emission; consumers dedupe on it, since the
// lifecycle legitimately repeats identical status pairs (every
// resubmission replays SUBMITTED to SUPERVISOR_REVIEW).
type MilestoneTransitionedPayload struct {
	EventID     uuid.UUID `json:"event_id"`
	MilestoneID uuid.UUID `json:"milestone_id"`
	ProjectID   uuid.UUID `json:"project_id"`
	Title       string    `json:"title"`
	OldStatus   string    `json:"old_status"`
	NewStatus   string    `json:"new_status"`
	ActorRole   string    `json:"actor_role"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EscrowFundedPayload is emitted when the ledger confirms a funding.
type EscrowFundedPayload struct {
	MilestoneID uuid.UUID `json:"milestone_id"`
	ProjectID   uuid.UUID `json:"project_id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Reference   string    `json:"reference"`
	FundedAt    time.Time `json:"funded_at"`
}

// EscrowReleasedPayload is emitted when the ledger confirms a release.
type EscrowReleasedPayload struct {
	MilestoneID uuid.UUID `json:"milestone_id"`
	ProjectID   uuid.UUID `json:"project_id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Reference   string    `json:"reference"`
	ReleasedAt  time.Time `json:"released_at"`
}
