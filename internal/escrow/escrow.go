package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ledger is the contract with the external escrow service. Fund is
// invoked exactly once per milestone, on the funding transition; Release
// exactly once, on the release transition. Both carry an idempotency key
// derived from the milestone id so a retried call cannot move money twice.
type Ledger interface {
	Fund(ctx context.Context, milestoneID uuid.UUID, amount int64, currency string) (*Receipt, error)
	Release(ctx context.Context, milestoneID uuid.UUID) (*Receipt, error)
}

// Receipt is the ledger's confirmation of a funding or release.
type Receipt struct {
	Reference   string    `json:"reference"`
	MilestoneID uuid.UUID `json:"milestone_id"`
	Operation   string    `json:"operation"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// OperationFailedError wraps a failed ledger call. The transition that
// requested it does not commit.
type OperationFailedError struct {
	Operation   string
	MilestoneID uuid.UUID
	Err         error
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("escrow %s failed for milestone %s: %v", e.Operation, e.MilestoneID, e.Err)
}

func (e *OperationFailedError) Unwrap() error {
	return e.Err
}
