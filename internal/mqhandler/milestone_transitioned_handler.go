package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
	"milestone-service/internal/workflow"
	"milestone-service/pkg/metrics"
)

const dedupeHandlerName = "milestone_transitioned"

// ProjectResolver looks up the project a milestone belongs to.
type ProjectResolver interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Project, error)
}

// NotificationStore persists the fanned-out notification rows.
type NotificationStore interface {
	Insert(ctx context.Context, n *model.Notification) (int64, error)
}

// Deduper guards against broker redeliveries of the same event.
type Deduper interface {
	AcquireOnce(ctx context.Context, handler, key string) bool
	Release(ctx context.Context, handler, key string)
}

// MilestoneTransitionedHandler consumes every milestone.* event and fans
// it out as in-app notifications to the audience of the new status.
// Delivery is at-least-once on the broker side; the redis deduper keeps
// a redelivered event from producing duplicate rows. Dedupe is keyed on
// the event id, never on the status pair: resubmissions and
// disapprove/re-approve cycles legitimately repeat the same pair and
// each occurrence must notify.
type MilestoneTransitionedHandler struct {
	projects ProjectResolver
	repo     NotificationStore
	deduper  Deduper
	logger   *zap.Logger
}

func NewMilestoneTransitionedHandler(
	projects ProjectResolver,
	repo NotificationStore,
	deduper Deduper,
	logger *zap.Logger,
) *MilestoneTransitionedHandler {
	return &MilestoneTransitionedHandler{
		projects: projects,
		repo:     repo,
		deduper:  deduper,
		logger:   logger,
	}
}

// recipient is one notification target: either a concrete user or a
// whole role (supervisor, university) when no per-project user exists.
type recipient struct {
	userID *uuid.UUID
	role   workflow.Role
}

func (h *MilestoneTransitionedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	start := time.Now()

	var p mqcontracts.MilestoneTransitionedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		// A malformed payload never becomes parseable; ack and drop it
		// instead of requeueing forever.
		h.logger.Error("Failed to unmarshal MilestoneTransitionedPayload", zap.Error(err))
		return nil
	}

	dedupeKey := eventDedupeKey(p)
	if !h.deduper.AcquireOnce(ctx, dedupeHandlerName, dedupeKey) {
		h.logger.Info("Duplicate milestone event skipped",
			zap.String("milestone_id", p.MilestoneID.String()),
			zap.String("event_id", p.EventID.String()),
			zap.String("new_status", p.NewStatus),
		)
		return nil
	}

	h.logger.Info("Handling milestone transition event",
		zap.String("milestone_id", p.MilestoneID.String()),
		zap.String("old_status", p.OldStatus),
		zap.String("new_status", p.NewStatus),
	)

	proj, err := h.projects.GetByID(ctx, p.ProjectID)
	if err != nil {
		// Release the dedupe slot so the broker redelivery can retry.
		h.deduper.Release(ctx, dedupeHandlerName, dedupeKey)
		h.logger.Error("Failed to resolve project for notification",
			zap.String("project_id", p.ProjectID.String()),
			zap.Error(err),
		)
		return err
	}

	message := composeMessage(p)
	var insertErr error
	for _, rcpt := range audienceFor(workflow.Status(p.NewStatus), proj) {
		n := &model.Notification{
			MilestoneID:   p.MilestoneID,
			ProjectID:     p.ProjectID,
			RecipientID:   rcpt.userID,
			RecipientRole: string(rcpt.role),
			Channel:       "IN_APP",
			Message:       message,
		}

		if _, err := h.repo.Insert(ctx, n); err != nil {
			h.logger.Error("Failed to insert notification",
				zap.String("milestone_id", p.MilestoneID.String()),
				zap.String("recipient_role", string(rcpt.role)),
				zap.Error(err),
			)
			metrics.IncrementNotification(string(rcpt.role), "failed")
			insertErr = err
			continue
		}
		metrics.IncrementNotification(string(rcpt.role), "created")
	}

	if insertErr != nil {
		// Acking while holding the dedupe slot would drop the failed
		// recipient's notification for good. Free the slot and requeue;
		// recipients already written may see a duplicate row, which
		// at-least-once delivery accepts.
		h.deduper.Release(ctx, dedupeHandlerName, dedupeKey)
		return insertErr
	}

	metrics.RecordMQConsumeLatency("milestone.*", "milestone.notifications.q", time.Since(start))
	return nil
}

// eventDedupeKey identifies one emission. The milestone id is included
// for operator readability in redis; uniqueness comes from the event id.
func eventDedupeKey(p mqcontracts.MilestoneTransitionedPayload) string {
	return fmt.Sprintf("%s:%s", p.MilestoneID, p.EventID)
}

// audienceFor maps a landed status to who needs to hear about it.
func audienceFor(newStatus workflow.Status, proj *model.Project) []recipient {
	owner := recipient{userID: &proj.OwnerID, role: workflow.RoleOrganization}

	var assignee *recipient
	if proj.AssigneeID != nil {
		assignee = &recipient{userID: proj.AssigneeID, role: workflow.RoleParticipant}
	}

	supervisor := recipient{role: workflow.RoleSupervisor}
	university := recipient{role: workflow.RoleUniversity}

	var out []recipient
	switch newStatus {
	case workflow.StatusSupervisorReview:
		out = append(out, owner, supervisor)
	case workflow.StatusChangesRequested:
		if assignee != nil {
			out = append(out, *assignee)
		}
	case workflow.StatusPartnerReview:
		out = append(out, owner)
	case workflow.StatusDisputed:
		out = append(out, owner, supervisor, university)
		if assignee != nil {
			out = append(out, *assignee)
		}
	default:
		out = append(out, owner)
		if assignee != nil {
			out = append(out, *assignee)
		}
	}
	return out
}

func composeMessage(p mqcontracts.MilestoneTransitionedPayload) string {
	switch workflow.Status(p.NewStatus) {
	case workflow.StatusAccepted:
		return fmt.Sprintf("Milestone %q was accepted", p.Title)
	case workflow.StatusFinalized:
		return fmt.Sprintf("Milestone %q was finalized and is ready for funding", p.Title)
	case workflow.StatusFunded:
		return fmt.Sprintf("Milestone %q was funded, work can begin", p.Title)
	case workflow.StatusInProgress:
		return fmt.Sprintf("Work on milestone %q has started", p.Title)
	case workflow.StatusSubmitted, workflow.StatusSupervisorReview:
		return fmt.Sprintf("Milestone %q was submitted for review", p.Title)
	case workflow.StatusPartnerReview:
		return fmt.Sprintf("Milestone %q passed supervisor review and awaits your approval", p.Title)
	case workflow.StatusChangesRequested:
		return fmt.Sprintf("Changes were requested on milestone %q", p.Title)
	case workflow.StatusReleased:
		return fmt.Sprintf("Funds for milestone %q were released", p.Title)
	case workflow.StatusCompleted:
		return fmt.Sprintf("Milestone %q was marked complete", p.Title)
	case workflow.StatusDisputed:
		return fmt.Sprintf("A dispute was raised on milestone %q", p.Title)
	default:
		return fmt.Sprintf("Milestone %q moved to %s", p.Title, p.NewStatus)
	}
}
