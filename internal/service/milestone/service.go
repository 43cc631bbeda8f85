package milestone

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/escrow"
	"milestone-service/internal/model"
	"milestone-service/internal/repository"
	"milestone-service/internal/workflow"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/metrics"
)

// ErrInvalidInput flags a malformed proposal or edit (empty title,
// negative amount, missing currency).
var ErrInvalidInput = errors.New("invalid milestone input")

// Store is the milestone persistence surface the engine runs on.
// InTransition must hand the callback a per-id serialized view: one
// writer per milestone at a time.
type Store interface {
	Insert(ctx context.Context, m *model.Milestone) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Milestone, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]model.Milestone, error)
	InTransition(ctx context.Context, id uuid.UUID, fn repository.TransitionFunc) error
}

// Projects resolves the ownership and assignment relationships the
// permission evaluator needs.
type Projects interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Project, error)
}

// Service is the transition engine: it authorizes a requested action,
// computes the resulting status, performs escrow side effects, and
// records the notification event, all against the locked milestone row.
type Service struct {
	store    Store
	projects Projects
	ledger   escrow.Ledger
	logger   *zap.Logger
}

func NewService(store Store, projects Projects, ledger escrow.Ledger, log *zap.Logger) *Service {
	return &Service{
		store:    store,
		projects: projects,
		ledger:   ledger,
		logger:   log,
	}
}

// eventKeys names the outbox event per action. The notifier binds
// "milestone.*" and fans out to the audience per key.
var eventKeys = map[workflow.Action]string{
	workflow.ActionAccept:            mqcontracts.RoutingKeyPrefix + "accepted",
	workflow.ActionFinalize:          mqcontracts.RoutingKeyPrefix + "finalized",
	workflow.ActionFund:              mqcontracts.RoutingKeyPrefix + "funded",
	workflow.ActionBeginWork:         mqcontracts.RoutingKeyPrefix + "started",
	workflow.ActionSubmit:            mqcontracts.RoutingKeyPrefix + "submitted",
	workflow.ActionSupervisorApprove: mqcontracts.RoutingKeyPrefix + "supervisor_approved",
	workflow.ActionSupervisorReject:  mqcontracts.RoutingKeyPrefix + "supervisor_rejected",
	workflow.ActionApproveAndRelease: mqcontracts.RoutingKeyPrefix + "released",
	workflow.ActionDisapprove:        mqcontracts.RoutingKeyPrefix + "disapproved",
	workflow.ActionRequestChanges:    mqcontracts.RoutingKeyPrefix + "changes_requested",
	workflow.ActionDispute:           mqcontracts.RoutingKeyPrefix + "disputed",
	workflow.ActionMarkComplete:      mqcontracts.RoutingKeyPrefix + "completed",
	workflow.ActionUnmarkComplete:    mqcontracts.RoutingKeyPrefix + "reopened",
}

// handoffKey is emitted for the automatic SUBMITTED → SUPERVISOR_REVIEW
// advance that follows a submission.
const handoffKey = mqcontracts.RoutingKeyPrefix + "supervisor_review"

// ProposeInput carries a new milestone proposal.
type ProposeInput struct {
	ProjectID          uuid.UUID
	Title              string
	Scope              string
	AcceptanceCriteria string
	DueDate            time.Time
	Amount             int64
	Currency           string
}

// EditInput carries a partial update; nil fields keep their value.
type EditInput struct {
	Title              *string
	Scope              *string
	AcceptanceCriteria *string
	DueDate            *time.Time
	Amount             *int64
	Currency           *string
}

// Propose creates a milestone in PROPOSED under the caller's project.
func (s *Service) Propose(ctx context.Context, caller workflow.Actor, in ProposeInput) (*model.Milestone, error) {
	if in.Title == "" || in.Currency == "" || in.Amount < 0 {
		return nil, ErrInvalidInput
	}

	proj, err := s.projects.GetByID(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}

	actor := resolveActor(caller, proj)
	if !workflow.RoleGrants(actor, workflow.ActionAdd) {
		return nil, &workflow.PermissionDeniedError{Role: actor.Role, Action: workflow.ActionAdd}
	}

	m := &model.Milestone{
		ID:                 uuid.New(),
		ProjectID:          in.ProjectID,
		Title:              in.Title,
		Scope:              in.Scope,
		AcceptanceCriteria: in.AcceptanceCriteria,
		DueDate:            in.DueDate,
		Amount:             in.Amount,
		Currency:           in.Currency,
		Status:             workflow.StatusProposed,
	}

	if err := s.store.Insert(ctx, m); err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Milestone proposed",
		zap.String("milestone_id", m.ID.String()),
		zap.String("project_id", m.ProjectID.String()),
		zap.Int64("amount", m.Amount),
		zap.String("currency", m.Currency),
	)
	return m, nil
}

// Edit updates descriptive fields inside the editable window; amount and
// currency additionally require the pre-funding window, for every role.
func (s *Service) Edit(ctx context.Context, caller workflow.Actor, id uuid.UUID, in EditInput) (*model.Milestone, error) {
	var result *model.Milestone

	err := s.store.InTransition(ctx, id, func(m *model.Milestone, tx repository.MilestoneTx) error {
		proj, err := s.projects.GetByID(ctx, m.ProjectID)
		if err != nil {
			return err
		}

		actor := resolveActor(caller, proj)
		if !workflow.RoleGrants(actor, workflow.ActionEdit) {
			return &workflow.PermissionDeniedError{Role: actor.Role, Action: workflow.ActionEdit}
		}
		if !workflow.Allowed(actor, workflow.ActionEdit, m.Status, m.SupervisorGate) {
			return &workflow.EditNotAllowedError{Status: m.Status}
		}

		updated := *m
		if in.Title != nil {
			if *in.Title == "" {
				return ErrInvalidInput
			}
			updated.Title = *in.Title
		}
		if in.Scope != nil {
			updated.Scope = *in.Scope
		}
		if in.AcceptanceCriteria != nil {
			updated.AcceptanceCriteria = *in.AcceptanceCriteria
		}
		if in.DueDate != nil {
			updated.DueDate = *in.DueDate
		}
		if in.Amount != nil {
			if *in.Amount < 0 {
				return ErrInvalidInput
			}
			updated.Amount = *in.Amount
		}
		if in.Currency != nil {
			if *in.Currency == "" {
				return ErrInvalidInput
			}
			updated.Currency = *in.Currency
		}

		// From FUNDED on, the held sum is exactly what will be released;
		// no role may change it.
		monetaryChanged := updated.Amount != m.Amount || updated.Currency != m.Currency
		if monetaryChanged && !workflow.IsMonetaryEditable(m.Status) {
			return &workflow.EditNotAllowedError{Status: m.Status}
		}

		if err := tx.SetDetails(ctx, &updated); err != nil {
			return err
		}
		result = m
		return nil
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a milestone that has never been funded. From FUNDED on
// the record is financial history and stays.
func (s *Service) Delete(ctx context.Context, caller workflow.Actor, id uuid.UUID) error {
	return s.store.InTransition(ctx, id, func(m *model.Milestone, tx repository.MilestoneTx) error {
		proj, err := s.projects.GetByID(ctx, m.ProjectID)
		if err != nil {
			return err
		}

		actor := resolveActor(caller, proj)
		if !workflow.RoleGrants(actor, workflow.ActionDelete) {
			return &workflow.PermissionDeniedError{Role: actor.Role, Action: workflow.ActionDelete}
		}
		if !workflow.IsDeletable(m.Status) {
			return &workflow.InvalidTransitionError{Status: m.Status, Action: workflow.ActionDelete}
		}

		return tx.Delete(ctx)
	})
}

// Accept moves a proposal into ACCEPTED.
func (s *Service) Accept(ctx context.Context, caller workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
	return s.transition(ctx, caller, id, workflow.ActionAccept)
}

// Finalize freezes scope and terms ahead of funding.
func (s *Service) Finalize(ctx context.Context, caller workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
	return s.transition(ctx, caller, id, workflow.ActionFinalize)
}

// Fund asks the escrow ledger to hold the milestone's amount and, on
// confirmation, commits FINALIZED → FUNDED. The ledger call and the
// status write succeed or fail together.
func (s *Service) Fund(ctx context.Context, caller workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
	return s.transition(ctx, caller, id, workflow.ActionFund)
}

// BeginWork marks the assignee as started.
func (s *Service) BeginWork(ctx context.Context, caller workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
	return s.transition(ctx, caller, id, workflow.ActionBeginWork)
}

// Submit hands completed work in; the milestone lands on the
// supervisor's desk in the same transaction.
func (s *Service) Submit(ctx context.Context, caller workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
	return s.transition(ctx, caller, id, workflow.ActionSubmit)
}

// SupervisorApprove signs off on submitted work and sets the release gate.
func (s *Service) SupervisorApprove(ctx context.Context, caller workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
	return s.transition(ctx, caller, id, workflow.ActionSupervisorApprove)
}

// SupervisorReject sends submitted work back for changes without
// touching the gate.
func (s *Service) SupervisorReject(ctx context.Context, caller workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
	return s.transition(ctx, caller, id, workflow.ActionSupervisorReject)
}

// ApproveAndRelease releases the escrowed funds. Refused with
// GateNotSatisfied for every actor until the supervisor has approved.
func (s *Service) ApproveAndRelease(ctx context.Context, caller workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
	return s.transition(ctx, caller, id, workflow.ActionApproveAndRelease)
}

// Disapprove reverts a release before completion. Administrative
// correction only: escrow is not clawed back, and the gate resets so the
// next release needs a fresh supervisor approval.
func (s *Service) Disapprove(ctx context.Context, caller workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
	return s.transition(ctx, caller, id, workflow.ActionDisapprove)
}

// RequestChanges sends released-for-review work back to the assignee.
func (s *Service) RequestChanges(ctx context.Context, caller workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
	return s.transition(ctx, caller, id, workflow.ActionRequestChanges)
}

// RaiseDispute freezes an active milestone pending external resolution.
func (s *Service) RaiseDispute(ctx context.Context, caller workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
	return s.transition(ctx, caller, id, workflow.ActionDispute)
}

// MarkComplete closes out a released milestone.
func (s *Service) MarkComplete(ctx context.Context, caller workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
	return s.transition(ctx, caller, id, workflow.ActionMarkComplete)
}

// UnmarkComplete undoes an accidental completion mark.
func (s *Service) UnmarkComplete(ctx context.Context, caller workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
	return s.transition(ctx, caller, id, workflow.ActionUnmarkComplete)
}

// Get returns a milestone by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Milestone, error) {
	return s.store.GetByID(ctx, id)
}

// ListByProject returns a project's milestones.
func (s *Service) ListByProject(ctx context.Context, projectID uuid.UUID) ([]model.Milestone, error) {
	return s.store.ListByProject(ctx, projectID)
}

// Permissions evaluates every capability flag for the caller against one
// milestone, for clients that render action buttons.
func (s *Service) Permissions(ctx context.Context, caller workflow.Actor, id uuid.UUID) (workflow.Permissions, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return workflow.Permissions{}, err
	}
	proj, err := s.projects.GetByID(ctx, m.ProjectID)
	if err != nil {
		return workflow.Permissions{}, err
	}
	actor := resolveActor(caller, proj)
	return workflow.Evaluate(actor, m.Status, m.SupervisorGate), nil
}

// transition runs one action end to end: authorize, compute, side
// effects, persist, record events. Everything happens against the row
// locked by the store, so concurrent requests for the same milestone
// serialize and replays turn into no-ops.
func (s *Service) transition(ctx context.Context, caller workflow.Actor, id uuid.UUID, action workflow.Action) (*model.Milestone, error) {
	log := logger.WithTrace(ctx, s.logger)
	var result *model.Milestone
	var replayed bool

	err := s.store.InTransition(ctx, id, func(m *model.Milestone, tx repository.MilestoneTx) error {
		proj, err := s.projects.GetByID(ctx, m.ProjectID)
		if err != nil {
			return err
		}

		actor := resolveActor(caller, proj)
		if !workflow.RoleGrants(actor, action) {
			return &workflow.PermissionDeniedError{Role: actor.Role, Action: action}
		}

		if workflow.AlreadyApplied(action, m.Status, m.SupervisorGate) {
			// The identical transition already committed; a retried
			// request is answered with the current state, no-op.
			replayed = true
			result = m
			return nil
		}

		out, err := workflow.Apply(action, m.Status, m.SupervisorGate)
		if err != nil {
			return err
		}

		oldStatus := m.Status

		// Escrow side effects run inside the open transaction: if the
		// ledger refuses, nothing commits; if the commit fails after the
		// ledger accepted, the idempotency key makes the retry safe.
		switch action {
		case workflow.ActionFund:
			receipt, err := s.ledger.Fund(ctx, m.ID, m.Amount, m.Currency)
			if err != nil {
				return err
			}
			fundedEvent := mqcontracts.EscrowFundedPayload{
				MilestoneID: m.ID,
				ProjectID:   m.ProjectID,
				Amount:      m.Amount,
				Currency:    m.Currency,
				Reference:   receipt.Reference,
				FundedAt:    receipt.RecordedAt,
			}
			if err := tx.AppendEvent(ctx, "escrow.funded", fundedEvent); err != nil {
				return err
			}
		case workflow.ActionApproveAndRelease:
			receipt, err := s.ledger.Release(ctx, m.ID)
			if err != nil {
				return err
			}
			releasedEvent := mqcontracts.EscrowReleasedPayload{
				MilestoneID: m.ID,
				ProjectID:   m.ProjectID,
				Amount:      m.Amount,
				Currency:    m.Currency,
				Reference:   receipt.Reference,
				ReleasedAt:  receipt.RecordedAt,
			}
			if err := tx.AppendEvent(ctx, "escrow.released", releasedEvent); err != nil {
				return err
			}
		}

		if err := tx.SetStatus(ctx, out.Status, out.Gate); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, eventKeys[action], transitionPayload(m, oldStatus, out.Status, actor.Role)); err != nil {
			return err
		}

		if action == workflow.ActionSubmit {
			// Submission is automatically handed to the supervising
			// reviewer inside the same transaction.
			handoff, err := workflow.HandToSupervisor(out.Status, out.Gate)
			if err != nil {
				return err
			}
			if err := tx.SetStatus(ctx, handoff.Status, handoff.Gate); err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, handoffKey, transitionPayload(m, out.Status, handoff.Status, actor.Role)); err != nil {
				return err
			}
		}

		result = m
		return nil
	})

	if err != nil {
		metrics.RecordTransitionRejected(string(action), rejectionReason(err))
		log.Warn("Milestone transition rejected",
			zap.String("milestone_id", id.String()),
			zap.String("action", string(action)),
			zap.String("reason", rejectionReason(err)),
			zap.Error(err),
		)
		return nil, err
	}

	if !replayed {
		metrics.RecordTransition(string(action), string(result.Status))
		log.Info("Milestone transition committed",
			zap.String("milestone_id", result.ID.String()),
			zap.String("action", string(action)),
			zap.String("new_status", string(result.Status)),
			zap.Bool("supervisor_gate", result.SupervisorGate),
		)
	}
	return result, nil
}

func transitionPayload(m *model.Milestone, oldStatus, newStatus workflow.Status, role workflow.Role) mqcontracts.MilestoneTransitionedPayload {
	return mqcontracts.MilestoneTransitionedPayload{
		EventID:     uuid.New(),
		MilestoneID: m.ID,
		ProjectID:   m.ProjectID,
		Title:       m.Title,
		OldStatus:   string(oldStatus),
		NewStatus:   string(newStatus),
		ActorRole:   string(role),
		OccurredAt:  time.Now().UTC(),
	}
}

func resolveActor(caller workflow.Actor, p *model.Project) workflow.Actor {
	caller.IsProjectOwner = p.IsOwner(caller.ID)
	caller.IsAssignee = p.IsAssignee(caller.ID)
	return caller
}

func rejectionReason(err error) string {
	var permErr *workflow.PermissionDeniedError
	var transErr *workflow.InvalidTransitionError
	var gateErr *workflow.GateNotSatisfiedError
	var editErr *workflow.EditNotAllowedError
	var escrowErr *escrow.OperationFailedError

	switch {
	case errors.As(err, &permErr):
		return "permission_denied"
	case errors.As(err, &gateErr):
		return "gate_not_satisfied"
	case errors.As(err, &transErr):
		return "invalid_transition"
	case errors.As(err, &editErr):
		return "edit_not_allowed"
	case errors.As(err, &escrowErr):
		return "escrow_operation_failed"
	default:
		return "internal"
	}
}
