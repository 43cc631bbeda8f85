package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"milestone-service/internal/escrow"
	"milestone-service/internal/model"
	"milestone-service/internal/repository"
	milestonesvc "milestone-service/internal/service/milestone"
	"milestone-service/internal/workflow"
)

// MilestoneHandler exposes the milestone lifecycle over HTTP. Every
// lifecycle command is a POST on the milestone resource; the engine
// decides, the handler only translates.
type MilestoneHandler struct {
	svc    *milestonesvc.Service
	logger *zap.Logger
}

func NewMilestoneHandler(svc *milestonesvc.Service, logger *zap.Logger) *MilestoneHandler {
	return &MilestoneHandler{svc: svc, logger: logger}
}

type proposeRequest struct {
	ProjectID          uuid.UUID `json:"project_id" binding:"required"`
	Title              string    `json:"title" binding:"required"`
	Scope              string    `json:"scope"`
	AcceptanceCriteria string    `json:"acceptance_criteria"`
	DueDate            time.Time `json:"due_date"`
	Amount             int64     `json:"amount"`
	Currency           string    `json:"currency" binding:"required"`
}

type editRequest struct {
	Title              *string    `json:"title"`
	Scope              *string    `json:"scope"`
	AcceptanceCriteria *string    `json:"acceptance_criteria"`
	DueDate            *time.Time `json:"due_date"`
	Amount             *int64     `json:"amount"`
	Currency           *string    `json:"currency"`
}

// actorKey matches the gin context key set by the auth middleware.
const actorKey = "actor"

func actorFromContext(c *gin.Context) (workflow.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return workflow.Actor{}, false
	}
	actor, ok := v.(workflow.Actor)
	return actor, ok
}

func (h *MilestoneHandler) Propose(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req proposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	m, err := h.svc.Propose(c.Request.Context(), actor, milestonesvc.ProposeInput{
		ProjectID:          req.ProjectID,
		Title:              req.Title,
		Scope:              req.Scope,
		AcceptanceCriteria: req.AcceptanceCriteria,
		DueDate:            req.DueDate,
		Amount:             req.Amount,
		Currency:           req.Currency,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"milestone": m})
}

func (h *MilestoneHandler) Edit(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}

	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	m, err := h.svc.Edit(c.Request.Context(), actor, id, milestonesvc.EditInput{
		Title:              req.Title,
		Scope:              req.Scope,
		AcceptanceCriteria: req.AcceptanceCriteria,
		DueDate:            req.DueDate,
		Amount:             req.Amount,
		Currency:           req.Currency,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"milestone": m})
}

func (h *MilestoneHandler) Delete(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), actor, id); err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *MilestoneHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid milestone id"})
		return
	}

	m, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"milestone": m})
}

func (h *MilestoneHandler) ListByProject(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("project_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	milestones, err := h.svc.ListByProject(c.Request.Context(), projectID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"milestones": milestones})
}

func (h *MilestoneHandler) Permissions(c *gin.Context) {
	actor, id, ok := h.actorAndID(c)
	if !ok {
		return
	}

	perms, err := h.svc.Permissions(c.Request.Context(), actor, id)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"permissions": perms})
}

// command builds a gin handler for one lifecycle transition.
func (h *MilestoneHandler) command(name string, fn func(c *gin.Context, actor workflow.Actor, id uuid.UUID) (*model.Milestone, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, id, ok := h.actorAndID(c)
		if !ok {
			return
		}

		h.logger.Info("Milestone command received",
			zap.String("command", name),
			zap.String("milestone_id", id.String()),
			zap.String("role", string(actor.Role)),
			zap.String("client_ip", c.ClientIP()),
		)

		m, err := fn(c, actor, id)
		if err != nil {
			h.renderError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"milestone": m})
	}
}

func (h *MilestoneHandler) Accept() gin.HandlerFunc {
	return h.command("accept", func(c *gin.Context, actor workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
		return h.svc.Accept(c.Request.Context(), actor, id)
	})
}

func (h *MilestoneHandler) Finalize() gin.HandlerFunc {
	return h.command("finalize", func(c *gin.Context, actor workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
		return h.svc.Finalize(c.Request.Context(), actor, id)
	})
}

func (h *MilestoneHandler) Fund() gin.HandlerFunc {
	return h.command("fund", func(c *gin.Context, actor workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
		return h.svc.Fund(c.Request.Context(), actor, id)
	})
}

func (h *MilestoneHandler) BeginWork() gin.HandlerFunc {
	return h.command("begin_work", func(c *gin.Context, actor workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
		return h.svc.BeginWork(c.Request.Context(), actor, id)
	})
}

func (h *MilestoneHandler) Submit() gin.HandlerFunc {
	return h.command("submit", func(c *gin.Context, actor workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
		return h.svc.Submit(c.Request.Context(), actor, id)
	})
}

func (h *MilestoneHandler) SupervisorApprove() gin.HandlerFunc {
	return h.command("supervisor_approve", func(c *gin.Context, actor workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
		return h.svc.SupervisorApprove(c.Request.Context(), actor, id)
	})
}

func (h *MilestoneHandler) SupervisorReject() gin.HandlerFunc {
	return h.command("supervisor_reject", func(c *gin.Context, actor workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
		return h.svc.SupervisorReject(c.Request.Context(), actor, id)
	})
}

func (h *MilestoneHandler) ApproveAndRelease() gin.HandlerFunc {
	return h.command("approve_and_release", func(c *gin.Context, actor workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
		return h.svc.ApproveAndRelease(c.Request.Context(), actor, id)
	})
}

func (h *MilestoneHandler) Disapprove() gin.HandlerFunc {
	return h.command("disapprove", func(c *gin.Context, actor workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
		return h.svc.Disapprove(c.Request.Context(), actor, id)
	})
}

func (h *MilestoneHandler) RequestChanges() gin.HandlerFunc {
	return h.command("request_changes", func(c *gin.Context, actor workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
		return h.svc.RequestChanges(c.Request.Context(), actor, id)
	})
}

func (h *MilestoneHandler) Dispute() gin.HandlerFunc {
	return h.command("dispute", func(c *gin.Context, actor workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
		return h.svc.RaiseDispute(c.Request.Context(), actor, id)
	})
}

func (h *MilestoneHandler) MarkComplete() gin.HandlerFunc {
	return h.command("mark_complete", func(c *gin.Context, actor workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
		return h.svc.MarkComplete(c.Request.Context(), actor, id)
	})
}

func (h *MilestoneHandler) UnmarkComplete() gin.HandlerFunc {
	return h.command("unmark_complete", func(c *gin.Context, actor workflow.Actor, id uuid.UUID) (*model.Milestone, error) {
		return h.svc.UnmarkComplete(c.Request.Context(), actor, id)
	})
}

func (h *MilestoneHandler) actorAndID(c *gin.Context) (workflow.Actor, uuid.UUID, bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return workflow.Actor{}, uuid.Nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid milestone id"})
		return workflow.Actor{}, uuid.Nil, false
	}

	return actor, id, true
}

// renderError maps engine errors onto HTTP statuses. The error body
// carries a stable machine-readable code next to the human message.
func (h *MilestoneHandler) renderError(c *gin.Context, err error) {
	var permErr *workflow.PermissionDeniedError
	var transErr *workflow.InvalidTransitionError
	var gateErr *workflow.GateNotSatisfiedError
	var editErr *workflow.EditNotAllowedError
	var escrowErr *escrow.OperationFailedError

	switch {
	case errors.As(err, &permErr):
		c.JSON(http.StatusForbidden, gin.H{"code": "permission_denied", "error": permErr.Error()})
	case errors.As(err, &gateErr):
		c.JSON(http.StatusConflict, gin.H{"code": "gate_not_satisfied", "error": gateErr.Error()})
	case errors.As(err, &transErr):
		c.JSON(http.StatusConflict, gin.H{"code": "invalid_transition", "error": transErr.Error()})
	case errors.As(err, &editErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "edit_not_allowed", "error": editErr.Error()})
	case errors.As(err, &escrowErr):
		h.logger.Error("Escrow operation failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"code": "escrow_operation_failed", "error": "escrow provider unavailable"})
	case errors.Is(err, repository.ErrMilestoneNotFound), errors.Is(err, repository.ErrProjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.Is(err, repository.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"code": "version_conflict", "error": "milestone was modified concurrently, retry"})
	case errors.Is(err, milestonesvc.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_input", "error": err.Error()})
	default:
		h.logger.Error("Unhandled milestone error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal", "error": "internal error"})
	}
}
