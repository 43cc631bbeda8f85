package workflow_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"milestone-service/internal/workflow"
)

func owner() workflow.Actor {
	return workflow.Actor{ID: uuid.New(), Role: workflow.RoleOrganization, IsProjectOwner: true}
}

func assignee() workflow.Actor {
	return workflow.Actor{ID: uuid.New(), Role: workflow.RoleParticipant, IsAssignee: true}
}

func TestAllowedMatrix(t *testing.T) {
	supervisor := workflow.Actor{ID: uuid.New(), Role: workflow.RoleSupervisor}
	university := workflow.Actor{ID: uuid.New(), Role: workflow.RoleUniversity}
	admin := workflow.Actor{ID: uuid.New(), Role: workflow.RoleAdmin}

	tests := []struct {
		name   string
		actor  workflow.Actor
		action workflow.Action
		status workflow.Status
		gate   bool
		want   bool
	}{
		{"owner funds finalized", owner(), workflow.ActionFund, workflow.StatusFinalized, false, true},
		{"owner cannot fund twice", owner(), workflow.ActionFund, workflow.StatusFunded, false, false},
		{"owner edits pre-funding", owner(), workflow.ActionEdit, workflow.StatusAccepted, false, true},
		{"owner edits while funded", owner(), workflow.ActionEdit, workflow.StatusFunded, false, true},
		{"owner cannot edit in progress", owner(), workflow.ActionEdit, workflow.StatusInProgress, false, false},
		{"owner releases with gate", owner(), workflow.ActionApproveAndRelease, workflow.StatusPartnerReview, true, true},
		{"owner cannot release without gate", owner(), workflow.ActionApproveAndRelease, workflow.StatusPartnerReview, false, false},
		{"owner cannot submit", owner(), workflow.ActionSubmit, workflow.StatusInProgress, false, false},

		{"assignee begins work", assignee(), workflow.ActionBeginWork, workflow.StatusFunded, false, true},
		{"assignee submits in progress", assignee(), workflow.ActionSubmit, workflow.StatusInProgress, false, true},
		{"assignee resubmits after changes", assignee(), workflow.ActionSubmit, workflow.StatusChangesRequested, false, true},
		{"assignee cannot fund", assignee(), workflow.ActionFund, workflow.StatusFinalized, false, false},
		{"assignee cannot release", assignee(), workflow.ActionApproveAndRelease, workflow.StatusPartnerReview, true, false},
		{"assignee disputes active work", assignee(), workflow.ActionDispute, workflow.StatusSubmitted, false, true},

		{"supervisor approves in review", supervisor, workflow.ActionSupervisorApprove, workflow.StatusSupervisorReview, false, true},
		{"supervisor rejects in review", supervisor, workflow.ActionSupervisorReject, workflow.StatusSupervisorReview, false, true},
		{"supervisor cannot approve elsewhere", supervisor, workflow.ActionSupervisorApprove, workflow.StatusPartnerReview, false, false},
		{"supervisor cannot release", supervisor, workflow.ActionApproveAndRelease, workflow.StatusPartnerReview, true, false},

		{"university disputes", university, workflow.ActionDispute, workflow.StatusInProgress, false, true},
		{"university cannot edit", university, workflow.ActionEdit, workflow.StatusDraft, false, false},
		{"university cannot approve", university, workflow.ActionSupervisorApprove, workflow.StatusSupervisorReview, false, false},

		{"admin funds without ownership", admin, workflow.ActionFund, workflow.StatusFinalized, false, true},
		{"admin releases with gate", admin, workflow.ActionApproveAndRelease, workflow.StatusPartnerReview, true, true},
		{"admin edits any status", admin, workflow.ActionEdit, workflow.StatusReleased, false, true},
		{"admin deletes only pre-funding", admin, workflow.ActionDelete, workflow.StatusFunded, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, workflow.Allowed(tt.actor, tt.action, tt.status, tt.gate))
		})
	}
}

func TestOwnershipIsRequiredNotJustRole(t *testing.T) {
	// Same role, no ownership of the surrounding project.
	stranger := workflow.Actor{ID: uuid.New(), Role: workflow.RoleOrganization}
	assert.False(t, workflow.RoleGrants(stranger, workflow.ActionFund))
	assert.False(t, workflow.Allowed(stranger, workflow.ActionFund, workflow.StatusFinalized, false))

	unassigned := workflow.Actor{ID: uuid.New(), Role: workflow.RoleParticipant}
	assert.False(t, workflow.RoleGrants(unassigned, workflow.ActionSubmit))
}

func TestRoleGrantsIgnoresStatus(t *testing.T) {
	// RoleGrants answers "ever allowed"; status comes later. A funding
	// request at the wrong status is a conflict, not a permission failure.
	o := owner()
	assert.True(t, workflow.RoleGrants(o, workflow.ActionFund))
	assert.False(t, workflow.Allowed(o, workflow.ActionFund, workflow.StatusReleased, false))
}

func TestUnknownRoleGetsNothing(t *testing.T) {
	ghost := workflow.Actor{ID: uuid.New(), Role: workflow.Role("auditor")}
	for _, action := range []workflow.Action{
		workflow.ActionEdit, workflow.ActionFund, workflow.ActionSubmit,
		workflow.ActionApproveAndRelease, workflow.ActionDispute, workflow.ActionDelete,
	} {
		assert.False(t, workflow.RoleGrants(ghost, action), "action %s", action)
	}
}

func TestEvaluateOwnerAtPartnerReview(t *testing.T) {
	perms := workflow.Evaluate(owner(), workflow.StatusPartnerReview, true)
	assert.True(t, perms.CanApproveAndRelease)
	assert.True(t, perms.CanRequestChanges)
	assert.True(t, perms.CanDispute)
	assert.False(t, perms.CanEdit)
	assert.False(t, perms.CanFundEscrow)
	assert.False(t, perms.CanSubmit)
	assert.False(t, perms.CanMarkAsComplete)

	// Without the gate the release flag drops, everything else holds.
	perms = workflow.Evaluate(owner(), workflow.StatusPartnerReview, false)
	assert.False(t, perms.CanApproveAndRelease)
	assert.True(t, perms.CanRequestChanges)
}

func TestEvaluateAssigneeLifecycle(t *testing.T) {
	a := assignee()

	perms := workflow.Evaluate(a, workflow.StatusFunded, false)
	assert.True(t, perms.CanBeginWork)
	assert.False(t, perms.CanSubmit)

	perms = workflow.Evaluate(a, workflow.StatusInProgress, false)
	assert.False(t, perms.CanBeginWork)
	assert.True(t, perms.CanSubmit)
	assert.True(t, perms.CanDispute)

	perms = workflow.Evaluate(a, workflow.StatusCompleted, true)
	assert.Equal(t, workflow.Permissions{}, perms, "terminal status leaves the assignee nothing")
}
