package workflow_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milestone-service/internal/workflow"
)

func TestApplyHappyPath(t *testing.T) {
	// Walk the full lifecycle from proposal to completion.
	steps := []struct {
		action     workflow.Action
		wantStatus workflow.Status
		wantGate   bool
	}{
		{workflow.ActionAccept, workflow.StatusAccepted, false},
		{workflow.ActionFinalize, workflow.StatusFinalized, false},
		{workflow.ActionFund, workflow.StatusFunded, false},
		{workflow.ActionBeginWork, workflow.StatusInProgress, false},
		{workflow.ActionSubmit, workflow.StatusSubmitted, false},
		{workflow.ActionSupervisorApprove, workflow.StatusPartnerReview, true},
		{workflow.ActionApproveAndRelease, workflow.StatusReleased, true},
		{workflow.ActionMarkComplete, workflow.StatusCompleted, true},
	}

	status := workflow.StatusProposed
	gate := false
	for _, step := range steps {
		if step.action == workflow.ActionSupervisorApprove {
			// Submission lands on the supervisor's desk first.
			out, err := workflow.HandToSupervisor(status, gate)
			require.NoError(t, err)
			status, gate = out.Status, out.Gate
		}

		out, err := workflow.Apply(step.action, status, gate)
		require.NoError(t, err, "action %s from %s", step.action, status)
		assert.Equal(t, step.wantStatus, out.Status)
		assert.Equal(t, step.wantGate, out.Gate)
		status, gate = out.Status, out.Gate
	}
}

func TestApplyRejectsWrongSource(t *testing.T) {
	tests := []struct {
		name   string
		action workflow.Action
		status workflow.Status
	}{
		{"fund before finalize", workflow.ActionFund, workflow.StatusAccepted},
		{"fund twice", workflow.ActionFund, workflow.StatusFunded},
		{"begin work before funding", workflow.ActionBeginWork, workflow.StatusFinalized},
		{"submit before starting", workflow.ActionSubmit, workflow.StatusFunded},
		{"accept a funded milestone", workflow.ActionAccept, workflow.StatusFunded},
		{"complete before release", workflow.ActionMarkComplete, workflow.StatusPartnerReview},
		{"release from review queue", workflow.ActionApproveAndRelease, workflow.StatusSupervisorReview},
		{"dispute a completed milestone", workflow.ActionDispute, workflow.StatusCompleted},
		{"dispute a draft", workflow.ActionDispute, workflow.StatusDraft},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := workflow.Apply(tt.action, tt.status, true)
			var transErr *workflow.InvalidTransitionError
			require.Error(t, err)
			assert.True(t, errors.As(err, &transErr), "want InvalidTransitionError, got %v", err)
		})
	}
}

func TestReleaseRequiresGate(t *testing.T) {
	_, err := workflow.Apply(workflow.ActionApproveAndRelease, workflow.StatusPartnerReview, false)
	var gateErr *workflow.GateNotSatisfiedError
	require.Error(t, err)
	assert.True(t, errors.As(err, &gateErr), "want GateNotSatisfiedError, got %v", err)

	// The gate violation wins even when the milestone is not in review.
	_, err = workflow.Apply(workflow.ActionApproveAndRelease, workflow.StatusFunded, false)
	require.Error(t, err)
	assert.True(t, errors.As(err, &gateErr), "want GateNotSatisfiedError, got %v", err)

	out, err := workflow.Apply(workflow.ActionApproveAndRelease, workflow.StatusPartnerReview, true)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusReleased, out.Status)
	assert.True(t, out.Gate, "release keeps the gate for the completion bookkeeping")
}

func TestDisapproveResetsGate(t *testing.T) {
	out, err := workflow.Apply(workflow.ActionDisapprove, workflow.StatusReleased, true)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPartnerReview, out.Status)
	assert.False(t, out.Gate, "a reverted release needs a fresh supervisor approval")

	// The next release attempt is blocked until the supervisor re-approves.
	_, err = workflow.Apply(workflow.ActionApproveAndRelease, out.Status, out.Gate)
	var gateErr *workflow.GateNotSatisfiedError
	assert.True(t, errors.As(err, &gateErr))
}

func TestSupervisorRejectKeepsGateClear(t *testing.T) {
	out, err := workflow.Apply(workflow.ActionSupervisorReject, workflow.StatusSupervisorReview, false)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusChangesRequested, out.Status)
	assert.False(t, out.Gate)

	// Resubmission goes through the full review again.
	out, err = workflow.Apply(workflow.ActionSubmit, out.Status, out.Gate)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusSubmitted, out.Status)
}

func TestUnmarkCompleteRoundTrip(t *testing.T) {
	out, err := workflow.Apply(workflow.ActionUnmarkComplete, workflow.StatusCompleted, true)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusReleased, out.Status)
	assert.True(t, out.Gate, "reopening a completion does not touch the gate")

	out, err = workflow.Apply(workflow.ActionMarkComplete, out.Status, out.Gate)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, out.Status)
}

func TestDisputeFromEveryActiveStatus(t *testing.T) {
	active := []workflow.Status{
		workflow.StatusInProgress,
		workflow.StatusSubmitted,
		workflow.StatusSupervisorReview,
		workflow.StatusPartnerReview,
		workflow.StatusChangesRequested,
	}

	for _, st := range active {
		out, err := workflow.Apply(workflow.ActionDispute, st, false)
		require.NoError(t, err, "dispute from %s", st)
		assert.Equal(t, workflow.StatusDisputed, out.Status)
	}

	// DISPUTED is a dead end for the engine; resolution is out of band.
	for _, action := range []workflow.Action{
		workflow.ActionSubmit,
		workflow.ActionApproveAndRelease,
		workflow.ActionMarkComplete,
		workflow.ActionDispute,
	} {
		_, err := workflow.Apply(action, workflow.StatusDisputed, true)
		assert.Error(t, err, "action %s must not leave DISPUTED", action)
	}
}

func TestAlreadyApplied(t *testing.T) {
	tests := []struct {
		name   string
		action workflow.Action
		status workflow.Status
		gate   bool
		want   bool
	}{
		{"fund replay", workflow.ActionFund, workflow.StatusFunded, false, true},
		{"fund not applied yet", workflow.ActionFund, workflow.StatusFinalized, false, false},
		{"submit replay at submitted", workflow.ActionSubmit, workflow.StatusSubmitted, false, true},
		{"submit replay after handoff", workflow.ActionSubmit, workflow.StatusSupervisorReview, false, true},
		{"release replay keeps gate", workflow.ActionApproveAndRelease, workflow.StatusReleased, true, true},
		{"supervisor approve replay", workflow.ActionSupervisorApprove, workflow.StatusPartnerReview, true, true},
		{"disapprove landed same status but gate cleared", workflow.ActionSupervisorApprove, workflow.StatusPartnerReview, false, false},
		{"disapprove replay", workflow.ActionDisapprove, workflow.StatusPartnerReview, false, true},
		{"complete replay", workflow.ActionMarkComplete, workflow.StatusCompleted, true, true},
		{"accept replay", workflow.ActionAccept, workflow.StatusAccepted, false, true},

		// Detection is by state alone, so a request whose target already
		// holds is a no-op even if the matching transition never ran.
		{"unmark a release that was never completed", workflow.ActionUnmarkComplete, workflow.StatusReleased, true, true},
		{"disapprove at partner review reached via change request", workflow.ActionDisapprove, workflow.StatusPartnerReview, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, workflow.AlreadyApplied(tt.action, tt.status, tt.gate))
		})
	}
}

func TestEditWindows(t *testing.T) {
	assert.True(t, workflow.IsEditable(workflow.StatusFunded))
	assert.False(t, workflow.IsMonetaryEditable(workflow.StatusFunded))

	assert.True(t, workflow.IsMonetaryEditable(workflow.StatusFinalized))
	assert.False(t, workflow.IsEditable(workflow.StatusInProgress))
	assert.False(t, workflow.IsEditable(workflow.StatusReleased))
	assert.False(t, workflow.IsEditable(workflow.StatusDisputed))
}

func TestDeletableWindow(t *testing.T) {
	assert.True(t, workflow.IsDeletable(workflow.StatusDraft))
	assert.True(t, workflow.IsDeletable(workflow.StatusProposed))
	assert.False(t, workflow.IsDeletable(workflow.StatusFunded))
	assert.False(t, workflow.IsDeletable(workflow.StatusReleased))
	assert.False(t, workflow.IsDeletable(workflow.StatusCompleted))
}
