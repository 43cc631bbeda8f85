package workflow

// Action is a requested operation on a milestone.
type Action string

const (
	ActionEdit              Action = "edit"
	ActionAdd               Action = "add"
	ActionAccept            Action = "accept"
	ActionFinalize          Action = "finalize"
	ActionFund              Action = "fund"
	ActionBeginWork         Action = "begin_work"
	ActionSubmit            Action = "submit"
	ActionSupervisorApprove Action = "supervisor_approve"
	ActionSupervisorReject  Action = "supervisor_reject"
	ActionApproveAndRelease Action = "approve_and_release"
	ActionDisapprove        Action = "disapprove"
	ActionRequestChanges    Action = "request_changes"
	ActionDispute           Action = "dispute"
	ActionMarkComplete      Action = "mark_complete"
	ActionUnmarkComplete    Action = "unmark_complete"
	ActionDelete            Action = "delete"

	// actionHandToSupervisor is the automatic SUBMITTED → SUPERVISOR_REVIEW
	// handoff applied by the engine right after a submission commits to the
	// same transaction. It is not addressable by callers.
	actionHandToSupervisor Action = "hand_to_supervisor"
)

// gateEffect describes what a transition does to the supervisor gate.
type gateEffect int

const (
	gateKeep gateEffect = iota
	gateSet
	gateClear
)

// transition describes one legal move in the lifecycle.
type transition struct {
	from []Status
	to   Status
	// requiresGate rejects the move with GateNotSatisfiedError unless the
	// supervisor gate is already set.
	requiresGate bool
	gate         gateEffect
}

// transitions is the whole state machine as data. Every status write in
// the system is the result of a lookup here.
var transitions = map[Action]transition{
	ActionAccept: {
		from: []Status{StatusDraft, StatusProposed},
		to:   StatusAccepted,
	},
	ActionFinalize: {
		from: []Status{StatusDraft, StatusProposed, StatusAccepted},
		to:   StatusFinalized,
	},
	ActionFund: {
		from: []Status{StatusFinalized},
		to:   StatusFunded,
	},
	ActionBeginWork: {
		from: []Status{StatusFunded},
		to:   StatusInProgress,
	},
	ActionSubmit: {
		from: []Status{StatusInProgress, StatusChangesRequested},
		to:   StatusSubmitted,
	},
	actionHandToSupervisor: {
		from: []Status{StatusSubmitted},
		to:   StatusSupervisorReview,
	},
	ActionSupervisorApprove: {
		from: []Status{StatusSupervisorReview},
		to:   StatusPartnerReview,
		gate: gateSet,
	},
	ActionSupervisorReject: {
		from: []Status{StatusSupervisorReview},
		to:   StatusChangesRequested,
	},
	ActionApproveAndRelease: {
		from:         []Status{StatusPartnerReview},
		to:           StatusReleased,
		requiresGate: true,
	},
	ActionRequestChanges: {
		from: []Status{StatusPartnerReview},
		to:   StatusChangesRequested,
	},
	// Disapproving a release is an administrative correction before
	// settlement; it does not claw funds back. The gate is cleared so a
	// fresh supervisor approval is needed before the next release.
	ActionDisapprove: {
		from: []Status{StatusReleased},
		to:   StatusPartnerReview,
		gate: gateClear,
	},
	ActionMarkComplete: {
		from: []Status{StatusReleased},
		to:   StatusCompleted,
	},
	ActionUnmarkComplete: {
		from: []Status{StatusCompleted},
		to:   StatusReleased,
	},
	ActionDispute: {
		from: activeStatuses,
		to:   StatusDisputed,
	},
}

// Outcome is the computed result of a legal transition.
type Outcome struct {
	Status Status
	Gate   bool
}

// Apply computes the status and gate that result from performing action
// on a milestone currently at st with the given gate. It performs no
// permission checks; see Allowed.
func Apply(action Action, st Status, gate bool) (Outcome, error) {
	tr, ok := transitions[action]
	if !ok {
		return Outcome{}, &InvalidTransitionError{Status: st, Action: action}
	}
	// The gate is checked before the source status: a release without
	// supervisor approval is a gate violation wherever the milestone sits.
	if tr.requiresGate && !gate {
		return Outcome{}, &GateNotSatisfiedError{Status: st}
	}
	if !contains(tr.from, st) {
		return Outcome{}, &InvalidTransitionError{Status: st, Action: action}
	}

	out := Outcome{Status: tr.to, Gate: gate}
	switch tr.gate {
	case gateSet:
		out.Gate = true
	case gateClear:
		out.Gate = false
	}
	return out, nil
}

// HandToSupervisor advances a freshly submitted milestone to the
// supervising reviewer. The engine applies it in the same transaction as
// the submission itself.
func HandToSupervisor(st Status, gate bool) (Outcome, error) {
	return Apply(actionHandToSupervisor, st, gate)
}

// AlreadyApplied reports whether the milestone already sits in the state
// the action would produce, i.e. the request is a replay of a transition
// that has committed. Replays are treated as success no-ops rather than
// InvalidTransition so a retried request stays harmless.
//
// Detection is by current state alone, not by event history. The
// contract is deliberately permissive: any request whose target state
// already holds is answered as a no-op, even when no matching
// transition ever ran (an unmarkComplete against a release that was
// never completed, for instance). The caller asked for a state the
// milestone is in, so agreeing is safe; distinguishing the two would
// need a read of the event log for no behavioral gain.
func AlreadyApplied(action Action, st Status, gate bool) bool {
	tr, ok := transitions[action]
	if !ok {
		return false
	}
	if action == ActionSubmit {
		// A submission auto-advances, so its replay target is the
		// supervisor's desk, not SUBMITTED.
		return st == StatusSubmitted || st == StatusSupervisorReview
	}
	if st != tr.to {
		return false
	}
	// Both supervisor approval and disapproval land on PARTNER_REVIEW;
	// the gate tells them apart.
	switch tr.gate {
	case gateSet:
		return gate
	case gateClear:
		return !gate
	}
	return true
}
