package workflow

// rule is one cell of the permission matrix: the statuses in which a role
// may perform an action, plus the relationship the actor must hold.
type rule struct {
	// statuses is the allow-list of statuses for the action; nil means the
	// action is not status-bound for this role.
	statuses []Status
	// ownerOnly requires the actor to own the surrounding project.
	ownerOnly bool
	// assigneeOnly requires the actor to be the accepted worker.
	assigneeOnly bool
	// needsGate additionally requires the supervisor gate to be set.
	needsGate bool
}

// permissionTable is the whole role/status matrix as data, one entry per
// role per action. A missing entry means the role never gets the action;
// a role missing entirely gets nothing.
var permissionTable = map[Role]map[Action]rule{
	RoleOrganization: {
		ActionAdd:               {ownerOnly: true},
		ActionEdit:              {statuses: editableStatuses, ownerOnly: true},
		ActionAccept:            {statuses: []Status{StatusDraft, StatusProposed}, ownerOnly: true},
		ActionFinalize:          {statuses: []Status{StatusDraft, StatusProposed, StatusAccepted}, ownerOnly: true},
		ActionFund:              {statuses: []Status{StatusFinalized}, ownerOnly: true},
		ActionApproveAndRelease: {statuses: []Status{StatusPartnerReview}, ownerOnly: true, needsGate: true},
		ActionDisapprove:        {statuses: []Status{StatusReleased}, ownerOnly: true},
		ActionRequestChanges:    {statuses: []Status{StatusPartnerReview}, ownerOnly: true},
		ActionDispute:           {statuses: activeStatuses, ownerOnly: true},
		ActionMarkComplete:      {statuses: []Status{StatusReleased}, ownerOnly: true},
		ActionUnmarkComplete:    {statuses: []Status{StatusCompleted}, ownerOnly: true},
		ActionDelete:            {statuses: deletableStatuses, ownerOnly: true},
	},
	RoleParticipant: {
		ActionBeginWork: {statuses: []Status{StatusFunded}, assigneeOnly: true},
		// FINALIZED appears here for matrix fidelity with the product
		// rules; the transition table still refuses a submission before
		// funding, so the engine answers InvalidTransition.
		ActionSubmit:  {statuses: []Status{StatusInProgress, StatusFinalized, StatusChangesRequested}, assigneeOnly: true},
		ActionDispute: {statuses: activeStatuses, assigneeOnly: true},
	},
	RoleSupervisor: {
		ActionSupervisorApprove: {statuses: []Status{StatusSupervisorReview}},
		ActionSupervisorReject:  {statuses: []Status{StatusSupervisorReview}},
		ActionDispute:           {statuses: activeStatuses},
	},
	RoleUniversity: {
		ActionDispute: {statuses: activeStatuses},
	},
	RoleAdmin: {
		ActionAdd:      {},
		ActionEdit:     {},
		ActionAccept:   {statuses: []Status{StatusDraft, StatusProposed}},
		ActionFinalize: {statuses: []Status{StatusDraft, StatusProposed, StatusAccepted}},
		ActionFund:     {statuses: []Status{StatusFinalized}},
		// The operator may release without owning the project, but never
		// without the supervisor gate; that check lives in the engine and
		// binds every actor.
		ActionApproveAndRelease: {statuses: []Status{StatusPartnerReview}},
		ActionDisapprove:        {statuses: []Status{StatusReleased}},
		ActionRequestChanges:    {statuses: []Status{StatusPartnerReview}},
		ActionDispute:           {},
		ActionMarkComplete:      {statuses: []Status{StatusReleased}},
		ActionUnmarkComplete:    {statuses: []Status{StatusCompleted}},
		ActionDelete:            {statuses: deletableStatuses},
	},
}

// RoleGrants reports whether the actor's role and project relationship
// ever grant the action, ignoring the milestone's current status. It is
// the test behind PermissionDenied: a false here is "you are not allowed",
// while a wrong status is "not now".
func RoleGrants(actor Actor, action Action) bool {
	actions, ok := permissionTable[actor.Role]
	if !ok {
		return false
	}
	r, ok := actions[action]
	if !ok {
		return false
	}
	if r.ownerOnly && !actor.IsProjectOwner {
		return false
	}
	if r.assigneeOnly && !actor.IsAssignee {
		return false
	}
	return true
}

// Allowed reports whether the actor may perform the action on a milestone
// currently at st with the given gate. Both the role-level rule and the
// status precondition must hold; flipping either one flips the answer.
func Allowed(actor Actor, action Action, st Status, gate bool) bool {
	if !RoleGrants(actor, action) {
		return false
	}
	r := permissionTable[actor.Role][action]
	if r.statuses != nil && !contains(r.statuses, st) {
		return false
	}
	if r.needsGate && !gate {
		return false
	}
	return true
}

// Permissions is the evaluated action set for one actor against one
// milestone, suitable for handing to a client as capability flags.
type Permissions struct {
	CanEdit              bool `json:"can_edit"`
	CanAdd               bool `json:"can_add"`
	CanAccept            bool `json:"can_accept"`
	CanFinalize          bool `json:"can_finalize"`
	CanFundEscrow        bool `json:"can_fund_escrow"`
	CanBeginWork         bool `json:"can_begin_work"`
	CanSubmit            bool `json:"can_submit"`
	CanSupervisorApprove bool `json:"can_supervisor_approve"`
	CanSupervisorReject  bool `json:"can_supervisor_reject"`
	CanApproveAndRelease bool `json:"can_approve_and_release"`
	CanDisapprove        bool `json:"can_disapprove"`
	CanRequestChanges    bool `json:"can_request_changes"`
	CanDispute           bool `json:"can_dispute"`
	CanMarkAsComplete    bool `json:"can_mark_as_complete"`
	CanUnmarkAsComplete  bool `json:"can_unmark_as_complete"`
	CanDelete            bool `json:"can_delete"`
}

// Evaluate computes every capability flag for the actor against a
// milestone at st with the given gate. Pure function of its inputs.
func Evaluate(actor Actor, st Status, gate bool) Permissions {
	return Permissions{
		CanEdit:              Allowed(actor, ActionEdit, st, gate),
		CanAdd:               Allowed(actor, ActionAdd, st, gate),
		CanAccept:            Allowed(actor, ActionAccept, st, gate),
		CanFinalize:          Allowed(actor, ActionFinalize, st, gate),
		CanFundEscrow:        Allowed(actor, ActionFund, st, gate),
		CanBeginWork:         Allowed(actor, ActionBeginWork, st, gate),
		CanSubmit:            Allowed(actor, ActionSubmit, st, gate),
		CanSupervisorApprove: Allowed(actor, ActionSupervisorApprove, st, gate),
		CanSupervisorReject:  Allowed(actor, ActionSupervisorReject, st, gate),
		CanApproveAndRelease: Allowed(actor, ActionApproveAndRelease, st, gate),
		CanDisapprove:        Allowed(actor, ActionDisapprove, st, gate),
		CanRequestChanges:    Allowed(actor, ActionRequestChanges, st, gate),
		CanDispute:           Allowed(actor, ActionDispute, st, gate),
		CanMarkAsComplete:    Allowed(actor, ActionMarkComplete, st, gate),
		CanUnmarkAsComplete:  Allowed(actor, ActionUnmarkComplete, st, gate),
		CanDelete:            Allowed(actor, ActionDelete, st, gate),
	}
}
