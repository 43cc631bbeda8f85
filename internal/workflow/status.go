package workflow

// Status is the lifecycle state of a milestone. Transitions between
// statuses happen only through Apply; nothing else writes a status.
type Status string

const (
	StatusDraft            Status = "DRAFT"
	StatusProposed         Status = "PROPOSED"
	StatusAccepted         Status = "ACCEPTED"
	StatusFinalized        Status = "FINALIZED"
	StatusFunded           Status = "FUNDED"
	StatusInProgress       Status = "IN_PROGRESS"
	StatusSubmitted        Status = "SUBMITTED"
	StatusSupervisorReview Status = "SUPERVISOR_REVIEW"
	StatusPartnerReview    Status = "PARTNER_REVIEW"
	StatusChangesRequested Status = "CHANGES_REQUESTED"
	StatusApproved         Status = "APPROVED"
	StatusReleased         Status = "RELEASED"
	StatusCompleted        Status = "COMPLETED"
	StatusDisputed         Status = "DISPUTED"
)

// allStatuses lists every status a stored milestone may carry.
// StatusApproved is kept for records written before approve and release
// were collapsed into a single step; no transition produces it anymore.
var allStatuses = []Status{
	StatusDraft,
	StatusProposed,
	StatusAccepted,
	StatusFinalized,
	StatusFunded,
	StatusInProgress,
	StatusSubmitted,
	StatusSupervisorReview,
	StatusPartnerReview,
	StatusChangesRequested,
	StatusApproved,
	StatusReleased,
	StatusCompleted,
	StatusDisputed,
}

// editableStatuses is the explicit allow-list for editing descriptive
// fields (title, scope, acceptance criteria, due date). Funds are already
// held at FUNDED but work has not started, so wording may still change.
var editableStatuses = []Status{
	StatusDraft,
	StatusProposed,
	StatusAccepted,
	StatusFinalized,
	StatusFunded,
}

// monetaryEditableStatuses is the allow-list for changing amount or
// currency. Once escrow holds the funds the figure is frozen: the funded
// sum is exactly what will be released.
var monetaryEditableStatuses = []Status{
	StatusDraft,
	StatusProposed,
	StatusAccepted,
	StatusFinalized,
}

// activeStatuses are the states with work in flight; a dispute may be
// raised from any of them.
var activeStatuses = []Status{
	StatusInProgress,
	StatusSubmitted,
	StatusSupervisorReview,
	StatusPartnerReview,
	StatusChangesRequested,
}

// deletableStatuses are the pre-funding states in which a milestone may
// still be removed. From FUNDED on the record is a financial record and
// must be retained.
var deletableStatuses = []Status{
	StatusDraft,
	StatusProposed,
	StatusAccepted,
	StatusFinalized,
}

func IsValidStatus(st Status) bool {
	return contains(allStatuses, st)
}

// IsTerminal reports whether no further transitions are defined from st.
// DISPUTED requires external resolution before the milestone can move again.
func IsTerminal(st Status) bool {
	return st == StatusCompleted || st == StatusDisputed
}

func IsActive(st Status) bool {
	return contains(activeStatuses, st)
}

// IsEditable reports whether descriptive fields may still change.
func IsEditable(st Status) bool {
	return contains(editableStatuses, st)
}

// IsMonetaryEditable reports whether amount/currency may still change.
func IsMonetaryEditable(st Status) bool {
	return contains(monetaryEditableStatuses, st)
}

func IsDeletable(st Status) bool {
	return contains(deletableStatuses, st)
}

func contains(set []Status, st Status) bool {
	for _, s := range set {
		if s == st {
			return true
		}
	}
	return false
}
