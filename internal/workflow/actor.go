package workflow

import "github.com/google/uuid"

// Role is the platform role of the caller. Any role outside this closed
// set is granted nothing.
type Role string

const (
	// RoleOrganization is the funding party's role. Ownership of the
	// surrounding project is tracked separately on the Actor.
	RoleOrganization Role = "organization"
	// RoleParticipant is the worker role; assignment to the project is
	// tracked separately on the Actor.
	RoleParticipant Role = "participant"
	// RoleSupervisor reviews submitted work and sets the release gate.
	RoleSupervisor Role = "supervisor"
	// RoleUniversity is the oversight role; it observes and may dispute.
	RoleUniversity Role = "university"
	// RoleAdmin is the platform operator.
	RoleAdmin Role = "admin"
)

func IsValidRole(r Role) bool {
	switch r {
	case RoleOrganization, RoleParticipant, RoleSupervisor, RoleUniversity, RoleAdmin:
		return true
	}
	return false
}

// Actor is the fully resolved caller context. The relationship flags are
// computed by the caller against the milestone's project and passed in
// explicitly; the workflow package never looks anything up.
type Actor struct {
	ID             uuid.UUID
	Role           Role
	IsProjectOwner bool
	IsAssignee     bool
}
