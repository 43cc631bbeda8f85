package workflow

import "fmt"

// PermissionDeniedError means the actor's role or project relationship
// does not grant the requested action, regardless of status.
type PermissionDeniedError struct {
	Role   Role
	Action Action
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("role %q is not allowed to perform %q", e.Role, e.Action)
}

// InvalidTransitionError means the action is not legal from the
// milestone's current status, even for an authorized actor.
type InvalidTransitionError struct {
	Status Status
	Action Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("action %q is not legal from status %q", e.Action, e.Status)
}

// GateNotSatisfiedError means a release was attempted before the
// supervisor approved the submitted work.
type GateNotSatisfiedError struct {
	Status Status
}

func (e *GateNotSatisfiedError) Error() string {
	return fmt.Sprintf("cannot release from status %q: supervisor approval is required first", e.Status)
}

// EditNotAllowedError means an edit was attempted outside the editable
// status window.
type EditNotAllowedError struct {
	Status Status
}

func (e *EditNotAllowedError) Error() string {
	return fmt.Sprintf("milestone is not editable in status %q", e.Status)
}
