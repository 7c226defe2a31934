package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an action that violates a status workflow.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrPrivilege indicates the actor lacks the required role tier.
	ErrPrivilege = errors.New("insufficient privilege")
	// ErrActorRequired indicates an operation issued without attribution.
	ErrActorRequired = errors.New("actor required")
)

// UserSafeMessage maps well-known errors to messages that can be shown to
// the operator without leaking internals.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrInvalidState):
		return "This action is not allowed in the current state."
	case errors.Is(err, ErrPrivilege):
		return "You do not have permission to perform this action."
	case errors.Is(err, ErrIdempotencyConflict):
		return "This request was already processed."
	default:
		return "An unexpected error occurred. Please try again."
	}
}
