package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName indicates a catalog or registry name collision on creation.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrPermissionDenied indicates the actor lacks a required permission.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidTransition indicates a workflow target state unknown to the
	// entity type's state registry.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// UserSafeMessage returns a message suitable for API clients. Sentinel errors
// carry no internals; anything else collapses to a generic message.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "the requested resource was not found"
	case errors.Is(err, ErrDuplicateName):
		return "a record with that name already exists"
	case errors.Is(err, ErrPermissionDenied):
		return "you do not have permission to perform this action"
	case errors.Is(err, ErrInvalidTransition):
		return "the requested state is not valid for this entity"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid credentials"
	default:
		return "an unexpected error occurred"
	}
}
