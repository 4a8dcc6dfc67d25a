// Package pipeline orchestrates one handler invocation end to end: the
// idempotency probe, structural validation, authorization, hierarchy and
// optimistic-lock checks, the transactional mutation, and the response
// envelope, in that fixed precedence order.
package pipeline

import "fmt"

// Kind is the closed set of reasons a handler invocation can fail. Kinds are
// meanings, not Go types — every failure path in this package produces
// exactly one Kind, and WireCode maps it to a wire error code.
type Kind int

const (
	// Internal covers storage/transport failures; never include details
	// that could leak schema or data in the message surfaced to clients.
	Internal Kind = iota
	Validation
	Unauthorized
	NotFound
	Conflict
	DeleteBlocked
	RateLimited
	AuthFailed
	ProtocolError
)

// WireCode maps a Kind to the code carried on the wire Error event.
func (k Kind) WireCode() string {
	switch k {
	case Validation:
		return "VALIDATION_ERROR"
	case Unauthorized:
		return "UNAUTHORIZED"
	case NotFound:
		return "NOT_FOUND"
	case Conflict:
		return "CONFLICT"
	case DeleteBlocked:
		return "DELETE_BLOCKED"
	case RateLimited:
		return "RATE_LIMITED"
	case AuthFailed:
		return "AUTH_FAILED"
	case ProtocolError:
		return "PROTOCOL_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error is a Kind-tagged failure carrying whatever extra context the wire
// Error event needs for that kind (Field for Validation, CurrentVersion for
// Conflict).
type Error struct {
	Kind           Kind
	Message        string
	Field          string
	CurrentVersion *int
	Cause          error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func ValidationError(field, message string) *Error {
	return &Error{Kind: Validation, Field: field, Message: message}
}

func UnauthorizedError(message string) *Error {
	return &Error{Kind: Unauthorized, Message: message}
}

func NotFoundError(message string) *Error {
	return &Error{Kind: NotFound, Message: message}
}

func ConflictError(currentVersion int) *Error {
	v := currentVersion
	return &Error{Kind: Conflict, Message: "version mismatch", CurrentVersion: &v}
}

func DeleteBlockedError(message string) *Error {
	return &Error{Kind: DeleteBlocked, Message: message}
}

func InternalError(cause error) *Error {
	return &Error{Kind: Internal, Message: "internal error", Cause: cause}
}
