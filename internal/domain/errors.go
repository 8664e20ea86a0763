package domain

import "fmt"

// Error types for consistent error handling across the lead service.
// Every lifecycle failure is one of these; callers match them with errors.As.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrAlreadyClaimed indicates a claim attempt on a lead someone already owns.
type ErrAlreadyClaimed struct {
	LeadID      int64
	ClaimedByID int64
}

func (e *ErrAlreadyClaimed) Error() string {
	return fmt.Sprintf("lead %d already claimed by principal %d", e.LeadID, e.ClaimedByID)
}

// ErrNotClaimed indicates progress or contact tracking on an unclaimed lead.
type ErrNotClaimed struct {
	LeadID int64
}

func (e *ErrNotClaimed) Error() string {
	return fmt.Sprintf("lead %d is not claimed", e.LeadID)
}

// ErrPrecedingStepIncomplete indicates a progress step was set before the step it depends on.
type ErrPrecedingStepIncomplete struct {
	Step     ProgressStep
	Requires ProgressStep
}

func (e *ErrPrecedingStepIncomplete) Error() string {
	return fmt.Sprintf("cannot set %s: %s is incomplete", e.Step, e.Requires)
}

// ErrMissingContactNotes indicates a contact log without usable notes.
type ErrMissingContactNotes struct{}

func (e *ErrMissingContactNotes) Error() string {
	return "contact notes are required"
}

// ErrInvalidMethod indicates a contact method outside the supported set.
type ErrInvalidMethod struct {
	Method string
}

func (e *ErrInvalidMethod) Error() string {
	return fmt.Sprintf("invalid contact method: %q", e.Method)
}

// ErrForbidden indicates the actor lacks permission for the operation.
type ErrForbidden struct {
	Action   string
	Required Permission
}

func (e *ErrForbidden) Error() string {
	if e.Required != "" {
		return fmt.Sprintf("forbidden: %s requires %s", e.Action, e.Required)
	}
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrConcurrentModification indicates a conditional write lost against a concurrent writer.
type ErrConcurrentModification struct {
	Resource string
	ID       string
}

func (e *ErrConcurrentModification) Error() string {
	return fmt.Sprintf("concurrent modification of %s %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrorKind returns a stable, machine-readable label for err.
// Used for metrics labels and the "code" field of HTTP error bodies.
func ErrorKind(err error) string {
	switch err.(type) {
	case nil:
		return ""
	case *ErrNotFound:
		return "not_found"
	case *ErrAlreadyClaimed:
		return "already_claimed"
	case *ErrNotClaimed:
		return "not_claimed"
	case *ErrPrecedingStepIncomplete:
		return "preceding_step_incomplete"
	case *ErrMissingContactNotes:
		return "missing_contact_notes"
	case *ErrInvalidMethod:
		return "invalid_method"
	case *ErrForbidden:
		return "forbidden"
	case *ErrConcurrentModification:
		return "concurrent_modification"
	case *ErrValidation:
		return "validation"
	case *ErrUnauthorized:
		return "unauthorized"
	case *ErrCircuitOpen:
		return "circuit_open"
	case *ErrExternalService:
		return "external_service"
	}
	if u, ok := err.(interface{ Unwrap() error }); ok {
		return ErrorKind(u.Unwrap())
	}
	return "internal"
}
