package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by repositories, services and controllers.
var (
	ErrNotFound             = errors.New("not found")
	ErrEventNotFound        = fmt.Errorf("event %w", ErrNotFound)
	ErrRegistrationNotFound = fmt.Errorf("registration %w", ErrNotFound)
	ErrInvalidInput         = errors.New("invalid input")
	ErrForbidden            = errors.New("forbidden")
	ErrAlreadyRegistered    = errors.New("already registered for this event")
	ErrEventFull            = errors.New("event is full")
	// ErrConcurrentUpdate means a conditional write lost to a concurrent writer and retries were exhausted.
	ErrConcurrentUpdate = errors.New("concurrent update")
	// ErrPaymentAfterCancellation means a payment completed for a registration that was already cancelled.
	ErrPaymentAfterCancellation = errors.New("payment completed after the registration was cancelled")
)

// ClosedReason is the machine-readable reason an event does not accept a registration.
type ClosedReason string

const (
	ReasonInactive       ClosedReason = "inactive"
	ReasonCancelled      ClosedReason = "cancelled"
	ReasonEnded          ClosedReason = "ended"
	ReasonFull           ClosedReason = "full"
	ReasonDeadlinePassed ClosedReason = "deadline_passed"
)

// RegistrationClosedError is returned when the catalog rules reject a registration.
type RegistrationClosedError struct {
	Reason ClosedReason
}

func (e *RegistrationClosedError) Error() string {
	switch e.Reason {
	case ReasonInactive:
		return "event is not active"
	case ReasonCancelled:
		return "event has been cancelled"
	case ReasonEnded:
		return "event has ended"
	case ReasonFull:
		return "event is full"
	case ReasonDeadlinePassed:
		return "registration deadline has passed"
	}
	return "registration is closed"
}

// Is lets errors.Is(err, ErrEventFull) match a full-capacity rejection.
func (e *RegistrationClosedError) Is(target error) bool {
	return target == ErrEventFull && e.Reason == ReasonFull
}

// TransitionError is returned when a registration cannot move from its current state.
type TransitionError struct {
	Action string
	From   RegistrationStatus
	To     RegistrationStatus
}

func (e *TransitionError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("cannot %s, state is %s", e.Action, e.From)
	}
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}
