package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RegistrationStatus is the state of a registration in the ledger.
type RegistrationStatus string

const (
	StatusPending   RegistrationStatus = "pending"
	StatusConfirmed RegistrationStatus = "confirmed"
	StatusCancelled RegistrationStatus = "cancelled"
	StatusAttended  RegistrationStatus = "attended"
	StatusNoShow    RegistrationStatus = "no-show"
)

// Valid reports whether s is a known registration status.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusAttended, StatusNoShow:
		return true
	}
	return false
}

// Active reports whether the registration blocks the user from registering again.
func (s RegistrationStatus) Active() bool {
	return s != StatusCancelled
}

// Counted reports whether the registration is included in Event.CurrentAttendees.
func (s RegistrationStatus) Counted() bool {
	return s == StatusConfirmed || s == StatusAttended
}

// PaymentStatus is the payment sub-state of a registration for a paid event.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// CancelReason records who or what cancelled a registration.
type CancelReason string

const (
	CancelByUser          CancelReason = "user"
	CancelByAdmin         CancelReason = "admin"
	CancelPaymentFailed   CancelReason = "payment_failed"
	CancelPaymentRefunded CancelReason = "payment_refunded"
	CancelExpired         CancelReason = "expired"
)

// Contact is the participant contact snapshot taken at registration time.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Registration is one user's registration for one event.
// swagger:model Registration
type Registration struct {
	ID            string             `json:"id"`
	EventID       string             `json:"event_id"`
	UserID        string             `json:"user_id"`
	Status        RegistrationStatus `json:"status"`
	PaymentStatus PaymentStatus      `json:"payment_status"`
	Name          string             `json:"name"`
	Email         string             `json:"email"`
	Phone         string             `json:"phone"`
	Notes         string             `json:"notes,omitempty"`
	Amount        decimal.Decimal    `json:"amount"`
	Currency      string             `json:"currency"`
	PaymentMethod string             `json:"payment_method,omitempty"`
	PaymentID     string             `json:"payment_id,omitempty"`
	RegisteredAt  time.Time          `json:"registered_at"`
	PaidAt        *time.Time         `json:"paid_at,omitempty"`
	CheckedInAt   *time.Time         `json:"checked_in_at,omitempty"`
	CancelledAt   *time.Time         `json:"cancelled_at,omitempty"`
	CancelReason  CancelReason       `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// NewRegistration builds a registration for event at now with the price locked in.
// ID is set by the caller or the repository.
func NewRegistration(event *Event, userID string, contact Contact, notes string, now time.Time) *Registration {
	return &Registration{
		EventID:      event.ID,
		UserID:       userID,
		Name:         contact.Name,
		Email:        contact.Email,
		Phone:        contact.Phone,
		Notes:        notes,
		Amount:       event.CurrentPrice(now),
		Currency:     event.Currency,
		RegisteredAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// SlotDelta is the change a ledger write applies to an event's counters.
type SlotDelta struct {
	Attendees int
	Held      int
}

// IsZero reports whether the delta leaves the counters untouched.
func (d SlotDelta) IsZero() bool {
	return d.Attendees == 0 && d.Held == 0
}

// transitions is the registration state machine. Each allowed edge carries its counter effect.
var transitions = map[RegistrationStatus]map[RegistrationStatus]SlotDelta{
	StatusPending: {
		StatusConfirmed: {Attendees: 1, Held: -1},
		StatusCancelled: {Held: -1},
	},
	StatusConfirmed: {
		StatusCancelled: {Attendees: -1},
		StatusAttended:  {},
		StatusNoShow:    {Attendees: -1},
	},
	StatusAttended: {
		StatusCancelled: {Attendees: -1},
	},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to RegistrationStatus) bool {
	_, ok := transitions[from][to]
	return ok
}

// InitialDelta is the counter effect of inserting a registration in status s.
func InitialDelta(s RegistrationStatus) SlotDelta {
	switch s {
	case StatusConfirmed:
		return SlotDelta{Attendees: 1}
	case StatusPending:
		return SlotDelta{Held: 1}
	}
	return SlotDelta{}
}

// InitialState resolves the starting state of a new registration.
func InitialState(isPaid, settled bool) (RegistrationStatus, PaymentStatus) {
	if !isPaid || settled {
		return StatusConfirmed, PaymentCompleted
	}
	return StatusPending, PaymentPending
}

// StateChange is a conditional ledger write: it applies only while the registration is still in From.
// From == To is a payment-only update and never touches the counters.
type StateChange struct {
	From          RegistrationStatus
	To            RegistrationStatus
	PaymentStatus PaymentStatus
	PaymentID     string
	CancelReason  CancelReason
	At            time.Time
}

// Delta validates the change against the state machine and returns its counter effect.
func (c StateChange) Delta() (SlotDelta, error) {
	if c.From == c.To {
		return SlotDelta{}, nil
	}
	d, ok := transitions[c.From][c.To]
	if !ok {
		return SlotDelta{}, &TransitionError{From: c.From, To: c.To}
	}
	return d, nil
}

// Apply mutates r to reflect c. Callers must have checked r.Status == c.From.
func (r *Registration) Apply(c StateChange) {
	at := c.At
	r.Status = c.To
	if c.PaymentStatus != "" {
		if c.PaymentStatus == PaymentCompleted && r.PaymentStatus != PaymentCompleted {
			r.PaidAt = &at
		}
		r.PaymentStatus = c.PaymentStatus
	}
	if c.PaymentID != "" {
		r.PaymentID = c.PaymentID
	}
	if c.From != c.To {
		switch c.To {
		case StatusAttended:
			r.CheckedInAt = &at
		case StatusCancelled:
			r.CancelledAt = &at
			r.CancelReason = c.CancelReason
		}
	}
	r.UpdatedAt = at
}

// PaymentAfterCancellation reports whether r holds a completed payment that
// arrived once r was already cancelled, leaving money with no seat behind it.
func (r *Registration) PaymentAfterCancellation() bool {
	return r.Status == StatusCancelled && r.PaymentStatus == PaymentCompleted &&
		r.PaidAt != nil && r.CancelledAt != nil && !r.PaidAt.Before(*r.CancelledAt)
}

// ResolvePayment maps a payment outcome reported for r onto a state change.
// ok is false when the outcome is already reflected or r has moved on, which makes callbacks idempotent.
func ResolvePayment(r *Registration, next PaymentStatus, paymentID string, now time.Time) (change StateChange, ok bool, err error) {
	if !next.Valid() || next == PaymentPending {
		return StateChange{}, false, ErrInvalidInput
	}
	if r.PaymentStatus == next {
		return StateChange{}, false, nil
	}
	change = StateChange{From: r.Status, PaymentStatus: next, PaymentID: paymentID, At: now}
	switch next {
	case PaymentCompleted:
		switch {
		case r.Status == StatusPending:
			change.To = StatusConfirmed
		case r.Status == StatusCancelled && r.PaymentStatus != PaymentRefunded:
			// Money arrived after the hold was released; record it so it can be refunded.
			change.To = StatusCancelled
		default:
			return StateChange{}, false, nil
		}
	case PaymentFailed:
		switch {
		case r.Status == StatusPending:
			change.To = StatusCancelled
			change.CancelReason = CancelPaymentFailed
		case r.Status == StatusCancelled && r.PaymentStatus == PaymentPending:
			change.To = StatusCancelled
		default:
			return StateChange{}, false, nil
		}
	case PaymentRefunded:
		switch r.Status {
		case StatusPending, StatusConfirmed, StatusAttended:
			change.To = StatusCancelled
			change.CancelReason = CancelPaymentRefunded
		default:
			change.To = r.Status
		}
	}
	return change, true, nil
}

// PaymentIntent is the optional payment hint sent with a registration request.
type PaymentIntent struct {
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

// PaymentAuthorization is the gateway's answer at registration time.
type PaymentAuthorization struct {
	PaymentID string
	Settled   bool
}

// PaymentAuthorizer consults the payment provider when a paid registration is created.
// It must not block on the provider's asynchronous completion.
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, reg *Registration, intent PaymentIntent) (*PaymentAuthorization, error)
}

// RegistrationFilter narrows an operator listing of an event's registrations.
type RegistrationFilter struct {
	Status RegistrationStatus
}

// MyRegistrationsFilter narrows a user's own registration listing.
// Upcoming keeps events starting at or after Now; Past keeps events starting before Now.
type MyRegistrationsFilter struct {
	Status   RegistrationStatus
	Upcoming bool
	Past     bool
	Now      time.Time
}

// RegistrationRepository reads the ledger. All writes go through CapacityCoordinator.
type RegistrationRepository interface {
	GetByID(ctx context.Context, id string) (*Registration, error)
	GetActiveByEventAndUser(ctx context.Context, eventID, userID string) (*Registration, error)
	ListByEvent(ctx context.Context, eventID string, filter RegistrationFilter, page PaginationParams) ([]*Registration, int, error)
	ListByUser(ctx context.Context, userID string, filter MyRegistrationsFilter) ([]*Registration, error)
	ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]*Registration, error)
}

// CapacityCoordinator owns every write that can move an event's counters.
// Reserve inserts reg and takes its slot in one atomic unit; it fails with ErrEventFull when no slot is
// free at write time and ErrAlreadyRegistered when the user already has an active registration.
// Transition applies change only while the registration is still in change.From, adjusting the
// counters in the same unit; it fails with a *TransitionError when the registration has moved on.
type CapacityCoordinator interface {
	Reserve(ctx context.Context, reg *Registration) error
	Transition(ctx context.Context, registrationID string, change StateChange) (*Registration, error)
}

// RegistrationWithEvent bundles a registration with its related event.
type RegistrationWithEvent struct {
	Registration *Registration `json:"registration"`
	Event        *Event        `json:"event"`
}

// RegisterInput carries a registration request after identity defaults are applied.
type RegisterInput struct {
	EventID string
	UserID  string
	Contact Contact
	Notes   string
	Payment PaymentIntent
}

// RegisterResult is the outcome of a successful registration.
// swagger:model RegisterResult
type RegisterResult struct {
	Registration    *Registration   `json:"registration"`
	PaymentRequired bool            `json:"payment_required"`
	PaymentAmount   decimal.Decimal `json:"payment_amount"`
	Currency        string          `json:"currency"`
}

// RegistrationStatusView answers "am I registered for this event".
// swagger:model RegistrationStatusView
type RegistrationStatusView struct {
	IsRegistered bool          `json:"is_registered"`
	Registration *Registration `json:"registration"`
}

// RegistrationService is the attendee- and operator-facing registration API.
type RegistrationService interface {
	Register(ctx context.Context, in RegisterInput) (*RegisterResult, error)
	Cancel(ctx context.Context, eventID, userID string) (*Registration, error)
	CancelByOperator(ctx context.Context, eventID, registrationID string) (*Registration, error)
	GetStatus(ctx context.Context, eventID, userID string) (*RegistrationStatusView, error)
	GetAvailability(ctx context.Context, eventID string) (*Availability, error)
	ListEventRegistrations(ctx context.Context, eventID string, filter RegistrationFilter, page PaginationParams) ([]*Registration, int, error)
	ListMyRegistrations(ctx context.Context, userID string, filter MyRegistrationsFilter) ([]*RegistrationWithEvent, error)
	UpdatePaymentStatus(ctx context.Context, eventID, registrationID string, status PaymentStatus, paymentID string) (*Registration, error)
}

// CheckInService moves confirmed registrations to attended or no-show.
type CheckInService interface {
	CheckIn(ctx context.Context, eventID, registrationID string) (*Registration, error)
	MarkNoShow(ctx context.Context, eventID, registrationID string) (*Registration, error)
}
