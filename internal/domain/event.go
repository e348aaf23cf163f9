package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventStatus is the lifecycle status of an event.
type EventStatus string

const (
	EventStatusUpcoming  EventStatus = "upcoming"
	EventStatusOngoing   EventStatus = "ongoing"
	EventStatusPast      EventStatus = "past"
	EventStatusCancelled EventStatus = "cancelled"
)

// Valid reports whether s is a known event status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusUpcoming, EventStatusOngoing, EventStatusPast, EventStatusCancelled:
		return true
	}
	return false
}

// Event is the registration-relevant view of a catalog event.
// CurrentAttendees and HeldSlots are owned by the CapacityCoordinator; nothing else writes them.
// swagger:model Event
type Event struct {
	ID                   string           `json:"id"`
	Title                string           `json:"title"`
	StartAt              time.Time        `json:"start_at"`
	EndAt                *time.Time       `json:"end_at,omitempty"`
	RegistrationDeadline *time.Time       `json:"registration_deadline,omitempty"`
	MaxAttendees         *int             `json:"max_attendees,omitempty"`
	CurrentAttendees     int              `json:"current_attendees"`
	HeldSlots            int              `json:"held_slots"`
	IsPaid               bool             `json:"is_paid"`
	BasePrice            decimal.Decimal  `json:"base_price"`
	Currency             string           `json:"currency"`
	EarlyBirdPrice       *decimal.Decimal `json:"early_bird_price,omitempty"`
	EarlyBirdEndAt       *time.Time       `json:"early_bird_end_at,omitempty"`
	Status               EventStatus      `json:"status"`
	IsActive             bool             `json:"is_active"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// Occupied is the number of slots taken: confirmed/attended registrations plus pending holds.
func (e *Event) Occupied() int {
	return e.CurrentAttendees + e.HeldSlots
}

// Remaining returns the free slots, or nil when capacity is unlimited.
func (e *Event) Remaining() *int {
	if e.MaxAttendees == nil {
		return nil
	}
	r := *e.MaxAttendees - e.Occupied()
	if r < 0 {
		r = 0
	}
	return &r
}

// IsFull reports whether a capacity is set and every slot is taken.
func (e *Event) IsFull() bool {
	return e.MaxAttendees != nil && e.Occupied() >= *e.MaxAttendees
}

// CanRegister reports whether a new registration is accepted at now. When it is not,
// the returned reason says why.
func (e *Event) CanRegister(now time.Time) (bool, ClosedReason) {
	switch {
	case !e.IsActive:
		return false, ReasonInactive
	case e.Status == EventStatusCancelled:
		return false, ReasonCancelled
	case e.Status == EventStatusPast:
		return false, ReasonEnded
	case e.IsFull():
		return false, ReasonFull
	case e.RegistrationDeadline != nil && now.After(*e.RegistrationDeadline):
		return false, ReasonDeadlinePassed
	}
	return true, ""
}

// IsEarlyBird reports whether the early-bird price applies at now. The cutoff is inclusive.
func (e *Event) IsEarlyBird(now time.Time) bool {
	return e.IsPaid && e.EarlyBirdPrice != nil && e.EarlyBirdEndAt != nil && !now.After(*e.EarlyBirdEndAt)
}

// CurrentPrice resolves the price charged for a registration made at now.
func (e *Event) CurrentPrice(now time.Time) decimal.Decimal {
	if !e.IsPaid {
		return decimal.Zero
	}
	if e.IsEarlyBird(now) {
		return *e.EarlyBirdPrice
	}
	return e.BasePrice
}

// Availability is a point-in-time summary of whether and at what price an event accepts registrations.
// swagger:model Availability
type Availability struct {
	EventID          string          `json:"event_id"`
	CanRegister      bool            `json:"can_register"`
	Reason           ClosedReason    `json:"reason,omitempty"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	Currency         string          `json:"currency"`
	IsEarlyBird      bool            `json:"is_early_bird"`
	CurrentAttendees int             `json:"current_attendees"`
	HeldSlots        int             `json:"held_slots"`
	MaxAttendees     *int            `json:"max_attendees,omitempty"`
	Remaining        *int            `json:"remaining,omitempty"`
}

// AvailabilityAt evaluates the catalog rules for e at now.
func (e *Event) AvailabilityAt(now time.Time) *Availability {
	ok, reason := e.CanRegister(now)
	return &Availability{
		EventID:          e.ID,
		CanRegister:      ok,
		Reason:           reason,
		CurrentPrice:     e.CurrentPrice(now),
		Currency:         e.Currency,
		IsEarlyBird:      e.IsEarlyBird(now),
		CurrentAttendees: e.CurrentAttendees,
		HeldSlots:        e.HeldSlots,
		MaxAttendees:     e.MaxAttendees,
		Remaining:        e.Remaining(),
	}
}

// EventRepository reads catalog events. Event CRUD lives outside this service.
type EventRepository interface {
	GetByID(ctx context.Context, id string) (*Event, error)
	ListByIDs(ctx context.Context, ids []string) ([]*Event, error)
}
