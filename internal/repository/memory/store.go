// Package memory is an in-process implementation of the registration ledger.
// It backs STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventregistration/internal/domain"
)

// Store holds events and registrations behind one mutex, so a Reserve or Transition
// observes and updates the counters and the ledger as a single step.
type Store struct {
	mu            sync.Mutex
	events        map[string]*domain.Event
	registrations map[string]*domain.Registration
}

func NewStore() *Store {
	return &Store{
		events:        make(map[string]*domain.Event),
		registrations: make(map[string]*domain.Registration),
	}
}

// PutEvent inserts or replaces a catalog event. Counters on ev are kept as given.
func (s *Store) PutEvent(ev *domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ev
	s.events[ev.ID] = &cp
}

// Events returns the store's EventRepository view.
func (s *Store) Events() domain.EventRepository { return eventRepository{s} }

// Registrations returns the store's RegistrationRepository view.
func (s *Store) Registrations() domain.RegistrationRepository { return registrationRepository{s} }

// Coordinator returns the store's CapacityCoordinator view.
func (s *Store) Coordinator() domain.CapacityCoordinator { return coordinator{s} }

func cloneEvent(ev *domain.Event) *domain.Event {
	cp := *ev
	return &cp
}

func cloneRegistration(r *domain.Registration) *domain.Registration {
	cp := *r
	return &cp
}

type eventRepository struct{ s *Store }

func (r eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ev, ok := r.s.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return cloneEvent(ev), nil
}

func (r eventRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.Event, 0, len(ids))
	for _, id := range ids {
		if ev, ok := r.s.events[id]; ok {
			out = append(out, cloneEvent(ev))
		}
	}
	return out, nil
}

type registrationRepository struct{ s *Store }

func (r registrationRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reg, ok := r.s.registrations[id]
	if !ok {
		return nil, domain.ErrRegistrationNotFound
	}
	return cloneRegistration(reg), nil
}

func (r registrationRepository) GetActiveByEventAndUser(ctx context.Context, eventID, userID string) (*domain.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if reg := r.s.activeLocked(eventID, userID); reg != nil {
		return cloneRegistration(reg), nil
	}
	return nil, domain.ErrRegistrationNotFound
}

func (r registrationRepository) ListByEvent(ctx context.Context, eventID string, filter domain.RegistrationFilter, page domain.PaginationParams) ([]*domain.Registration, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var matched []*domain.Registration
	for _, reg := range r.s.registrations {
		if reg.EventID != eventID {
			continue
		}
		if filter.Status != "" && reg.Status != filter.Status {
			continue
		}
		matched = append(matched, reg)
	}
	sortByRegisteredAt(matched)

	total := len(matched)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if page.Limit <= 0 || end > total {
		end = total
	}
	out := make([]*domain.Registration, 0, end-start)
	for _, reg := range matched[start:end] {
		out = append(out, cloneRegistration(reg))
	}
	return out, total, nil
}

func (r registrationRepository) ListByUser(ctx context.Context, userID string, filter domain.MyRegistrationsFilter) ([]*domain.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	timeFiltered := filter.Upcoming != filter.Past
	out := []*domain.Registration{}
	startAt := map[string]time.Time{}
	for _, reg := range r.s.registrations {
		if reg.UserID != userID {
			continue
		}
		if filter.Status != "" && reg.Status != filter.Status {
			continue
		}
		ev, ok := r.s.events[reg.EventID]
		if !ok {
			continue
		}
		if timeFiltered {
			upcoming := !ev.StartAt.Before(filter.Now)
			if upcoming != filter.Upcoming {
				continue
			}
		}
		startAt[reg.EventID] = ev.StartAt
		out = append(out, cloneRegistration(reg))
	}
	// Soonest event first, newest registration first within an event.
	sort.Slice(out, func(i, j int) bool {
		si, sj := startAt[out[i].EventID], startAt[out[j].EventID]
		if !si.Equal(sj) {
			return si.Before(sj)
		}
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.After(out[j].RegisteredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r registrationRepository) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]*domain.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Registration
	for _, reg := range r.s.registrations {
		if reg.Status == domain.StatusPending && reg.PaymentStatus == domain.PaymentPending && reg.RegisteredAt.Before(before) {
			out = append(out, cloneRegistration(reg))
		}
	}
	sortByRegisteredAt(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortByRegisteredAt(regs []*domain.Registration) {
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].RegisteredAt.Equal(regs[j].RegisteredAt) {
			return regs[i].ID < regs[j].ID
		}
		return regs[i].RegisteredAt.Before(regs[j].RegisteredAt)
	})
}

func (s *Store) activeLocked(eventID, userID string) *domain.Registration {
	for _, reg := range s.registrations {
		if reg.EventID == eventID && reg.UserID == userID && reg.Status.Active() {
			return reg
		}
	}
	return nil
}

type coordinator struct{ s *Store }

func (c coordinator) Reserve(ctx context.Context, reg *domain.Registration) error {
	delta := domain.InitialDelta(reg.Status)
	if delta.IsZero() {
		return fmt.Errorf("%w: cannot reserve a slot for status %s", domain.ErrInvalidInput, reg.Status)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	ev, ok := c.s.events[reg.EventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	if ok, reason := ev.CanRegister(reg.RegisteredAt); !ok {
		return &domain.RegistrationClosedError{Reason: reason}
	}
	if c.s.activeLocked(reg.EventID, reg.UserID) != nil {
		return domain.ErrAlreadyRegistered
	}
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if _, exists := c.s.registrations[reg.ID]; exists {
		return fmt.Errorf("%w: registration %s already exists", domain.ErrInvalidInput, reg.ID)
	}

	ev.CurrentAttendees += delta.Attendees
	ev.HeldSlots += delta.Held
	ev.UpdatedAt = reg.RegisteredAt
	c.s.registrations[reg.ID] = cloneRegistration(reg)
	return nil
}

func (c coordinator) Transition(ctx context.Context, registrationID string, change domain.StateChange) (*domain.Registration, error) {
	delta, err := change.Delta()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	reg, ok := c.s.registrations[registrationID]
	if !ok {
		return nil, domain.ErrRegistrationNotFound
	}
	if reg.Status != change.From {
		return nil, &domain.TransitionError{From: reg.Status, To: change.To}
	}
	if !delta.IsZero() {
		ev, ok := c.s.events[reg.EventID]
		if !ok {
			return nil, domain.ErrEventNotFound
		}
		attendees, held := ev.CurrentAttendees+delta.Attendees, ev.HeldSlots+delta.Held
		if attendees < 0 || held < 0 {
			return nil, fmt.Errorf("adjust counters for event %s: counter would go negative", ev.ID)
		}
		ev.CurrentAttendees, ev.HeldSlots = attendees, held
		ev.UpdatedAt = change.At
	}
	reg.Apply(change)
	return cloneRegistration(reg), nil
}
