package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventregistration/internal/domain"
	"eventregistration/internal/metrics"
)

// staleStateAttempts bounds how often a write is re-planned after losing a race on the registration's state.
const staleStateAttempts = 3

type registrationService struct {
	events        domain.EventRepository
	registrations domain.RegistrationRepository
	coordinator   domain.CapacityCoordinator
	payments      domain.PaymentAuthorizer
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// NewRegistrationService creates a RegistrationService. All counter-moving writes go through coordinator.
func NewRegistrationService(
	events domain.EventRepository,
	registrations domain.RegistrationRepository,
	coordinator domain.CapacityCoordinator,
	payments domain.PaymentAuthorizer,
	m *metrics.Metrics,
	logger *slog.Logger,
) domain.RegistrationService {
	return &registrationService{
		events:        events,
		registrations: registrations,
		coordinator:   coordinator,
		payments:      payments,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

func (s *registrationService) Register(ctx context.Context, in domain.RegisterInput) (*domain.RegisterResult, error) {
	in.Contact.Name = strings.TrimSpace(in.Contact.Name)
	in.Contact.Email = strings.TrimSpace(in.Contact.Email)
	if in.EventID == "" || in.UserID == "" {
		return nil, fmt.Errorf("%w: event and user are required", domain.ErrInvalidInput)
	}
	if in.Contact.Name == "" || in.Contact.Email == "" {
		return nil, fmt.Errorf("%w: name and email are required", domain.ErrInvalidInput)
	}

	// Fast path; the storage-level unique index is what actually enforces this under concurrency.
	if _, err := s.registrations.GetActiveByEventAndUser(ctx, in.EventID, in.UserID); err == nil {
		s.metrics.Registration("duplicate")
		return nil, domain.ErrAlreadyRegistered
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get active registration: %w", err)
	}

	event, err := s.events.GetByID(ctx, in.EventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	now := s.now()
	if ok, reason := event.CanRegister(now); !ok {
		s.metrics.Registration(outcomeForReason(reason))
		return nil, &domain.RegistrationClosedError{Reason: reason}
	}

	reg := domain.NewRegistration(event, in.UserID, in.Contact, in.Notes, now)
	reg.ID = uuid.NewString()
	reg.PaymentMethod = in.Payment.Method

	settled := false
	if event.IsPaid {
		auth, err := s.payments.Authorize(ctx, reg, in.Payment)
		if err != nil {
			s.metrics.Registration("error")
			return nil, fmt.Errorf("authorize payment: %w", err)
		}
		settled = auth.Settled
		reg.PaymentID = auth.PaymentID
	}
	reg.Status, reg.PaymentStatus = domain.InitialState(event.IsPaid, settled)
	if event.IsPaid && settled {
		paidAt := now
		reg.PaidAt = &paidAt
	}

	if err := s.coordinator.Reserve(ctx, reg); err != nil {
		if settled && reg.PaymentID != "" {
			s.logger.WarnContext(ctx, "settled payment not attached to a registration",
				"payment_id", reg.PaymentID, "event_id", reg.EventID, "user_id", reg.UserID,
				"amount", reg.Amount.String(), "err", err)
		}
		var closed *domain.RegistrationClosedError
		switch {
		case errors.As(err, &closed):
			s.metrics.Registration(outcomeForReason(closed.Reason))
			return nil, err
		case errors.Is(err, domain.ErrAlreadyRegistered):
			s.metrics.Registration("duplicate")
			return nil, err
		case errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
		s.metrics.Registration("error")
		return nil, fmt.Errorf("reserve slot: %w", err)
	}
	s.metrics.Registration(string(reg.Status))
	s.logger.InfoContext(ctx, "registration created",
		"registration_id", reg.ID, "event_id", reg.EventID, "user_id", reg.UserID,
		"status", reg.Status, "amount", reg.Amount.String())

	return &domain.RegisterResult{
		Registration:    reg,
		PaymentRequired: event.IsPaid && reg.Status == domain.StatusPending,
		PaymentAmount:   reg.Amount,
		Currency:        reg.Currency,
	}, nil
}

func outcomeForReason(reason domain.ClosedReason) string {
	if reason == domain.ReasonFull {
		return "full"
	}
	return "closed"
}

func (s *registrationService) Cancel(ctx context.Context, eventID, userID string) (*domain.Registration, error) {
	reg, err := s.registrations.GetActiveByEventAndUser(ctx, eventID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get active registration: %w", err)
	}
	updated, err := s.cancel(ctx, reg, domain.CancelByUser)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// A concurrent writer cancelled it first.
		return nil, domain.ErrRegistrationNotFound
	}
	return updated, nil
}

func (s *registrationService) CancelByOperator(ctx context.Context, eventID, registrationID string) (*domain.Registration, error) {
	reg, err := s.loadForEvent(ctx, eventID, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.Status == domain.StatusCancelled {
		return reg, nil
	}
	updated, err := s.cancel(ctx, reg, domain.CancelByAdmin)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return s.registrations.GetByID(ctx, registrationID)
	}
	return updated, nil
}

// cancel moves reg to cancelled from whatever state it is observed in. It returns a nil
// registration without error when another writer cancelled it first.
func (s *registrationService) cancel(ctx context.Context, reg *domain.Registration, reason domain.CancelReason) (*domain.Registration, error) {
	from := reg.Status
	for attempt := 1; ; attempt++ {
		change := domain.StateChange{From: from, To: domain.StatusCancelled, CancelReason: reason, At: s.now()}
		updated, err := s.coordinator.Transition(ctx, reg.ID, change)
		if err == nil {
			s.metrics.Transition(string(from), string(domain.StatusCancelled))
			s.logger.InfoContext(ctx, "registration cancelled",
				"registration_id", reg.ID, "event_id", reg.EventID, "from", from, "reason", reason)
			return updated, nil
		}
		var terr *domain.TransitionError
		if !errors.As(err, &terr) || terr.From == from || attempt == staleStateAttempts {
			return nil, err
		}
		if terr.From == domain.StatusCancelled {
			return nil, nil
		}
		from = terr.From
	}
}

func (s *registrationService) GetStatus(ctx context.Context, eventID, userID string) (*domain.RegistrationStatusView, error) {
	reg, err := s.registrations.GetActiveByEventAndUser(ctx, eventID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.RegistrationStatusView{IsRegistered: false}, nil
		}
		return nil, fmt.Errorf("get active registration: %w", err)
	}
	return &domain.RegistrationStatusView{IsRegistered: true, Registration: reg}, nil
}

func (s *registrationService) GetAvailability(ctx context.Context, eventID string) (*domain.Availability, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event.AvailabilityAt(s.now()), nil
}

func (s *registrationService) ListEventRegistrations(ctx context.Context, eventID string, filter domain.RegistrationFilter, page domain.PaginationParams) ([]*domain.Registration, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, filter.Status)
	}
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, 0, domain.ErrEventNotFound
		}
		return nil, 0, fmt.Errorf("get event: %w", err)
	}
	regs, total, err := s.registrations.ListByEvent(ctx, eventID, filter, page)
	if err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	if regs == nil {
		regs = []*domain.Registration{}
	}
	return regs, total, nil
}

func (s *registrationService) ListMyRegistrations(ctx context.Context, userID string, filter domain.MyRegistrationsFilter) ([]*domain.RegistrationWithEvent, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, filter.Status)
	}
	if filter.Now.IsZero() {
		filter.Now = s.now()
	}
	regs, err := s.registrations.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	result := make([]*domain.RegistrationWithEvent, 0, len(regs))
	if len(regs) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(regs))
	seen := make(map[string]struct{}, len(regs))
	for _, reg := range regs {
		if _, ok := seen[reg.EventID]; !ok {
			seen[reg.EventID] = struct{}{}
			ids = append(ids, reg.EventID)
		}
	}
	events, err := s.events.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	eventsByID := make(map[string]*domain.Event, len(events))
	for _, ev := range events {
		eventsByID[ev.ID] = ev
	}

	for _, reg := range regs {
		ev, ok := eventsByID[reg.EventID]
		if !ok {
			// Event removed from the catalog; the registration has nothing to show against.
			continue
		}
		result = append(result, &domain.RegistrationWithEvent{Registration: reg, Event: ev})
	}
	return result, nil
}

func (s *registrationService) UpdatePaymentStatus(ctx context.Context, eventID, registrationID string, status domain.PaymentStatus, paymentID string) (*domain.Registration, error) {
	if !status.Valid() || status == domain.PaymentPending {
		return nil, fmt.Errorf("%w: unsupported payment status %q", domain.ErrInvalidInput, status)
	}
	for attempt := 1; ; attempt++ {
		reg, err := s.loadForEvent(ctx, eventID, registrationID)
		if err != nil {
			return nil, err
		}
		change, ok, err := domain.ResolvePayment(reg, status, paymentID, s.now())
		if err != nil {
			return nil, fmt.Errorf("%w: unsupported payment status %q", err, status)
		}
		if !ok {
			if reg.PaymentAfterCancellation() {
				return nil, s.latePayment(ctx, reg)
			}
			s.logger.DebugContext(ctx, "payment status already resolved",
				"registration_id", reg.ID, "status", reg.Status, "payment_status", reg.PaymentStatus, "reported", status)
			return reg, nil
		}

		updated, err := s.coordinator.Transition(ctx, reg.ID, change)
		if err == nil {
			if change.From != change.To {
				s.metrics.Transition(string(change.From), string(change.To))
			}
			if updated.PaymentAfterCancellation() {
				s.metrics.LatePayment()
				return nil, s.latePayment(ctx, updated)
			}
			s.logger.InfoContext(ctx, "payment status applied",
				"registration_id", reg.ID, "event_id", reg.EventID,
				"payment_status", status, "from", change.From, "to", change.To)
			return updated, nil
		}
		var terr *domain.TransitionError
		if !errors.As(err, &terr) || terr.From == change.From || attempt == staleStateAttempts {
			return nil, err
		}
		// The registration moved between load and write; resolve again against its new state.
	}
}

// latePayment reports a completed payment that has no seat behind it. The
// payment is already recorded on reg; the caller has to refund it.
func (s *registrationService) latePayment(ctx context.Context, reg *domain.Registration) error {
	s.logger.WarnContext(ctx, "payment received after cancellation",
		"registration_id", reg.ID, "event_id", reg.EventID, "payment_id", reg.PaymentID,
		"cancel_reason", reg.CancelReason, "amount", reg.Amount.String())
	return fmt.Errorf("%w: registration %s payment %s requires a refund",
		domain.ErrPaymentAfterCancellation, reg.ID, reg.PaymentID)
}

// loadForEvent fetches a registration and hides it when it belongs to another event.
func (s *registrationService) loadForEvent(ctx context.Context, eventID, registrationID string) (*domain.Registration, error) {
	reg, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	if reg.EventID != eventID {
		return nil, domain.ErrRegistrationNotFound
	}
	return reg, nil
}
