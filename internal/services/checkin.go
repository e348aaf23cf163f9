package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"eventregistration/internal/domain"
	"eventregistration/internal/metrics"
)

type checkInService struct {
	registrations domain.RegistrationRepository
	coordinator   domain.CapacityCoordinator
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// NewCheckInService creates a CheckInService.
func NewCheckInService(
	registrations domain.RegistrationRepository,
	coordinator domain.CapacityCoordinator,
	m *metrics.Metrics,
	logger *slog.Logger,
) domain.CheckInService {
	return &checkInService{
		registrations: registrations,
		coordinator:   coordinator,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// CheckIn moves a confirmed registration to attended. Checking in an attended registration is a no-op.
func (s *checkInService) CheckIn(ctx context.Context, eventID, registrationID string) (*domain.Registration, error) {
	return s.settle(ctx, eventID, registrationID, domain.StatusAttended, "check in")
}

// MarkNoShow moves a confirmed registration to no-show and frees its slot.
func (s *checkInService) MarkNoShow(ctx context.Context, eventID, registrationID string) (*domain.Registration, error) {
	return s.settle(ctx, eventID, registrationID, domain.StatusNoShow, "mark no-show")
}

func (s *checkInService) settle(ctx context.Context, eventID, registrationID string, to domain.RegistrationStatus, action string) (*domain.Registration, error) {
	reg, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, err
	}
	if reg.EventID != eventID {
		return nil, domain.ErrRegistrationNotFound
	}
	if reg.Status == to {
		return reg, nil
	}
	if reg.Status != domain.StatusConfirmed {
		return nil, &domain.TransitionError{Action: action, From: reg.Status, To: to}
	}

	updated, err := s.coordinator.Transition(ctx, reg.ID, domain.StateChange{
		From: domain.StatusConfirmed,
		To:   to,
		At:   s.now(),
	})
	if err != nil {
		var terr *domain.TransitionError
		if !errors.As(err, &terr) {
			return nil, err
		}
		if terr.From == to {
			// A concurrent request got there first.
			return s.registrations.GetByID(ctx, registrationID)
		}
		return nil, &domain.TransitionError{Action: action, From: terr.From, To: to}
	}
	s.metrics.Transition(string(domain.StatusConfirmed), string(to))
	msg := "checked in"
	if to == domain.StatusNoShow {
		msg = "marked no-show"
	}
	s.logger.InfoContext(ctx, msg, "registration_id", reg.ID, "event_id", reg.EventID)
	return updated, nil
}
