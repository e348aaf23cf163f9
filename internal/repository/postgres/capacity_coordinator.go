package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventregistration/internal/domain"
	"eventregistration/internal/metrics"
)

// DefaultMaxAttempts bounds how often a transaction is replayed after a transient conflict.
const DefaultMaxAttempts = 3

// capacityCoordinator keeps events.current_attendees/held_slots and event_registrations in step.
// Every write is one transaction made of conditional statements: the capacity check lives in the
// UPDATE's WHERE clause and the state check lives in the registration UPDATE's WHERE clause, so
// the precondition is evaluated by Postgres at write time under the row lock.
type capacityCoordinator struct {
	DB          *sql.DB
	maxAttempts int
	metrics     *metrics.Metrics
}

func NewCapacityCoordinator(db *sql.DB, maxAttempts int, m *metrics.Metrics) domain.CapacityCoordinator {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &capacityCoordinator{
		DB:          db,
		maxAttempts: maxAttempts,
		metrics:     m,
	}
}

func (c *capacityCoordinator) Reserve(ctx context.Context, reg *domain.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	delta := domain.InitialDelta(reg.Status)
	if delta.IsZero() {
		return fmt.Errorf("%w: cannot reserve a slot for status %s", domain.ErrInvalidInput, reg.Status)
	}

	start := time.Now()
	defer func() { c.metrics.ObserveReserve(time.Since(start)) }()

	return c.withRetry(ctx, "reserve", func(tx *sql.Tx) error {
		claim := `
			UPDATE events
			SET current_attendees = current_attendees + $2,
			    held_slots = held_slots + $3,
			    updated_at = $4
			WHERE id = $1
			  AND is_active
			  AND status NOT IN ('cancelled', 'past')
			  AND (registration_deadline IS NULL OR registration_deadline >= $4)
			  AND (max_attendees IS NULL OR current_attendees + held_slots < max_attendees)
		`
		res, err := tx.ExecContext(ctx, claim, reg.EventID, delta.Attendees, delta.Held, reg.RegisteredAt)
		if err != nil {
			return fmt.Errorf("claim slot: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("claim slot: %w", err)
		} else if n == 0 {
			return closedReason(ctx, tx, reg.EventID, reg.RegisteredAt)
		}

		insert := `
			INSERT INTO event_registrations (
				id, event_id, user_id, status, payment_status, name, email, phone, notes,
				amount, currency, payment_method, payment_id, registered_at, paid_at,
				created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		`
		_, err = tx.ExecContext(ctx, insert,
			reg.ID, reg.EventID, reg.UserID, string(reg.Status), string(reg.PaymentStatus),
			reg.Name, reg.Email, reg.Phone, reg.Notes,
			reg.Amount, reg.Currency, reg.PaymentMethod, reg.PaymentID, reg.RegisteredAt, reg.PaidAt,
			reg.CreatedAt, reg.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAlreadyRegistered
			}
			return fmt.Errorf("insert registration: %w", err)
		}
		return nil
	})
}

// closedReason explains a failed slot claim from the event row as seen inside the transaction.
func closedReason(ctx context.Context, tx *sql.Tx, eventID string, at time.Time) error {
	ev, err := getEvent(ctx, tx, eventID)
	if err != nil {
		return err
	}
	if ok, reason := ev.CanRegister(at); !ok {
		return &domain.RegistrationClosedError{Reason: reason}
	}
	// The row changed between the claim and this read; the claim saw no free slot.
	return &domain.RegistrationClosedError{Reason: domain.ReasonFull}
}

func (c *capacityCoordinator) Transition(ctx context.Context, registrationID string, change domain.StateChange) (*domain.Registration, error) {
	delta, err := change.Delta()
	if err != nil {
		return nil, err
	}

	var out *domain.Registration
	err = c.withRetry(ctx, "transition", func(tx *sql.Tx) error {
		update := `
			UPDATE event_registrations
			SET status = $3,
			    payment_status = COALESCE(NULLIF($4::text, ''), payment_status),
			    payment_id = COALESCE(NULLIF($5::text, ''), payment_id),
			    paid_at = CASE WHEN $4::text = 'completed' AND payment_status <> 'completed' THEN $7 ELSE paid_at END,
			    checked_in_at = CASE WHEN $3 = 'attended' AND status <> 'attended' THEN $7 ELSE checked_in_at END,
			    cancelled_at = CASE WHEN $3 = 'cancelled' AND status <> 'cancelled' THEN $7 ELSE cancelled_at END,
			    cancel_reason = CASE WHEN $3 = 'cancelled' AND status <> 'cancelled' THEN $6 ELSE cancel_reason END,
			    updated_at = $7
			WHERE id = $1 AND status = $2
			RETURNING ` + registrationColumns("")
		reg, err := scanRegistration(tx.QueryRowContext(ctx, update,
			registrationID, string(change.From), string(change.To),
			string(change.PaymentStatus), change.PaymentID, string(change.CancelReason), change.At,
		))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return stateMismatch(ctx, tx, registrationID, change)
			}
			return fmt.Errorf("update registration: %w", err)
		}

		if !delta.IsZero() {
			adjust := `
				UPDATE events
				SET current_attendees = current_attendees + $2,
				    held_slots = held_slots + $3,
				    updated_at = $4
				WHERE id = $1
			`
			if _, err := tx.ExecContext(ctx, adjust, reg.EventID, delta.Attendees, delta.Held, change.At); err != nil {
				if pqCode(err) == codeCheckViolation {
					return fmt.Errorf("adjust counters for event %s: counter constraint violated: %w", reg.EventID, err)
				}
				return fmt.Errorf("adjust counters: %w", err)
			}
		}
		out = reg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// stateMismatch reports why a conditional registration update matched no row.
func stateMismatch(ctx context.Context, tx *sql.Tx, registrationID string, change domain.StateChange) error {
	var current string
	err := tx.QueryRowContext(ctx, `SELECT status FROM event_registrations WHERE id = $1`, registrationID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrRegistrationNotFound
		}
		return fmt.Errorf("load registration status: %w", err)
	}
	return &domain.TransitionError{From: domain.RegistrationStatus(current), To: change.To}
}

// withRetry replays fn in a fresh transaction while Postgres reports a serialization failure or deadlock.
func (c *capacityCoordinator) withRetry(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = runTx(ctx, c.DB, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt < c.maxAttempts {
			c.metrics.Retry(op)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("%s: %w after %d attempts: %v", op, domain.ErrConcurrentUpdate, c.maxAttempts, err)
}
