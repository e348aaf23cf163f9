package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"eventregistration/internal/domain"
)

var registrationFields = []string{
	"id", "event_id", "user_id", "status", "payment_status", "name", "email", "phone", "notes",
	"amount", "currency", "payment_method", "payment_id", "registered_at", "paid_at",
	"checked_in_at", "cancelled_at", "cancel_reason", "created_at", "updated_at",
}

// registrationColumns renders the select list, optionally qualified with a table alias.
func registrationColumns(alias string) string {
	if alias == "" {
		return strings.Join(registrationFields, ", ")
	}
	cols := make([]string, len(registrationFields))
	for i, f := range registrationFields {
		cols[i] = alias + "." + f
	}
	return strings.Join(cols, ", ")
}

type eventRegistrationRepository struct {
	DB *sql.DB
}

func NewEventRegistrationRepository(db *sql.DB) domain.RegistrationRepository {
	return &eventRegistrationRepository{
		DB: db,
	}
}

func (r *eventRegistrationRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns("") + ` FROM event_registrations WHERE id = $1`
	reg, err := scanRegistration(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, err
	}
	return reg, nil
}

func (r *eventRegistrationRepository) GetActiveByEventAndUser(ctx context.Context, eventID, userID string) (*domain.Registration, error) {
	query := `
		SELECT ` + registrationColumns("") + `
		FROM event_registrations
		WHERE event_id = $1 AND user_id = $2 AND status <> 'cancelled'
	`
	reg, err := scanRegistration(r.DB.QueryRowContext(ctx, query, eventID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, err
	}
	return reg, nil
}

func (r *eventRegistrationRepository) ListByEvent(ctx context.Context, eventID string, filter domain.RegistrationFilter, page domain.PaginationParams) ([]*domain.Registration, int, error) {
	where := "event_id = $1"
	args := []any{eventID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_registrations WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, page.Limit, page.Offset())
	query := fmt.Sprintf(`
		SELECT %s
		FROM event_registrations
		WHERE %s
		ORDER BY registered_at ASC, id ASC
		LIMIT $%d OFFSET $%d
	`, registrationColumns(""), where, len(args)-1, len(args))
	regs, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return regs, total, nil
}

func (r *eventRegistrationRepository) ListByUser(ctx context.Context, userID string, filter domain.MyRegistrationsFilter) ([]*domain.Registration, error) {
	where := "r.user_id = $1"
	args := []any{userID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(" AND r.status = $%d", len(args))
	}
	if filter.Upcoming != filter.Past {
		args = append(args, filter.Now)
		if filter.Upcoming {
			where += fmt.Sprintf(" AND e.start_at >= $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND e.start_at < $%d", len(args))
		}
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM event_registrations r
		JOIN events e ON e.id = r.event_id
		WHERE %s
		ORDER BY e.start_at ASC, r.registered_at DESC, r.id ASC
	`, registrationColumns("r"), where)
	return r.list(ctx, query, args...)
}

func (r *eventRegistrationRepository) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]*domain.Registration, error) {
	query := `
		SELECT ` + registrationColumns("") + `
		FROM event_registrations
		WHERE status = 'pending' AND payment_status = 'pending' AND registered_at < $1
		ORDER BY registered_at ASC
		LIMIT $2
	`
	return r.list(ctx, query, before, limit)
}

func (r *eventRegistrationRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Registration, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	regs := make([]*domain.Registration, 0)
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return regs, nil
}

func scanRegistration(row rowScanner) (*domain.Registration, error) {
	reg := &domain.Registration{}
	var status, paymentStatus, cancelReason string
	var paidNull, checkedInNull, cancelledNull sql.NullTime
	err := row.Scan(
		&reg.ID, &reg.EventID, &reg.UserID, &status, &paymentStatus, &reg.Name, &reg.Email, &reg.Phone, &reg.Notes,
		&reg.Amount, &reg.Currency, &reg.PaymentMethod, &reg.PaymentID, &reg.RegisteredAt, &paidNull,
		&checkedInNull, &cancelledNull, &cancelReason, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	reg.Status = domain.RegistrationStatus(status)
	reg.PaymentStatus = domain.PaymentStatus(paymentStatus)
	reg.CancelReason = domain.CancelReason(cancelReason)
	if paidNull.Valid {
		reg.PaidAt = &paidNull.Time
	}
	if checkedInNull.Valid {
		reg.CheckedInAt = &checkedInNull.Time
	}
	if cancelledNull.Valid {
		reg.CancelledAt = &cancelledNull.Time
	}
	return reg, nil
}
