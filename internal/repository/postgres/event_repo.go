package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"eventregistration/internal/domain"
)

const eventColumns = `id, title, start_at, end_at, registration_deadline, max_attendees,
	current_attendees, held_slots, is_paid, base_price, currency, early_bird_price,
	early_bird_end_at, status, is_active, created_at, updated_at`

type eventRepository struct {
	DB *sql.DB
}

func NewEventRepository(db *sql.DB) domain.EventRepository {
	return &eventRepository{
		DB: db,
	}
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	return getEvent(ctx, r.DB, id)
}

func (r *eventRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.Event, error) {
	if len(ids) == 0 {
		return []*domain.Event{}, nil
	}
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ANY($1::uuid[])`
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := make([]*domain.Event, 0, len(ids))
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func getEvent(ctx context.Context, q querier, id string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	e, err := scanEvent(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return e, nil
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	e := &domain.Event{}
	var endNull, deadlineNull, earlyEndNull sql.NullTime
	var maxNull sql.NullInt64
	var earlyPrice decimal.NullDecimal
	var status string
	err := row.Scan(
		&e.ID, &e.Title, &e.StartAt, &endNull, &deadlineNull, &maxNull,
		&e.CurrentAttendees, &e.HeldSlots, &e.IsPaid, &e.BasePrice, &e.Currency, &earlyPrice,
		&earlyEndNull, &status, &e.IsActive, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = domain.EventStatus(status)
	if endNull.Valid {
		e.EndAt = &endNull.Time
	}
	if deadlineNull.Valid {
		e.RegistrationDeadline = &deadlineNull.Time
	}
	if maxNull.Valid {
		m := int(maxNull.Int64)
		e.MaxAttendees = &m
	}
	if earlyPrice.Valid {
		e.EarlyBirdPrice = &earlyPrice.Decimal
	}
	if earlyEndNull.Valid {
		e.EarlyBirdEndAt = &earlyEndNull.Time
	}
	return e, nil
}
