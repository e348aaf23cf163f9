package postgres

import (
	"database/sql/driver"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var (
	fixedNow  = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	eventCols = []string{
		"id", "title", "start_at", "end_at", "registration_deadline", "max_attendees",
		"current_attendees", "held_slots", "is_paid", "base_price", "currency", "early_bird_price",
		"early_bird_end_at", "status", "is_active", "created_at", "updated_at",
	}
)

// eventRow renders one events row; maxAttendees and earlyBird may be nil.
func eventRow(id string, maxAttendees any, current, held int, isPaid bool, earlyBird any, status string) []driver.Value {
	return []driver.Value{
		id, "Go Meetup", fixedNow.Add(72 * time.Hour), nil, nil, maxAttendees,
		int64(current), int64(held), isPaid, "500.00", "THB", earlyBird,
		nil, status, true, fixedNow, fixedNow,
	}
}

func registrationRow(id, eventID, userID, status, paymentStatus string) []driver.Value {
	return []driver.Value{
		id, eventID, userID, status, paymentStatus, "Ann", "ann@example.com", "", "",
		"300.00", "THB", "", "", fixedNow, nil,
		nil, nil, "", fixedNow, fixedNow,
	}
}

func newRegistrationRows() *sqlmock.Rows {
	return sqlmock.NewRows(registrationFields)
}
