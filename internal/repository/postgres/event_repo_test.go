package postgres

import (
	"context"
	"database/sql"
	"testing"

	"eventregistration/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		id      string
		mock    func(mock sqlmock.Sqlmock)
		check   func(t *testing.T, e *domain.Event)
		wantErr error
	}{
		{
			name: "limited paid event with early bird",
			id:   "ev-1",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, title, start_at, end_at, registration_deadline, max_attendees`).
					WithArgs("ev-1").
					WillReturnRows(sqlmock.NewRows(eventCols).AddRow(eventRow("ev-1", int64(50), 10, 2, true, "300.00", "upcoming")...))
			},
			check: func(t *testing.T, e *domain.Event) {
				require.NotNil(t, e.MaxAttendees)
				assert.Equal(t, 50, *e.MaxAttendees)
				assert.Equal(t, 10, e.CurrentAttendees)
				assert.Equal(t, 2, e.HeldSlots)
				assert.Equal(t, "500", e.BasePrice.String())
				require.NotNil(t, e.EarlyBirdPrice)
				assert.Equal(t, "300", e.EarlyBirdPrice.String())
				assert.Nil(t, e.EarlyBirdEndAt)
				assert.Equal(t, domain.EventStatusUpcoming, e.Status)
			},
		},
		{
			name: "unlimited event",
			id:   "ev-2",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, title`).
					WithArgs("ev-2").
					WillReturnRows(sqlmock.NewRows(eventCols).AddRow(eventRow("ev-2", nil, 0, 0, false, nil, "ongoing")...))
			},
			check: func(t *testing.T, e *domain.Event) {
				assert.Nil(t, e.MaxAttendees)
				assert.Nil(t, e.EarlyBirdPrice)
				assert.False(t, e.IsPaid)
			},
		},
		{
			name: "not found",
			id:   "ev-missing",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, title`).
					WithArgs("ev-missing").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: domain.ErrEventNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			repo := NewEventRepository(db)
			got, err := repo.GetByID(ctx, tt.id)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Nil(t, got)
				require.NoError(t, mock.ExpectationsWereMet())
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventRepository_ListByIDs(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewEventRepository(db)

	empty, err := repo.ListByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	mock.ExpectQuery(`FROM events WHERE id = ANY`).
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow(eventRow("ev-1", nil, 0, 0, false, nil, "upcoming")...).
			AddRow(eventRow("ev-2", int64(5), 5, 0, false, nil, "past")...))

	events, err := repo.ListByIDs(ctx, []string{"ev-1", "ev-2"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ev-2", events[1].ID)
	assert.True(t, events[1].IsFull())
	require.NoError(t, mock.ExpectationsWereMet())
}
