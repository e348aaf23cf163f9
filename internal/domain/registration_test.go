package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialState(t *testing.T) {
	s, p := InitialState(false, false)
	assert.Equal(t, StatusConfirmed, s)
	assert.Equal(t, PaymentCompleted, p)

	s, p = InitialState(true, true)
	assert.Equal(t, StatusConfirmed, s)
	assert.Equal(t, PaymentCompleted, p)

	s, p = InitialState(true, false)
	assert.Equal(t, StatusPending, s)
	assert.Equal(t, PaymentPending, p)

	assert.Equal(t, SlotDelta{Attendees: 1}, InitialDelta(StatusConfirmed))
	assert.Equal(t, SlotDelta{Held: 1}, InitialDelta(StatusPending))
	assert.True(t, InitialDelta(StatusCancelled).IsZero())
}

func TestStateChange_Delta(t *testing.T) {
	tests := []struct {
		from, to RegistrationStatus
		want     SlotDelta
		wantErr  bool
	}{
		{StatusPending, StatusConfirmed, SlotDelta{Attendees: 1, Held: -1}, false},
		{StatusPending, StatusCancelled, SlotDelta{Held: -1}, false},
		{StatusConfirmed, StatusCancelled, SlotDelta{Attendees: -1}, false},
		{StatusConfirmed, StatusAttended, SlotDelta{}, false},
		{StatusConfirmed, StatusNoShow, SlotDelta{Attendees: -1}, false},
		{StatusAttended, StatusCancelled, SlotDelta{Attendees: -1}, false},
		{StatusCancelled, StatusCancelled, SlotDelta{}, false},
		{StatusPending, StatusAttended, SlotDelta{}, true},
		{StatusCancelled, StatusConfirmed, SlotDelta{}, true},
		{StatusNoShow, StatusAttended, SlotDelta{}, true},
		{StatusAttended, StatusConfirmed, SlotDelta{}, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got, err := StateChange{From: tt.from, To: tt.to}.Delta()
			if tt.wantErr {
				var terr *TransitionError
				require.ErrorAs(t, err, &terr)
				assert.Equal(t, tt.from, terr.From)
				assert.False(t, CanTransition(tt.from, tt.to))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Every edge must keep the attendee counter equal to the number of counted registrations.
func TestTransitions_PreserveCountedInvariant(t *testing.T) {
	for from, edges := range transitions {
		for to, d := range edges {
			want := 0
			if to.Counted() {
				want++
			}
			if from.Counted() {
				want--
			}
			assert.Equal(t, want, d.Attendees, "%s -> %s", from, to)
			wantHeld := 0
			if from == StatusPending {
				wantHeld = -1
			}
			assert.Equal(t, wantHeld, d.Held, "%s -> %s", from, to)
		}
	}
}

func TestRegistration_Apply(t *testing.T) {
	at := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	reg := &Registration{Status: StatusPending, PaymentStatus: PaymentPending}
	reg.Apply(StateChange{From: StatusPending, To: StatusConfirmed, PaymentStatus: PaymentCompleted, PaymentID: "pay_1", At: at})
	assert.Equal(t, StatusConfirmed, reg.Status)
	assert.Equal(t, PaymentCompleted, reg.PaymentStatus)
	assert.Equal(t, "pay_1", reg.PaymentID)
	require.NotNil(t, reg.PaidAt)
	assert.Equal(t, at, *reg.PaidAt)

	reg.Apply(StateChange{From: StatusConfirmed, To: StatusAttended, At: at.Add(time.Hour)})
	require.NotNil(t, reg.CheckedInAt)
	assert.Equal(t, at.Add(time.Hour), *reg.CheckedInAt)
	assert.Equal(t, "pay_1", reg.PaymentID)

	reg.Apply(StateChange{From: StatusAttended, To: StatusCancelled, CancelReason: CancelByAdmin, At: at.Add(2 * time.Hour)})
	assert.Equal(t, StatusCancelled, reg.Status)
	assert.Equal(t, CancelByAdmin, reg.CancelReason)
	require.NotNil(t, reg.CancelledAt)
}

func TestResolvePayment(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		status     RegistrationStatus
		payment    PaymentStatus
		next       PaymentStatus
		wantOK     bool
		wantTo     RegistrationStatus
		wantReason CancelReason
		wantErr    bool
	}{
		{name: "completed confirms pending", status: StatusPending, payment: PaymentPending, next: PaymentCompleted, wantOK: true, wantTo: StatusConfirmed},
		{name: "failed cancels pending", status: StatusPending, payment: PaymentPending, next: PaymentFailed, wantOK: true, wantTo: StatusCancelled, wantReason: CancelPaymentFailed},
		{name: "completed twice is a no-op", status: StatusConfirmed, payment: PaymentCompleted, next: PaymentCompleted},
		{name: "failed after confirmation is a no-op", status: StatusConfirmed, payment: PaymentCompleted, next: PaymentFailed},
		{name: "failed twice is a no-op", status: StatusCancelled, payment: PaymentFailed, next: PaymentFailed},
		{name: "completed after expiry records the late payment", status: StatusCancelled, payment: PaymentPending, next: PaymentCompleted, wantOK: true, wantTo: StatusCancelled},
		{name: "completed after failure records the late payment", status: StatusCancelled, payment: PaymentFailed, next: PaymentCompleted, wantOK: true, wantTo: StatusCancelled},
		{name: "completed after refund is a no-op", status: StatusCancelled, payment: PaymentRefunded, next: PaymentCompleted},
		{name: "failed after expiry only records payment", status: StatusCancelled, payment: PaymentPending, next: PaymentFailed, wantOK: true, wantTo: StatusCancelled},
		{name: "completed on attended is a no-op", status: StatusAttended, payment: PaymentFailed, next: PaymentCompleted},
		{name: "refund cancels confirmed", status: StatusConfirmed, payment: PaymentCompleted, next: PaymentRefunded, wantOK: true, wantTo: StatusCancelled, wantReason: CancelPaymentRefunded},
		{name: "refund on cancelled only records payment", status: StatusCancelled, payment: PaymentCompleted, next: PaymentRefunded, wantOK: true, wantTo: StatusCancelled},
		{name: "pending is not a callback outcome", status: StatusPending, payment: PaymentPending, next: PaymentPending, wantErr: true},
		{name: "unknown outcome", status: StatusPending, payment: PaymentPending, next: "settled", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := &Registration{Status: tt.status, PaymentStatus: tt.payment}
			change, ok, err := ResolvePayment(reg, tt.next, "pay_1", now)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.status, change.From)
			assert.Equal(t, tt.wantTo, change.To)
			assert.Equal(t, tt.next, change.PaymentStatus)
			assert.Equal(t, tt.wantReason, change.CancelReason)
			_, err = change.Delta()
			assert.NoError(t, err)
		})
	}
}

func TestRegistration_PaymentAfterCancellation(t *testing.T) {
	cancelledAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := cancelledAt.Add(-time.Hour)
	after := cancelledAt.Add(time.Minute)

	tests := []struct {
		name string
		reg  Registration
		want bool
	}{
		{
			name: "paid after the hold expired",
			reg:  Registration{Status: StatusCancelled, PaymentStatus: PaymentCompleted, PaidAt: &after, CancelledAt: &cancelledAt},
			want: true,
		},
		{
			name: "paid in the same instant",
			reg:  Registration{Status: StatusCancelled, PaymentStatus: PaymentCompleted, PaidAt: &cancelledAt, CancelledAt: &cancelledAt},
			want: true,
		},
		{
			name: "paid then cancelled by the user",
			reg:  Registration{Status: StatusCancelled, PaymentStatus: PaymentCompleted, PaidAt: &before, CancelledAt: &cancelledAt},
		},
		{
			name: "refunded",
			reg:  Registration{Status: StatusCancelled, PaymentStatus: PaymentRefunded, PaidAt: &after, CancelledAt: &cancelledAt},
		},
		{
			name: "confirmed",
			reg:  Registration{Status: StatusConfirmed, PaymentStatus: PaymentCompleted, PaidAt: &after},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reg.PaymentAfterCancellation())
		})
	}
}

func TestRegistration_ApplyLatePayment(t *testing.T) {
	expiredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := &Registration{Status: StatusPending, PaymentStatus: PaymentPending}
	reg.Apply(StateChange{From: StatusPending, To: StatusCancelled, CancelReason: CancelExpired, At: expiredAt})
	require.Equal(t, PaymentPending, reg.PaymentStatus)

	change, ok, err := ResolvePayment(reg, PaymentCompleted, "pay_late", expiredAt.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	reg.Apply(change)

	assert.Equal(t, StatusCancelled, reg.Status)
	assert.Equal(t, PaymentCompleted, reg.PaymentStatus)
	assert.Equal(t, "pay_late", reg.PaymentID)
	assert.Equal(t, CancelExpired, reg.CancelReason)
	assert.Equal(t, expiredAt, *reg.CancelledAt)
	assert.True(t, reg.PaymentAfterCancellation())

	_, ok, err = ResolvePayment(reg, PaymentCompleted, "pay_late", expiredAt.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIdentity_HasRole(t *testing.T) {
	id := &Identity{UserID: "u1", Roles: []string{RoleAttendee}}
	assert.False(t, id.IsOperator())
	id.Roles = append(id.Roles, RoleOperator)
	assert.True(t, id.IsOperator())
	assert.True(t, id.HasRole(RoleAdmin, RoleAttendee))
}
