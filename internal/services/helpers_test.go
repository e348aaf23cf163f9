package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"eventregistration/internal/domain"
	"eventregistration/internal/repository/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 12, 31, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func intPtr(v int) *int { return &v }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func timePtr(t time.Time) *time.Time { return &t }

// clock is a settable time source shared by a test's services.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fakeAuthorizer struct {
	settled bool
	err     error
}

func (f *fakeAuthorizer) Authorize(ctx context.Context, reg *domain.Registration, intent domain.PaymentIntent) (*domain.PaymentAuthorization, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.PaymentAuthorization{PaymentID: "pay_" + reg.ID[:8], Settled: f.settled}, nil
}

func freeEvent(id string, max *int) *domain.Event {
	return &domain.Event{
		ID:           id,
		Title:        "Community Meetup",
		StartAt:      testNow.Add(7 * 24 * time.Hour),
		MaxAttendees: max,
		Currency:     "THB",
		Status:       domain.EventStatusUpcoming,
		IsActive:     true,
	}
}

func paidEvent(id string, max *int) *domain.Event {
	ev := freeEvent(id, max)
	ev.IsPaid = true
	ev.BasePrice = decimal.NewFromInt(500)
	ev.EarlyBirdPrice = decPtr(300)
	ev.EarlyBirdEndAt = timePtr(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return ev
}

type testEnv struct {
	store    *memory.Store
	clock    *clock
	regs     *registrationService
	checkIns *checkInService
}

func newTestEnv(payments domain.PaymentAuthorizer) *testEnv {
	store := memory.NewStore()
	clk := &clock{t: testNow}
	regs := NewRegistrationService(store.Events(), store.Registrations(), store.Coordinator(), payments, nil, discardLogger()).(*registrationService)
	regs.now = clk.Now
	checkIns := NewCheckInService(store.Registrations(), store.Coordinator(), nil, discardLogger()).(*checkInService)
	checkIns.now = clk.Now
	return &testEnv{store: store, clock: clk, regs: regs, checkIns: checkIns}
}

func registerInput(eventID, userID string) domain.RegisterInput {
	return domain.RegisterInput{
		EventID: eventID,
		UserID:  userID,
		Contact: domain.Contact{Name: "User " + userID, Email: userID + "@example.com"},
	}
}

// assertCounters checks the event counters against the ledger.
func assertCounters(t *testing.T, env *testEnv, eventID string) {
	t.Helper()
	ctx := context.Background()
	ev, err := env.store.Events().GetByID(ctx, eventID)
	require.NoError(t, err)
	regs, _, err := env.store.Registrations().ListByEvent(ctx, eventID, domain.RegistrationFilter{}, domain.PaginationParams{Page: 1, Limit: 10000})
	require.NoError(t, err)

	counted, held := 0, 0
	for _, r := range regs {
		if r.Status.Counted() {
			counted++
		}
		if r.Status == domain.StatusPending {
			held++
		}
	}
	assert.Equal(t, counted, ev.CurrentAttendees, "current_attendees")
	assert.Equal(t, held, ev.HeldSlots, "held_slots")
	assert.GreaterOrEqual(t, ev.CurrentAttendees, 0)
	if ev.MaxAttendees != nil {
		assert.LessOrEqual(t, ev.Occupied(), *ev.MaxAttendees)
	}
}

// recordingHandler keeps every log record so tests can assert on operator-facing logs.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

// find returns the attributes of the first record with msg at level.
func (h *recordingHandler) find(level slog.Level, msg string) (map[string]string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.Level != level || r.Message != msg {
			continue
		}
		attrs := map[string]string{}
		r.Attrs(func(a slog.Attr) bool {
			attrs[a.Key] = a.Value.String()
			return true
		})
		return attrs, true
	}
	return nil, false
}
