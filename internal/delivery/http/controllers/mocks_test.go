package controllers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/delivery/http/middleware"
	"eventregistration/internal/domain"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testEventID = "3f1c2a9e-5a4b-4c7d-9e21-0b6f8a1d2c3e"
	testRegID   = "8b2d4f6a-1c3e-4a5b-8d7f-9e0a1b2c3d4e"
)

type mockRegistrationService struct {
	mock.Mock
}

func (m *mockRegistrationService) Register(ctx context.Context, in domain.RegisterInput) (*domain.RegisterResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*domain.RegisterResult)
	return res, args.Error(1)
}

func (m *mockRegistrationService) Cancel(ctx context.Context, eventID, userID string) (*domain.Registration, error) {
	args := m.Called(ctx, eventID, userID)
	reg, _ := args.Get(0).(*domain.Registration)
	return reg, args.Error(1)
}

func (m *mockRegistrationService) CancelByOperator(ctx context.Context, eventID, registrationID string) (*domain.Registration, error) {
	args := m.Called(ctx, eventID, registrationID)
	reg, _ := args.Get(0).(*domain.Registration)
	return reg, args.Error(1)
}

func (m *mockRegistrationService) GetStatus(ctx context.Context, eventID, userID string) (*domain.RegistrationStatusView, error) {
	args := m.Called(ctx, eventID, userID)
	view, _ := args.Get(0).(*domain.RegistrationStatusView)
	return view, args.Error(1)
}

func (m *mockRegistrationService) GetAvailability(ctx context.Context, eventID string) (*domain.Availability, error) {
	args := m.Called(ctx, eventID)
	avail, _ := args.Get(0).(*domain.Availability)
	return avail, args.Error(1)
}

func (m *mockRegistrationService) ListEventRegistrations(ctx context.Context, eventID string, filter domain.RegistrationFilter, page domain.PaginationParams) ([]*domain.Registration, int, error) {
	args := m.Called(ctx, eventID, filter, page)
	regs, _ := args.Get(0).([]*domain.Registration)
	return regs, args.Int(1), args.Error(2)
}

func (m *mockRegistrationService) ListMyRegistrations(ctx context.Context, userID string, filter domain.MyRegistrationsFilter) ([]*domain.RegistrationWithEvent, error) {
	args := m.Called(ctx, userID, filter)
	items, _ := args.Get(0).([]*domain.RegistrationWithEvent)
	return items, args.Error(1)
}

func (m *mockRegistrationService) UpdatePaymentStatus(ctx context.Context, eventID, registrationID string, status domain.PaymentStatus, paymentID string) (*domain.Registration, error) {
	args := m.Called(ctx, eventID, registrationID, status, paymentID)
	reg, _ := args.Get(0).(*domain.Registration)
	return reg, args.Error(1)
}

type mockCheckInService struct {
	mock.Mock
}

func (m *mockCheckInService) CheckIn(ctx context.Context, eventID, registrationID string) (*domain.Registration, error) {
	args := m.Called(ctx, eventID, registrationID)
	reg, _ := args.Get(0).(*domain.Registration)
	return reg, args.Error(1)
}

func (m *mockCheckInService) MarkNoShow(ctx context.Context, eventID, registrationID string) (*domain.Registration, error) {
	args := m.Called(ctx, eventID, registrationID)
	reg, _ := args.Get(0).(*domain.Registration)
	return reg, args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var testIdentity = &domain.Identity{
	UserID: "user-1",
	Email:  "profile@example.com",
	Name:   "Profile Name",
	Phone:  "+66811111111",
	Roles:  []string{domain.RoleAttendee},
}

// serve sends a request routed through a ServeMux pattern so PathValue works.
func serve(t *testing.T, pattern string, handler http.HandlerFunc, method, target, body string, identity *domain.Identity) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, handler)

	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if identity != nil {
		req = req.WithContext(middleware.SetIdentity(req.Context(), identity))
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder, data any) *helpers.APIError {
	t.Helper()
	var envelope struct {
		Data  json.RawMessage   `json:"data"`
		Error *helpers.APIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	if data != nil && envelope.Error == nil {
		require.NoError(t, json.Unmarshal(envelope.Data, data))
	}
	return envelope.Error
}
