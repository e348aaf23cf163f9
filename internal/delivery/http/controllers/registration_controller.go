package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/delivery/http/middleware"
	"eventregistration/internal/domain"
)

type RegistrationController struct {
	Logger  *slog.Logger
	Service domain.RegistrationService
}

func NewRegistrationController(logger *slog.Logger, svc domain.RegistrationService) *RegistrationController {
	return &RegistrationController{
		Logger:  logger,
		Service: svc,
	}
}

// PaymentHint is the optional payment information sent when registering for a paid event.
type PaymentHint struct {
	Method    string `json:"method" validate:"max=50"`
	Reference string `json:"reference" validate:"max=200"`
}

// RegisterRequest is the request body for POST /events/{eventID}/register.
// Omitted contact fields default to the caller's profile.
type RegisterRequest struct {
	Name    string       `json:"name" validate:"max=200"`
	Email   string       `json:"email" validate:"omitempty,email,max=254"`
	Phone   string       `json:"phone" validate:"max=32"`
	Notes   string       `json:"notes" validate:"max=2000"`
	Payment *PaymentHint `json:"payment"`
}

// Validate implements helpers.Validator.
func (r *RegisterRequest) Validate() []string {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	return helpers.ValidateStruct(r)
}

// RegisterSuccessResponse is the success response envelope for POST /events/{eventID}/register.
type RegisterSuccessResponse struct {
	Data  *domain.RegisterResult `json:"data"`
	Error *helpers.APIError      `json:"error"`
}

// RegistrationSuccessResponse is the success envelope for endpoints returning a single registration.
type RegistrationSuccessResponse struct {
	Data  *domain.Registration `json:"data"`
	Error *helpers.APIError    `json:"error"`
}

// Register godoc
// @Summary Register the current user for an event
// @Description Creates a registration. Free events and settled payments confirm immediately; otherwise the registration is pending until the payment callback.
// @Tags registrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param body body controllers.RegisterRequest false "Contact overrides and payment hint"
// @Success 201 {object} controllers.RegisterSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request | full | deadline_passed | cancelled | ended | inactive"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: already_registered"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/register [post]
func (c *RegistrationController) Register(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	var req RegisterRequest
	if !helpers.DecodeAndValidate(w, r, &req, true) {
		return
	}

	in := domain.RegisterInput{
		EventID: eventID,
		UserID:  identity.UserID,
		Contact: domain.Contact{
			Name:  firstNonEmpty(req.Name, identity.Name),
			Email: firstNonEmpty(req.Email, identity.Email),
			Phone: firstNonEmpty(req.Phone, identity.Phone),
		},
		Notes: req.Notes,
	}
	if req.Payment != nil {
		in.Payment = domain.PaymentIntent{Method: req.Payment.Method, Reference: req.Payment.Reference}
	}

	res, err := c.Service.Register(r.Context(), in)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, res)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Cancel godoc
// @Summary Cancel the current user's registration
// @Description Cancels the caller's active registration for the event and releases its slot.
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} controllers.RegistrationSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request | invalid_state"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/register [delete]
func (c *RegistrationController) Cancel(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	reg, err := c.Service.Cancel(r.Context(), eventID, userID)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, reg)
}

// GetStatus godoc
// @Summary Check the current user's registration status
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} domain.RegistrationStatusView
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/registration-status [get]
func (c *RegistrationController) GetStatus(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	view, err := c.Service.GetStatus(r.Context(), eventID, userID)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, view)
}

// GetAvailability godoc
// @Summary Show whether an event accepts registrations and at what price
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} domain.Availability
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/availability [get]
func (c *RegistrationController) GetAvailability(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	avail, err := c.Service.GetAvailability(r.Context(), eventID)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, avail)
}

// RegistrationPage is a page of an event's registrations.
type RegistrationPage struct {
	Items      []*domain.Registration `json:"items"`
	Pagination helpers.PaginationMeta `json:"pagination"`
}

// ListEventRegistrations godoc
// @Summary List an event's registrations
// @Tags operator
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param status query string false "pending | confirmed | cancelled | attended | no-show"
// @Param page query int false "Page (default 1)"
// @Param limit query int false "Page size (default 20, max 100)"
// @Success 200 {object} controllers.RegistrationPage
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/registrations [get]
func (c *RegistrationController) ListEventRegistrations(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	page := helpers.ParsePagination(r)
	filter := domain.RegistrationFilter{Status: domain.RegistrationStatus(r.URL.Query().Get("status"))}

	regs, total, err := c.Service.ListEventRegistrations(r.Context(), eventID, filter, page)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, RegistrationPage{
		Items:      regs,
		Pagination: helpers.NewPaginationMeta(page.Page, page.Limit, total),
	})
}

// ListMyRegistrations godoc
// @Summary List the current user's registrations with their events
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param status query string false "Registration status"
// @Param upcoming query bool false "Only events that have not started"
// @Param past query bool false "Only events that have started"
// @Success 200 {array} domain.RegistrationWithEvent
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/my-registrations [get]
func (c *RegistrationController) ListMyRegistrations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	filter := domain.MyRegistrationsFilter{
		Status:   domain.RegistrationStatus(r.URL.Query().Get("status")),
		Upcoming: helpers.ParseBool(r, "upcoming"),
		Past:     helpers.ParseBool(r, "past"),
	}
	items, err := c.Service.ListMyRegistrations(r.Context(), userID, filter)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, items)
}

// CancelByOperator godoc
// @Summary Cancel any registration of an event
// @Tags operator
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param registrationID path string true "Registration ID (UUID)"
// @Success 200 {object} controllers.RegistrationSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request | invalid_state"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/registrations/{registrationID} [delete]
func (c *RegistrationController) CancelByOperator(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	registrationID, ok := pathUUID(w, r, "registrationID")
	if !ok {
		return
	}
	reg, err := c.Service.CancelByOperator(r.Context(), eventID, registrationID)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, reg)
}

// UpdatePaymentRequest is the request body for the payment callback.
// The camelCase keys some providers send are accepted as aliases.
type UpdatePaymentRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required,oneof=completed failed refunded"`
	PaymentID     string `json:"payment_id" validate:"max=200"`

	PaymentStatusAlias string `json:"paymentStatus,omitempty" swaggerignore:"true"`
	PaymentIDAlias     string `json:"paymentId,omitempty" swaggerignore:"true"`
}

// Validate implements helpers.Validator.
func (r *UpdatePaymentRequest) Validate() []string {
	if r.PaymentStatus == "" {
		r.PaymentStatus = r.PaymentStatusAlias
	}
	if r.PaymentID == "" {
		r.PaymentID = r.PaymentIDAlias
	}
	r.PaymentStatus = strings.ToLower(strings.TrimSpace(r.PaymentStatus))
	return helpers.ValidateStruct(r)
}

// UpdatePayment godoc
// @Summary Payment provider callback
// @Description Applies a payment outcome to a registration. Repeating an already applied outcome is a no-op.
// @Description Body keys are payment_status and payment_id; paymentStatus and paymentId are accepted as aliases.
// @Description A completed payment for a cancelled registration is recorded and answered with 409 payment_after_cancellation so it can be refunded.
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Security WebhookSecret
// @Param eventID path string true "Event ID (UUID)"
// @Param registrationID path string true "Registration ID (UUID)"
// @Param body body controllers.UpdatePaymentRequest true "Payment outcome"
// @Success 200 {object} controllers.RegistrationSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: payment_after_cancellation"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/registrations/{registrationID}/payment [patch]
func (c *RegistrationController) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	registrationID, ok := pathUUID(w, r, "registrationID")
	if !ok {
		return
	}
	var req UpdatePaymentRequest
	if !helpers.DecodeAndValidate(w, r, &req, false) {
		return
	}
	reg, err := c.Service.UpdatePaymentStatus(r.Context(), eventID, registrationID, domain.PaymentStatus(req.PaymentStatus), req.PaymentID)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, reg)
}
