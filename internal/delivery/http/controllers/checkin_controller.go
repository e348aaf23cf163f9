package controllers

import (
	"context"
	"log/slog"
	"net/http"

	"eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/domain"
)

type CheckInController struct {
	Logger  *slog.Logger
	Service domain.CheckInService
}

func NewCheckInController(logger *slog.Logger, svc domain.CheckInService) *CheckInController {
	return &CheckInController{
		Logger:  logger,
		Service: svc,
	}
}

// CheckIn godoc
// @Summary Check in an attendee
// @Description Moves a confirmed registration to attended. Checking in twice returns the attended registration.
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
// @Router /events/{eventID}/registrations/{registrationID}/checkin [patch]
func (c *CheckInController) CheckIn(w http.ResponseWriter, r *http.Request) {
	c.settle(w, r, c.Service.CheckIn)
}

// MarkNoShow godoc
// @Summary Mark a registration as no-show
// @Description Moves a confirmed registration to no-show and releases its slot.
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
// @Router /events/{eventID}/registrations/{registrationID}/no-show [patch]
func (c *CheckInController) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	c.settle(w, r, c.Service.MarkNoShow)
}

func (c *CheckInController) settle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, eventID, registrationID string) (*domain.Registration, error)) {
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	registrationID, ok := pathUUID(w, r, "registrationID")
	if !ok {
		return
	}
	reg, err := op(r.Context(), eventID, registrationID)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, reg)
}
