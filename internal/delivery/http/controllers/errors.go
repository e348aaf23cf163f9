package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/domain"
)

// writeServiceError maps a service error onto the response envelope. Unclassified errors are logged and
// reported as 500 without their detail.
func writeServiceError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	var closed *domain.RegistrationClosedError
	var transition *domain.TransitionError
	switch {
	case errors.As(err, &closed):
		helpers.WriteJSONError(w, http.StatusBadRequest, string(closed.Reason), closed.Error())
	case errors.As(err, &transition):
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeInvalidState, transition.Error())
	case errors.Is(err, domain.ErrPaymentAfterCancellation):
		helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodePaymentAfterCancellation, err.Error())
	case errors.Is(err, domain.ErrAlreadyRegistered):
		helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeAlreadyRegistered, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		helpers.WriteJSONError(w, http.StatusForbidden, helpers.ErrCodeForbidden, err.Error())
	default:
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "internal server error")
	}
}

// pathUUID reads a path value that must be a UUID. On failure it writes a 400 and returns false.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.PathValue(name)
	if v == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing "+name)
		return "", false
	}
	if _, err := uuid.Parse(v); err != nil {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid "+name)
		return "", false
	}
	return v, true
}
