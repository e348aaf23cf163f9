package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	"eventregistration/internal/delivery/http/controllers"
	"eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/delivery/http/middleware"
	"eventregistration/internal/domain"
)

// healthTimeout bounds a single /health check of the backing store.
const healthTimeout = 2 * time.Second

// RouterDeps is everything NewRouter needs to mount the API.
type RouterDeps struct {
	Logger         *slog.Logger
	Registration   *controllers.RegistrationController
	CheckIn        *controllers.CheckInController
	Verifier       domain.TokenVerifier
	WebhookSecret  string
	AllowedOrigins []string
	// Health pings the backing store; nil reports healthy.
	Health func(ctx context.Context) error
	// Metrics serves the Prometheus exposition; nil leaves /metrics unmounted.
	Metrics http.Handler
}

// NewRouter initializes the HTTP router with all application routes
func NewRouter(d RouterDeps) http.Handler {
	mux := http.NewServeMux()

	auth := middleware.RequireAuth(d.Verifier, d.Logger)
	operator := func(h http.HandlerFunc) http.HandlerFunc { return auth(middleware.RequireOperator(h)) }
	webhook := middleware.RequireWebhookOrOperator(d.WebhookSecret, d.Verifier, d.Logger)

	// Attendee
	mux.HandleFunc("POST /events/{eventID}/register", auth(d.Registration.Register))
	mux.HandleFunc("DELETE /events/{eventID}/register", auth(d.Registration.Cancel))
	mux.HandleFunc("GET /events/{eventID}/registration-status", auth(d.Registration.GetStatus))
	mux.HandleFunc("GET /events/{eventID}/availability", auth(d.Registration.GetAvailability))
	mux.HandleFunc("GET /events/my-registrations", auth(d.Registration.ListMyRegistrations))

	// Operator
	mux.HandleFunc("GET /events/{eventID}/registrations", operator(d.Registration.ListEventRegistrations))
	mux.HandleFunc("DELETE /events/{eventID}/registrations/{registrationID}", operator(d.Registration.CancelByOperator))
	mux.HandleFunc("PATCH /events/{eventID}/registrations/{registrationID}/checkin", operator(d.CheckIn.CheckIn))
	mux.HandleFunc("PATCH /events/{eventID}/registrations/{registrationID}/no-show", operator(d.CheckIn.MarkNoShow))

	// Payment provider callback
	mux.HandleFunc("PATCH /events/{eventID}/registrations/{registrationID}/payment", webhook(d.Registration.UpdatePayment))

	mux.HandleFunc("GET /health", healthHandler(d.Logger, d.Health))
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	var h http.Handler = mux
	h = middleware.CORS(d.AllowedOrigins, h)
	h = chimw.Recoverer(h)
	h = middleware.LoggingMiddleware(d.Logger, h)
	h = chimw.RealIP(h)
	h = chimw.RequestID(h)
	return h
}

// healthHandler godoc
// @Summary Liveness and store connectivity
// @Tags health
// @Produce json
// @Success 200 {object} helpers.APIResponse
// @Failure 503 {object} helpers.APIResponse "error.code: unavailable"
// @Router /health [get]
func healthHandler(logger *slog.Logger, ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := ping(ctx); err != nil {
				logger.WarnContext(r.Context(), "health check failed", "err", err)
				helpers.WriteJSONError(w, http.StatusServiceUnavailable, helpers.ErrCodeUnavailable, "store unavailable")
				return
			}
		}
		helpers.WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
