package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	h "eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/domain"
)

type contextKey string

const identityKey contextKey = "identity"

// WebhookSecretHeader carries the shared secret on payment provider callbacks.
const WebhookSecretHeader = "X-Webhook-Secret"

// SetIdentity returns a context with the authenticated identity set. Used by auth middleware.
func SetIdentity(ctx context.Context, identity *domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the authenticated identity from the context, if present.
func IdentityFromContext(ctx context.Context) (*domain.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*domain.Identity)
	return id, ok && id != nil
}

// UserIDFromContext returns the authenticated user ID from the context, if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return "", false
	}
	return id.UserID, true
}

// RequireAuth returns a wrapper that validates the Bearer token and sets the identity in the request context.
// If the token is missing or invalid, it responds with 401 and does not call next.
func RequireAuth(verifier domain.TokenVerifier, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			identity, msg := authenticate(verifier, r)
			if identity == nil {
				logger.DebugContext(r.Context(), "authentication failed", "path", r.URL.Path, "reason", msg)
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, msg)
				return
			}
			next(w, r.WithContext(SetIdentity(r.Context(), identity)))
		}
	}
}

func authenticate(verifier domain.TokenVerifier, r *http.Request) (*domain.Identity, string) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return nil, "missing authorization header"
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return nil, "invalid authorization format"
	}
	token := strings.TrimSpace(auth[len(prefix):])
	if token == "" {
		return nil, "missing token"
	}
	identity, err := verifier.Verify(token)
	if err != nil {
		return nil, "invalid or expired token"
	}
	return identity, ""
}

// RequireOperator responds with 403 unless the identity set by RequireAuth is an admin or operator.
func RequireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "unauthorized")
			return
		}
		if !identity.IsOperator() {
			h.WriteJSONError(w, http.StatusForbidden, h.ErrCodeForbidden, "operator role required")
			return
		}
		next(w, r)
	}
}

// RequireWebhookOrOperator admits payment provider callbacks that present the shared secret,
// and otherwise falls back to operator authentication. An empty secret disables the header path.
func RequireWebhookOrOperator(secret string, verifier domain.TokenVerifier, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	requireAuth := RequireAuth(verifier, logger)
	return func(next http.HandlerFunc) http.HandlerFunc {
		operator := requireAuth(RequireOperator(next))
		return func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get(WebhookSecretHeader); got != "" {
				if secret != "" && subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1 {
					next(w, r)
					return
				}
				logger.WarnContext(r.Context(), "webhook secret rejected", "path", r.URL.Path)
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "invalid webhook secret")
				return
			}
			operator(w, r)
		}
	}
}
