package domain

import "time"

// Role codes recognised by the registration API.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleAttendee = "attendee"
)

// Identity is the authenticated caller as supplied by the auth context.
// Name, Email and Phone are profile defaults for the registration contact snapshot.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Phone  string
	Roles  []string
}

// HasRole reports whether the identity carries any of roles.
func (i *Identity) HasRole(roles ...string) bool {
	for _, have := range i.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// IsOperator reports whether the identity may run operator actions such as check-in.
func (i *Identity) IsOperator() bool {
	return i.HasRole(RoleAdmin, RoleOperator)
}

// TokenIssuer issues tokens (e.g. JWT) for an identity.
type TokenIssuer interface {
	Issue(identity *Identity, expiry time.Duration) (string, error)
}

// TokenVerifier verifies a token and returns the authenticated identity.
type TokenVerifier interface {
	Verify(token string) (*Identity, error)
}
