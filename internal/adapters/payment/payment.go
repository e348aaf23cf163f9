// Package payment provides the PaymentAuthorizer used when a paid registration is created.
package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"eventregistration/internal/domain"
)

// Mode selects how paid registrations are settled.
type Mode string

const (
	// ModeDeferred leaves paid registrations pending until the provider calls back.
	ModeDeferred Mode = "deferred"
	// ModeSimulated settles every paid registration at creation. Intended for local use.
	ModeSimulated Mode = "simulated"
)

// New returns the authorizer for mode.
func New(mode Mode) (domain.PaymentAuthorizer, error) {
	switch mode {
	case ModeDeferred, "":
		return deferred{}, nil
	case ModeSimulated:
		return simulated{}, nil
	}
	return nil, fmt.Errorf("unknown payment mode %q", mode)
}

type deferred struct{}

// Authorize records the client's reference, if any, and leaves settlement to the webhook.
func (deferred) Authorize(ctx context.Context, reg *domain.Registration, intent domain.PaymentIntent) (*domain.PaymentAuthorization, error) {
	return &domain.PaymentAuthorization{PaymentID: intent.Reference}, nil
}

type simulated struct{}

func (simulated) Authorize(ctx context.Context, reg *domain.Registration, intent domain.PaymentIntent) (*domain.PaymentAuthorization, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := intent.Reference
	if id == "" {
		id = "sim_" + uuid.NewString()
	}
	return &domain.PaymentAuthorization{PaymentID: id, Settled: true}, nil
}
