package payment

import (
	"context"
	"strings"
	"testing"

	"eventregistration/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		mode        Mode
		intent      domain.PaymentIntent
		wantSettled bool
		wantID      string
		wantPrefix  string
		wantErr     bool
	}{
		{name: "deferred keeps the client reference", mode: ModeDeferred, intent: domain.PaymentIntent{Reference: "ch_1"}, wantID: "ch_1"},
		{name: "empty mode defaults to deferred", mode: "", wantID: ""},
		{name: "simulated settles with generated id", mode: ModeSimulated, wantSettled: true, wantPrefix: "sim_"},
		{name: "simulated keeps the client reference", mode: ModeSimulated, intent: domain.PaymentIntent{Reference: "ch_2"}, wantSettled: true, wantID: "ch_2"},
		{name: "unknown mode", mode: "stripe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authorizer, err := New(tt.mode)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			got, err := authorizer.Authorize(context.Background(), &domain.Registration{ID: "r-1"}, tt.intent)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSettled, got.Settled)
			if tt.wantPrefix != "" {
				assert.True(t, strings.HasPrefix(got.PaymentID, tt.wantPrefix), got.PaymentID)
			} else {
				assert.Equal(t, tt.wantID, got.PaymentID)
			}
		})
	}
}
