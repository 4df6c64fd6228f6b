package entitlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeStatus(t *testing.T) {
	now := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		ent      *Entitlement
		expected Status
	}{
		{
			name:     "no entitlement",
			ent:      nil,
			expected: StatusNoPackage,
		},
		{
			name: "active with quota left",
			ent: &Entitlement{
				QuotaTotal:    100,
				QuotaConsumed: 40,
				ExpiresAt:     now.AddDate(0, 0, 10),
			},
			expected: StatusActive,
		},
		{
			name: "expired",
			ent: &Entitlement{
				QuotaTotal:    100,
				QuotaConsumed: 40,
				ExpiresAt:     now.AddDate(0, 0, -1),
			},
			expected: StatusExpired,
		},
		{
			name: "exhausted",
			ent: &Entitlement{
				QuotaTotal:    100,
				QuotaConsumed: 100,
				ExpiresAt:     now.AddDate(0, 0, 10),
			},
			expected: StatusExhausted,
		},
		{
			name: "expired wins over exhausted",
			ent: &Entitlement{
				QuotaTotal:    100,
				QuotaConsumed: 100,
				ExpiresAt:     now.AddDate(0, 0, -1),
			},
			expected: StatusExpired,
		},
		{
			name: "expires exactly now is still active",
			ent: &Entitlement{
				QuotaTotal:    100,
				QuotaConsumed: 0,
				ExpiresAt:     now,
			},
			expected: StatusActive,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ComputeStatus(tc.ent, now))
		})
	}
}

func TestRemaining(t *testing.T) {
	ent := &Entitlement{
		QuotaTotal:    100,
		QuotaConsumed: 37,
	}
	assert.Equal(t, int64(63), ent.Remaining())

	ent.QuotaConsumed = 100
	assert.Equal(t, int64(0), ent.Remaining())
}
