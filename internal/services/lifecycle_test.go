package services

import (
	"testing"

	"github.com/otcheredev/emergency-dispatch/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.EmergencyStatus
		want     bool
	}{
		{models.StatusPending, models.StatusAccepted, true},
		{models.StatusPending, models.StatusDispatched, false},
		{models.StatusAccepted, models.StatusDispatched, true},
		{models.StatusDispatched, models.StatusEnRoute, true},
		{models.StatusEnRoute, models.StatusAtScene, true},
		{models.StatusAtScene, models.StatusTransporting, true},
		{models.StatusTransporting, models.StatusCompleted, true},
		{models.StatusTransporting, models.StatusAtScene, false},
		{models.StatusPending, models.StatusCancelled, true},
		{models.StatusTransporting, models.StatusCancelled, true},
		{models.StatusCompleted, models.StatusCancelled, false},
		{models.StatusCancelled, models.StatusPending, false},
		{"bogus", models.StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestNextStatus_TerminalHasNone(t *testing.T) {
	_, ok := NextStatus(models.StatusCompleted)
	assert.False(t, ok)
	_, ok = NextStatus(models.StatusCancelled)
	assert.False(t, ok)
}

func TestEstimateETAMinutes(t *testing.T) {
	here := models.Coordinates{Latitude: 5.60, Longitude: -0.18}

	assert.Equal(t, 1, EstimateETAMinutes(here, here))
	// 0.1 degrees is about 11.1km, 16.65 minutes at 40km/h
	assert.Equal(t, 17, EstimateETAMinutes(here, models.Coordinates{Latitude: 5.70, Longitude: -0.18}))
}
