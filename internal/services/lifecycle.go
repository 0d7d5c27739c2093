package services

import (
	"math"

	"github.com/otcheredev/emergency-dispatch/internal/models"
)

// sequence is the forward path of a request; cancelled is reachable from any
// non-terminal state and is handled separately.
var sequence = []models.EmergencyStatus{
	models.StatusPending,
	models.StatusAccepted,
	models.StatusDispatched,
	models.StatusEnRoute,
	models.StatusAtScene,
	models.StatusTransporting,
	models.StatusCompleted,
}

// NextStatus returns the single forward successor of s
func NextStatus(s models.EmergencyStatus) (models.EmergencyStatus, bool) {
	for i := 0; i < len(sequence)-1; i++ {
		if sequence[i] == s {
			return sequence[i+1], true
		}
	}
	return "", false
}

// CanTransition reports whether from → to is an edge of the lifecycle
func CanTransition(from, to models.EmergencyStatus) bool {
	if from.Terminal() || !from.Valid() {
		return false
	}
	if to == models.StatusCancelled {
		return true
	}
	next, ok := NextStatus(from)
	return ok && next == to
}

const (
	kmPerDegree     = 111.0
	averageSpeedKmh = 40.0
)

// EstimateETAMinutes converts the planar distance between two points into a
// drive time at a fixed average urban speed, never less than one minute.
func EstimateETAMinutes(from, to models.Coordinates) int {
	km := models.PlanarDistance(from, to) * kmPerDegree
	minutes := int(math.Ceil(km / averageSpeedKmh * 60))
	if minutes < 1 {
		return 1
	}
	return minutes
}
