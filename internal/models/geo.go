package models

import (
	"fmt"
	"math"
)

// Coordinates is a raw latitude/longitude pair
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Validate checks the pair lies on the globe
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return fmt.Errorf("coordinates must be numbers")
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", c.Longitude)
	}
	return nil
}

// PlanarDistance is the Euclidean distance between two points measured in raw
// degrees. It is an approximation that ignores the earth's curvature and the
// shrinking of longitude degrees away from the equator; adequate at metro
// scale only.
func PlanarDistance(a, b Coordinates) float64 {
	dLat := a.Latitude - b.Latitude
	dLng := a.Longitude - b.Longitude
	return math.Sqrt(dLat*dLat + dLng*dLng)
}
