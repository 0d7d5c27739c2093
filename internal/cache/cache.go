package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/models"
)

// ErrCacheMiss is returned when a key is not found in cache
var ErrCacheMiss = errors.New("cache miss")

// Cache defines the cache interface
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// LocationKey is the key holding an ambulance's last reported position
func LocationKey(ambulanceID uuid.UUID) string {
	return "ambulance:" + ambulanceID.String() + ":location"
}

type position struct {
	models.Coordinates
	ReportedAt time.Time `json:"reported_at"`
}

// SetLocation records the latest position of an ambulance
func SetLocation(ctx context.Context, c Cache, ambulanceID uuid.UUID, at models.Coordinates, ttl time.Duration) error {
	data, err := json.Marshal(position{Coordinates: at, ReportedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode location: %w", err)
	}
	return c.Set(ctx, LocationKey(ambulanceID), data, ttl)
}

// GetLocation returns the cached position of an ambulance, or ErrCacheMiss
func GetLocation(ctx context.Context, c Cache, ambulanceID uuid.UUID) (models.Coordinates, error) {
	data, err := c.Get(ctx, LocationKey(ambulanceID))
	if err != nil {
		return models.Coordinates{}, err
	}
	var p position
	if err := json.Unmarshal(data, &p); err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to decode location: %w", err)
	}
	return p.Coordinates, nil
}

// DeleteLocation forgets an ambulance's cached position
func DeleteLocation(ctx context.Context, c Cache, ambulanceID uuid.UUID) error {
	return c.Delete(ctx, LocationKey(ambulanceID))
}
