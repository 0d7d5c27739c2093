package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"gorm.io/gorm"
)

// AmbulanceRepository handles ambulance database operations
type AmbulanceRepository struct {
	db *gorm.DB
}

// NewAmbulanceRepository creates a new ambulance repository
func NewAmbulanceRepository(db *gorm.DB) *AmbulanceRepository {
	return &AmbulanceRepository{db: db}
}

// Create creates a new ambulance
func (r *AmbulanceRepository) Create(ctx context.Context, ambulance *models.Ambulance) error {
	if err := r.db.WithContext(ctx).Create(ambulance).Error; err != nil {
		return fmt.Errorf("failed to create ambulance: %w", err)
	}
	return nil
}

// GetByID retrieves an ambulance by ID
func (r *AmbulanceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ambulance, error) {
	var ambulance models.Ambulance
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ambulance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ambulance: %w", err)
	}
	return &ambulance, nil
}

// GetByOperator retrieves the ambulance driven by an operator account
func (r *AmbulanceRepository) GetByOperator(ctx context.Context, operatorID uuid.UUID) (*models.Ambulance, error) {
	var ambulance models.Ambulance
	if err := r.db.WithContext(ctx).Where("operator_id = ?", operatorID).First(&ambulance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ambulance: %w", err)
	}
	return &ambulance, nil
}

// UpdateLocation stores the latest position ping
func (r *AmbulanceRepository) UpdateLocation(ctx context.Context, id uuid.UUID, at models.Coordinates) error {
	res := r.db.WithContext(ctx).
		Model(&models.Ambulance{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"latitude":   at.Latitude,
			"longitude":  at.Longitude,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update ambulance location: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus moves an ambulance to status if it is currently in one of from
func (r *AmbulanceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []models.AmbulanceStatus, status models.AmbulanceStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.Ambulance{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update ambulance status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// FindAvailableNearby returns active, available ambulances within radius
// degrees, nearest first. Distance is planar on raw lat/lng.
func (r *AmbulanceRepository) FindAvailableNearby(ctx context.Context, at models.Coordinates, radius float64, limit int) ([]models.Ambulance, error) {
	var ambulances []models.Ambulance
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND status = ?", true, models.AmbulanceAvailable).
		Where("latitude IS NOT NULL AND longitude IS NOT NULL").
		Where("(latitude - ?) * (latitude - ?) + (longitude - ?) * (longitude - ?) <= ?",
			at.Latitude, at.Latitude, at.Longitude, at.Longitude, radius*radius).
		Find(&ambulances).Error; err != nil {
		return nil, fmt.Errorf("failed to find nearby ambulances: %w", err)
	}

	distance := func(a models.Ambulance) float64 {
		pos, _ := a.Position()
		return models.PlanarDistance(at, pos)
	}
	sort.SliceStable(ambulances, func(i, j int) bool {
		return distance(ambulances[i]) < distance(ambulances[j])
	})
	if limit > 0 && len(ambulances) > limit {
		ambulances = ambulances[:limit]
	}
	return ambulances, nil
}
