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

// HospitalRepository handles hospital database operations
type HospitalRepository struct {
	db *gorm.DB
}

// NewHospitalRepository creates a new hospital repository
func NewHospitalRepository(db *gorm.DB) *HospitalRepository {
	return &HospitalRepository{db: db}
}

// Create creates a new hospital
func (r *HospitalRepository) Create(ctx context.Context, hospital *models.Hospital) error {
	if err := r.db.WithContext(ctx).Create(hospital).Error; err != nil {
		return fmt.Errorf("failed to create hospital: %w", err)
	}
	return nil
}

// GetByID retrieves a hospital by ID
func (r *HospitalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Hospital, error) {
	var hospital models.Hospital
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&hospital).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get hospital: %w", err)
	}
	return &hospital, nil
}

// GetByOwner retrieves the hospital administered by a user
func (r *HospitalRepository) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Hospital, error) {
	var hospital models.Hospital
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&hospital).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get hospital: %w", err)
	}
	return &hospital, nil
}

// FindNearby returns hospitals within radius degrees of the point, nearest
// first. Distance is planar on raw lat/lng (see models.PlanarDistance).
func (r *HospitalRepository) FindNearby(ctx context.Context, at models.Coordinates, radius float64, limit int) ([]models.Hospital, error) {
	var hospitals []models.Hospital
	if err := r.db.WithContext(ctx).
		Where("(latitude - ?) * (latitude - ?) + (longitude - ?) * (longitude - ?) <= ?",
			at.Latitude, at.Latitude, at.Longitude, at.Longitude, radius*radius).
		Find(&hospitals).Error; err != nil {
		return nil, fmt.Errorf("failed to find nearby hospitals: %w", err)
	}

	sort.SliceStable(hospitals, func(i, j int) bool {
		return models.PlanarDistance(at, coordsOf(hospitals[i])) < models.PlanarDistance(at, coordsOf(hospitals[j]))
	})
	if limit > 0 && len(hospitals) > limit {
		hospitals = hospitals[:limit]
	}
	return hospitals, nil
}

// UpdateStatus sets the advertised emergency status
func (r *HospitalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.HospitalStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.Hospital{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"emergency_status": status,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update hospital status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func coordsOf(h models.Hospital) models.Coordinates {
	return models.Coordinates{Latitude: h.Latitude, Longitude: h.Longitude}
}
