package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BedRepository handles bed slot operations. Occupancy changes always flip
// an existing bed_status_logs row; SeedBeds is the only path that inserts.
type BedRepository struct {
	db *gorm.DB
}

// NewBedRepository creates a new bed repository
func NewBedRepository(db *gorm.DB) *BedRepository {
	return &BedRepository{db: db}
}

// ListByHospital retrieves every slot of a hospital
func (r *BedRepository) ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]models.BedStatusLog, error) {
	var beds []models.BedStatusLog
	if err := r.db.WithContext(ctx).
		Where("hospital_id = ?", hospitalID).
		Order("bed_type ASC, bed_number ASC").
		Find(&beds).Error; err != nil {
		return nil, fmt.Errorf("failed to list beds: %w", err)
	}
	return beds, nil
}

// SeedBeds adds count new free slots numbered prefix-NNN after the existing ones
func (r *BedRepository) SeedBeds(ctx context.Context, hospitalID uuid.UUID, bedType models.BedType, prefix string, count int) ([]models.BedStatusLog, models.BedCounts, error) {
	var beds []models.BedStatusLog
	var counts models.BedCounts

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.BedStatusLog{}).
			Where("hospital_id = ? AND bed_type = ?", hospitalID, bedType).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to count beds: %w", err)
		}

		beds = make([]models.BedStatusLog, 0, count)
		for i := 1; i <= count; i++ {
			beds = append(beds, models.BedStatusLog{
				HospitalID: hospitalID,
				BedNumber:  fmt.Sprintf("%s-%03d", prefix, int(existing)+i),
				BedType:    bedType,
				Status:     models.BedAvailable,
			})
		}
		if err := tx.Create(&beds).Error; err != nil {
			return fmt.Errorf("failed to seed beds: %w", err)
		}

		var err error
		counts, err = syncHospitalCounts(tx, hospitalID)
		return err
	})
	if err != nil {
		return nil, models.BedCounts{}, err
	}
	return beds, counts, nil
}

// Occupy takes the lowest-numbered free slot of the given type
func (r *BedRepository) Occupy(ctx context.Context, hospitalID uuid.UUID, bedType models.BedType, occupant string) (*models.BedStatusLog, models.BedCounts, error) {
	var bed *models.BedStatusLog
	var counts models.BedCounts

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		bed, err = occupyBedSlot(tx, hospitalID, bedType, occupant, nil)
		if err != nil {
			return err
		}
		counts, err = syncHospitalCounts(tx, hospitalID)
		return err
	})
	if err != nil {
		return nil, models.BedCounts{}, err
	}
	return bed, counts, nil
}

// Release frees an occupied slot
func (r *BedRepository) Release(ctx context.Context, hospitalID uuid.UUID, bedNumber string) (models.BedCounts, error) {
	var counts models.BedCounts

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.BedStatusLog{}).
			Where("hospital_id = ? AND bed_number = ? AND status = ?", hospitalID, bedNumber, models.BedOccupied).
			Updates(map[string]interface{}{
				"status":               models.BedAvailable,
				"occupant_name":        "",
				"emergency_request_id": nil,
				"updated_at":           time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to release bed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrBedNotOccupied
		}

		var err error
		counts, err = syncHospitalCounts(tx, hospitalID)
		return err
	})
	if err != nil {
		return models.BedCounts{}, err
	}
	return counts, nil
}

// Counts derives the bed counters of a hospital from its slots
func (r *BedRepository) Counts(ctx context.Context, hospitalID uuid.UUID) (models.BedCounts, error) {
	return countBeds(r.db.WithContext(ctx), hospitalID)
}

func occupyBedSlot(tx *gorm.DB, hospitalID uuid.UUID, bedType models.BedType, occupant string, requestID *uuid.UUID) (*models.BedStatusLog, error) {
	if bedType == "" {
		bedType = models.BedGeneral
	}

	var slot models.BedStatusLog
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("hospital_id = ? AND bed_type = ? AND status = ?", hospitalID, bedType, models.BedAvailable).
		Order("bed_number ASC").
		First(&slot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoBedAvailable
		}
		return nil, fmt.Errorf("failed to find free bed: %w", err)
	}

	updates := map[string]interface{}{
		"status":        models.BedOccupied,
		"occupant_name": occupant,
		"updated_at":    time.Now().UTC(),
	}
	if requestID != nil {
		updates["emergency_request_id"] = *requestID
	}
	res := tx.Model(&models.BedStatusLog{}).
		Where("id = ? AND status = ?", slot.ID, models.BedAvailable).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to occupy bed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNoBedAvailable
	}

	slot.Status = models.BedOccupied
	slot.OccupantName = occupant
	slot.EmergencyRequestID = requestID
	return &slot, nil
}

type bedTally struct {
	BedType models.BedType
	Status  models.BedState
	Total   int
}

func countBeds(db *gorm.DB, hospitalID uuid.UUID) (models.BedCounts, error) {
	var rows []bedTally
	if err := db.Model(&models.BedStatusLog{}).
		Select("bed_type, status, count(*) AS total").
		Where("hospital_id = ?", hospitalID).
		Group("bed_type, status").
		Scan(&rows).Error; err != nil {
		return models.BedCounts{}, fmt.Errorf("failed to count beds: %w", err)
	}

	var counts models.BedCounts
	for _, row := range rows {
		switch row.BedType {
		case models.BedICU:
			counts.ICUBeds += row.Total
			if row.Status == models.BedAvailable {
				counts.AvailableICUBeds += row.Total
			}
		default:
			counts.TotalBeds += row.Total
			if row.Status == models.BedAvailable {
				counts.AvailableBeds += row.Total
			}
		}
	}
	return counts, nil
}

// syncHospitalCounts rewrites the hospital's cached counters from its slots
func syncHospitalCounts(tx *gorm.DB, hospitalID uuid.UUID) (models.BedCounts, error) {
	counts, err := countBeds(tx, hospitalID)
	if err != nil {
		return models.BedCounts{}, err
	}

	if err := tx.Model(&models.Hospital{}).
		Where("id = ?", hospitalID).
		Updates(map[string]interface{}{
			"total_beds":         counts.TotalBeds,
			"available_beds":     counts.AvailableBeds,
			"icu_beds":           counts.ICUBeds,
			"available_icu_beds": counts.AvailableICUBeds,
			"emergency_status":   counts.DerivedStatus(),
			"updated_at":         time.Now().UTC(),
		}).Error; err != nil {
		return models.BedCounts{}, fmt.Errorf("failed to update hospital counters: %w", err)
	}
	return counts, nil
}
