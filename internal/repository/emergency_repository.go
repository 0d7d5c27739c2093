package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"gorm.io/gorm"
)

var activeStatuses = []models.EmergencyStatus{
	models.StatusAccepted,
	models.StatusDispatched,
	models.StatusEnRoute,
	models.StatusAtScene,
	models.StatusTransporting,
}

var terminalStatuses = []models.EmergencyStatus{
	models.StatusCompleted,
	models.StatusCancelled,
}

// EmergencyFilter narrows a request listing. Owner fields are OR-ed together.
type EmergencyFilter struct {
	PatientID      *uuid.UUID
	AmbulanceID    *uuid.UUID
	HospitalID     *uuid.UUID
	IncludePending bool
	Statuses       []models.EmergencyStatus
	Limit          int
}

// StatusTransition is a compare-and-swap on a request's status
type StatusTransition struct {
	ID           uuid.UUID
	From         models.EmergencyStatus
	To           models.EmergencyStatus
	RequireETA   bool
	AmbulanceID  *uuid.UUID // released back to available when set
	CancelReason string
}

// Completion finishes a request and optionally occupies a bed slot
type Completion struct {
	ID           uuid.UUID
	From         models.EmergencyStatus
	AmbulanceID  *uuid.UUID
	HospitalID   *uuid.UUID
	AssignBed    bool
	BedType      models.BedType
	OccupantName string
}

// CompletionResult reports the bed taken by a completion, if any
type CompletionResult struct {
	Bed    *models.BedStatusLog
	Counts *models.BedCounts
}

// EmergencyRepository handles emergency request database operations
type EmergencyRepository struct {
	db *gorm.DB
}

// NewEmergencyRepository creates a new emergency repository
func NewEmergencyRepository(db *gorm.DB) *EmergencyRepository {
	return &EmergencyRepository{db: db}
}

// Create inserts a new request
func (r *EmergencyRepository) Create(ctx context.Context, req *models.EmergencyRequest) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return fmt.Errorf("failed to create emergency request: %w", err)
	}
	return nil
}

// GetByID retrieves a request by ID
func (r *EmergencyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.EmergencyRequest, error) {
	var req models.EmergencyRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get emergency request: %w", err)
	}
	return &req, nil
}

// List retrieves requests matching the filter, newest first
func (r *EmergencyRepository) List(ctx context.Context, filter EmergencyFilter) ([]models.EmergencyRequest, error) {
	query := r.db.WithContext(ctx).Model(&models.EmergencyRequest{})

	var conds []string
	var args []interface{}
	if filter.PatientID != nil {
		conds = append(conds, "patient_id = ?")
		args = append(args, *filter.PatientID)
	}
	if filter.AmbulanceID != nil {
		conds = append(conds, "ambulance_id = ?")
		args = append(args, *filter.AmbulanceID)
	}
	if filter.HospitalID != nil {
		conds = append(conds, "hospital_id = ?")
		args = append(args, *filter.HospitalID)
	}
	if filter.IncludePending {
		conds = append(conds, "(status = ? AND ambulance_id IS NULL)")
		args = append(args, models.StatusPending)
	}
	if len(conds) > 0 {
		query = query.Where("("+strings.Join(conds, " OR ")+")", args...)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var reqs []models.EmergencyRequest
	if err := query.Order("created_at DESC").Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("failed to list emergency requests: %w", err)
	}
	return reqs, nil
}

// ActiveForAmbulance returns the non-terminal request the ambulance owns
func (r *EmergencyRepository) ActiveForAmbulance(ctx context.Context, ambulanceID uuid.UUID) (*models.EmergencyRequest, error) {
	var req models.EmergencyRequest
	err := r.db.WithContext(ctx).
		Where("ambulance_id = ? AND status IN ?", ambulanceID, activeStatuses).
		Order("updated_at DESC").
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active request: %w", err)
	}
	return &req, nil
}

// UpdateDetails edits descriptive fields of a non-terminal request
func (r *EmergencyRepository) UpdateDetails(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.EmergencyRequest{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update emergency request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// Claim assigns a pending request to an available ambulance. Both rows are
// compare-and-swapped in one transaction so concurrent claims on the same
// request or ambulance leave exactly one winner.
func (r *EmergencyRepository) Claim(ctx context.Context, id, ambulanceID uuid.UUID, etaMinutes *int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		res := tx.Model(&models.Ambulance{}).
			Where("id = ? AND status = ? AND is_active = ?", ambulanceID, models.AmbulanceAvailable, true).
			Updates(map[string]interface{}{
				"status":     models.AmbulanceDispatched,
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to reserve ambulance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAmbulanceUnavailable
		}

		updates := map[string]interface{}{
			"status":       models.StatusAccepted,
			"ambulance_id": ambulanceID,
			"updated_at":   now,
		}
		if etaMinutes != nil {
			updates["estimated_arrival_minutes"] = *etaMinutes
		}
		res = tx.Model(&models.EmergencyRequest{}).
			Where("id = ? AND status = ? AND ambulance_id IS NULL", id, models.StatusPending).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to claim emergency request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyClaimed
		}
		return nil
	})
}

// SetETA records the estimated arrival on an active request
func (r *EmergencyRepository) SetETA(ctx context.Context, id uuid.UUID, minutes int) error {
	res := r.db.WithContext(ctx).
		Model(&models.EmergencyRequest{}).
		Where("id = ? AND status IN ?", id, activeStatuses).
		Updates(map[string]interface{}{
			"estimated_arrival_minutes": minutes,
			"updated_at":                time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to set ETA: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// Transition moves a request from one status to another
func (r *EmergencyRepository) Transition(ctx context.Context, t StatusTransition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.EmergencyRequest{}).Where("id = ? AND status = ?", t.ID, t.From)
		if t.RequireETA {
			query = query.Where("estimated_arrival_minutes IS NOT NULL")
		}

		updates := map[string]interface{}{
			"status":     t.To,
			"updated_at": time.Now().UTC(),
		}
		if t.To == models.StatusCancelled {
			updates["ambulance_id"] = nil
			if t.CancelReason != "" {
				updates["cancel_reason"] = t.CancelReason
			}
		}

		res := query.Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to transition emergency request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleStatus
		}

		if t.AmbulanceID != nil {
			return releaseAmbulance(tx, *t.AmbulanceID)
		}
		return nil
	})
}

// Complete marks a request completed, taking a bed slot in the same
// transaction when asked to.
func (r *EmergencyRepository) Complete(ctx context.Context, c Completion) (*CompletionResult, error) {
	result := &CompletionResult{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":     models.StatusCompleted,
			"updated_at": time.Now().UTC(),
		}
		if c.HospitalID != nil {
			updates["hospital_id"] = *c.HospitalID
		}

		res := tx.Model(&models.EmergencyRequest{}).
			Where("id = ? AND status = ?", c.ID, c.From).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to complete emergency request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleStatus
		}

		if c.AssignBed && c.HospitalID != nil {
			bed, err := occupyBedSlot(tx, *c.HospitalID, c.BedType, c.OccupantName, &c.ID)
			if err != nil {
				return err
			}
			if err := tx.Model(&models.EmergencyRequest{}).
				Where("id = ?", c.ID).
				Update("assigned_bed_number", bed.BedNumber).Error; err != nil {
				return fmt.Errorf("failed to record bed assignment: %w", err)
			}
			counts, err := syncHospitalCounts(tx, *c.HospitalID)
			if err != nil {
				return err
			}
			result.Bed = bed
			result.Counts = &counts
		}

		if c.AmbulanceID != nil {
			return releaseAmbulance(tx, *c.AmbulanceID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SoftDelete hides a finished request; active requests are never removed
func (r *EmergencyRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status IN ?", id, terminalStatuses).
		Delete(&models.EmergencyRequest{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete emergency request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func releaseAmbulance(tx *gorm.DB, ambulanceID uuid.UUID) error {
	err := tx.Model(&models.Ambulance{}).
		Where("id = ? AND status IN ?", ambulanceID, []models.AmbulanceStatus{models.AmbulanceDispatched, models.AmbulanceBusy}).
		Updates(map[string]interface{}{
			"status":     models.AmbulanceAvailable,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to release ambulance: %w", err)
	}
	return nil
}
