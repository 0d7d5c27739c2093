package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"gorm.io/gorm"
)

// CommunicationRepository handles chat message persistence
type CommunicationRepository struct {
	db *gorm.DB
}

// NewCommunicationRepository creates a new communication repository
func NewCommunicationRepository(db *gorm.DB) *CommunicationRepository {
	return &CommunicationRepository{db: db}
}

// Create stores a message
func (r *CommunicationRepository) Create(ctx context.Context, msg *models.Communication) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create communication: %w", err)
	}
	return nil
}

// ListByRequest retrieves the conversation on a request, oldest first
func (r *CommunicationRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.Communication, error) {
	var msgs []models.Communication
	if err := r.db.WithContext(ctx).
		Where("emergency_request_id = ?", requestID).
		Order("created_at ASC").
		Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list communications: %w", err)
	}
	return msgs, nil
}

// MarkRead flags a message read; only its receiver may do so
func (r *CommunicationRepository) MarkRead(ctx context.Context, id, receiverID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Communication{}).
		Where("id = ? AND receiver_id = ?", id, receiverID).
		Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("failed to mark communication read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
