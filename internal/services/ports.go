package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"github.com/otcheredev/emergency-dispatch/internal/repository"
	"github.com/otcheredev/emergency-dispatch/pkg/protocol"
)

// Broadcaster delivers frames to connected clients. Delivery is best effort
// and failures are never reported back to the operation that triggered it.
type Broadcaster interface {
	BroadcastToRole(role models.Role, frame protocol.Frame) int
	SendToIdentity(role models.Role, userID uuid.UUID, frame protocol.Frame) bool
}

// EmergencyStore persists emergency requests
type EmergencyStore interface {
	Create(ctx context.Context, req *models.EmergencyRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EmergencyRequest, error)
	List(ctx context.Context, filter repository.EmergencyFilter) ([]models.EmergencyRequest, error)
	ActiveForAmbulance(ctx context.Context, ambulanceID uuid.UUID) (*models.EmergencyRequest, error)
	UpdateDetails(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	Claim(ctx context.Context, id, ambulanceID uuid.UUID, etaMinutes *int) error
	SetETA(ctx context.Context, id uuid.UUID, minutes int) error
	Transition(ctx context.Context, t repository.StatusTransition) error
	Complete(ctx context.Context, c repository.Completion) (*repository.CompletionResult, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// AmbulanceStore persists ambulances
type AmbulanceStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Ambulance, error)
	GetByOperator(ctx context.Context, operatorID uuid.UUID) (*models.Ambulance, error)
	UpdateLocation(ctx context.Context, id uuid.UUID, at models.Coordinates) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from []models.AmbulanceStatus, status models.AmbulanceStatus) error
	FindAvailableNearby(ctx context.Context, at models.Coordinates, radius float64, limit int) ([]models.Ambulance, error)
}

// HospitalStore persists hospitals
type HospitalStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Hospital, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Hospital, error)
	FindNearby(ctx context.Context, at models.Coordinates, radius float64, limit int) ([]models.Hospital, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.HospitalStatus) error
}

// BedStore persists bed slots
type BedStore interface {
	ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]models.BedStatusLog, error)
	SeedBeds(ctx context.Context, hospitalID uuid.UUID, bedType models.BedType, prefix string, count int) ([]models.BedStatusLog, models.BedCounts, error)
	Occupy(ctx context.Context, hospitalID uuid.UUID, bedType models.BedType, occupant string) (*models.BedStatusLog, models.BedCounts, error)
	Release(ctx context.Context, hospitalID uuid.UUID, bedNumber string) (models.BedCounts, error)
}

// MessageStore persists chat messages
type MessageStore interface {
	Create(ctx context.Context, msg *models.Communication) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.Communication, error)
	MarkRead(ctx context.Context, id, receiverID uuid.UUID) error
}

// UserStore reads user accounts
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuditStore records accepted transitions
type AuditStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
}
