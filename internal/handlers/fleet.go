package handlers

import (
	"context"

	"github.com/otcheredev/emergency-dispatch/internal/models"
)

// FleetAPI covers ambulance positions and hospital capacity
type FleetAPI interface {
	ReportLocation(ctx context.Context, actor models.Actor, at models.Coordinates) error
	SetAmbulanceStatus(ctx context.Context, actor models.Actor, status models.AmbulanceStatus) (*models.Ambulance, error)
	NearbyAmbulances(ctx context.Context, at models.Coordinates, radius float64, limit int) ([]models.Ambulance, error)
	NearbyHospitals(ctx context.Context, at models.Coordinates, radius float64, limit int) ([]models.Hospital, error)
	UpdateHospitalStatus(ctx context.Context, actor models.Actor, status models.HospitalStatus) (*models.Hospital, error)
	ListBeds(ctx context.Context, actor models.Actor) ([]models.BedStatusLog, error)
	SeedBeds(ctx context.Context, actor models.Actor, in models.SeedBedsRequest) ([]models.BedStatusLog, *models.Hospital, error)
	Admit(ctx context.Context, actor models.Actor, in models.AdmitRequest) (*models.BedStatusLog, *models.Hospital, error)
	ReleaseBed(ctx context.Context, actor models.Actor, bedNumber string) (*models.Hospital, error)
}

type statusBody[T ~string] struct {
	Status T `json:"status"`
}
