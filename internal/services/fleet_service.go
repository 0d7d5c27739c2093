package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/cache"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"github.com/otcheredev/emergency-dispatch/internal/repository"
	"github.com/otcheredev/emergency-dispatch/pkg/protocol"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultSearchRadius is in raw degrees, roughly 11km at the equator
	DefaultSearchRadius = 0.1
	MaxSearchRadius     = 2.0
	maxSeedBeds         = 500
)

// FleetService handles ambulance positions and status, hospital intake
// status and bed slots.
type FleetService struct {
	requests    EmergencyStore
	ambulances  AmbulanceStore
	hospitals   HospitalStore
	beds        BedStore
	locations   cache.Cache
	locationTTL time.Duration
	notify      Broadcaster
}

// NewFleetService creates a new fleet service
func NewFleetService(
	requests EmergencyStore,
	ambulances AmbulanceStore,
	hospitals HospitalStore,
	beds BedStore,
	locations cache.Cache,
	locationTTL time.Duration,
	notify Broadcaster,
) *FleetService {
	return &FleetService{
		requests:    requests,
		ambulances:  ambulances,
		hospitals:   hospitals,
		beds:        beds,
		locations:   locations,
		locationTTL: locationTTL,
		notify:      notify,
	}
}

// ReportLocation stores an ambulance position and forwards it to the patient
// and hospital of the request the ambulance is serving.
func (s *FleetService) ReportLocation(ctx context.Context, actor models.Actor, at models.Coordinates) error {
	if actor.Role != models.RoleAmbulance {
		return forbidden(RuleRoleNotPermitted, "only ambulances report locations")
	}
	if err := at.Validate(); err != nil {
		return invalid(RuleInvalidCoordinates, "%v", err)
	}
	amb, err := s.ambulanceFor(ctx, actor)
	if err != nil {
		return err
	}
	if err := s.ambulances.UpdateLocation(ctx, amb.ID, at); err != nil {
		return err
	}
	if s.locations != nil {
		if err := cache.SetLocation(ctx, s.locations, amb.ID, at, s.locationTTL); err != nil {
			log.Warn().Err(err).Str("ambulance_id", amb.ID.String()).Msg("Failed to cache ambulance location")
		}
	}

	req, err := s.requests.ActiveForAmbulance(ctx, amb.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	frame := protocol.MustNew(protocol.TypeAmbulanceLocationUpdate, LocationUpdate{
		AmbulanceID:        amb.ID,
		EmergencyRequestID: req.ID,
		Lat:                at.Latitude,
		Lng:                at.Longitude,
		At:                 time.Now().UTC(),
	})
	s.notify.SendToIdentity(models.RolePatient, req.PatientID, frame)
	if req.HospitalID != nil {
		h, err := s.hospitals.GetByID(ctx, *req.HospitalID)
		if err != nil {
			log.Warn().Err(err).Str("hospital_id", req.HospitalID.String()).Msg("Failed to load hospital for location update")
			return nil
		}
		s.notify.SendToIdentity(models.RoleHospital, h.OwnerID, frame)
	}
	return nil
}

// SetAmbulanceStatus lets an idle ambulance go on or off duty
func (s *FleetService) SetAmbulanceStatus(ctx context.Context, actor models.Actor, status models.AmbulanceStatus) (*models.Ambulance, error) {
	if actor.Role != models.RoleAmbulance {
		return nil, forbidden(RuleRoleNotPermitted, "only ambulances change their own status")
	}
	if status != models.AmbulanceAvailable && status != models.AmbulanceOffline {
		return nil, invalid(RuleInvalidAmbulanceState, "status must be available or offline")
	}
	amb, err := s.ambulanceFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if _, err := s.requests.ActiveForAmbulance(ctx, amb.ID); err == nil {
		return nil, conflict(RuleActiveRequest, "ambulance is serving a request")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	idle := []models.AmbulanceStatus{models.AmbulanceAvailable, models.AmbulanceOffline}
	if err := s.ambulances.UpdateStatus(ctx, amb.ID, idle, status); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, conflict(RuleActiveRequest, "ambulance is %s", amb.Status)
		}
		return nil, err
	}
	if status == models.AmbulanceOffline && s.locations != nil {
		if err := cache.DeleteLocation(ctx, s.locations, amb.ID); err != nil {
			log.Warn().Err(err).Str("ambulance_id", amb.ID.String()).Msg("Failed to drop cached location")
		}
	}
	return s.ambulances.GetByID(ctx, amb.ID)
}

// NearbyAmbulances lists available ambulances around a point
func (s *FleetService) NearbyAmbulances(ctx context.Context, at models.Coordinates, radius float64, limit int) ([]models.Ambulance, error) {
	radius, err := checkSearch(at, radius)
	if err != nil {
		return nil, err
	}
	return s.ambulances.FindAvailableNearby(ctx, at, radius, limit)
}

// NearbyHospitals lists hospitals around a point, nearest first
func (s *FleetService) NearbyHospitals(ctx context.Context, at models.Coordinates, radius float64, limit int) ([]models.Hospital, error) {
	radius, err := checkSearch(at, radius)
	if err != nil {
		return nil, err
	}
	return s.hospitals.FindNearby(ctx, at, radius, limit)
}

// UpdateHospitalStatus overrides the hospital's intake status until the next
// bed change recomputes it.
func (s *FleetService) UpdateHospitalStatus(ctx context.Context, actor models.Actor, status models.HospitalStatus) (*models.Hospital, error) {
	if !status.Valid() {
		return nil, invalid(RuleInvalidHospitalState, "unknown hospital status %q", status)
	}
	h, err := s.hospitalFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := s.hospitals.UpdateStatus(ctx, h.ID, status); err != nil {
		return nil, err
	}
	return s.announceHospital(ctx, h.ID)
}

// ListBeds returns every bed slot of the caller's hospital
func (s *FleetService) ListBeds(ctx context.Context, actor models.Actor) ([]models.BedStatusLog, error) {
	h, err := s.hospitalFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.beds.ListByHospital(ctx, h.ID)
}

// SeedBeds adds physical bed slots to the caller's hospital
func (s *FleetService) SeedBeds(ctx context.Context, actor models.Actor, in models.SeedBedsRequest) ([]models.BedStatusLog, *models.Hospital, error) {
	if in.BedType == "" {
		in.BedType = models.BedGeneral
	}
	if !in.BedType.Valid() {
		return nil, nil, invalid(RuleInvalidBedType, "unknown bed type %q", in.BedType)
	}
	if in.Count <= 0 || in.Count > maxSeedBeds {
		return nil, nil, invalid(RuleInvalidBedSeed, "count must be between 1 and %d", maxSeedBeds)
	}
	prefix := strings.TrimSpace(in.Prefix)
	if prefix == "" {
		prefix = strings.ToUpper(string(in.BedType))
	}
	h, err := s.hospitalFor(ctx, actor)
	if err != nil {
		return nil, nil, err
	}

	beds, _, err := s.beds.SeedBeds(ctx, h.ID, in.BedType, prefix, in.Count)
	if err != nil {
		return nil, nil, err
	}
	updated, err := s.announceHospital(ctx, h.ID)
	if err != nil {
		return nil, nil, err
	}
	return beds, updated, nil
}

// Admit occupies a free bed for a walk-in patient
func (s *FleetService) Admit(ctx context.Context, actor models.Actor, in models.AdmitRequest) (*models.BedStatusLog, *models.Hospital, error) {
	if in.BedType == "" {
		in.BedType = models.BedGeneral
	}
	if !in.BedType.Valid() {
		return nil, nil, invalid(RuleInvalidBedType, "unknown bed type %q", in.BedType)
	}
	h, err := s.hospitalFor(ctx, actor)
	if err != nil {
		return nil, nil, err
	}

	bed, _, err := s.beds.Occupy(ctx, h.ID, in.BedType, strings.TrimSpace(in.OccupantName))
	if err != nil {
		if errors.Is(err, repository.ErrNoBedAvailable) {
			return nil, nil, conflict(RuleNoBedAvailable, "no %s bed available", in.BedType)
		}
		return nil, nil, err
	}
	updated, err := s.announceHospital(ctx, h.ID)
	if err != nil {
		return nil, nil, err
	}
	return bed, updated, nil
}

// ReleaseBed frees an occupied bed slot
func (s *FleetService) ReleaseBed(ctx context.Context, actor models.Actor, bedNumber string) (*models.Hospital, error) {
	h, err := s.hospitalFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if _, err := s.beds.Release(ctx, h.ID, bedNumber); err != nil {
		if errors.Is(err, repository.ErrBedNotOccupied) {
			return nil, conflict(RuleBedNotOccupied, "bed %s is not occupied", bedNumber)
		}
		return nil, err
	}
	return s.announceHospital(ctx, h.ID)
}

func (s *FleetService) announceHospital(ctx context.Context, id uuid.UUID) (*models.Hospital, error) {
	h, err := s.hospitals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	broadcastHospital(s.notify, h)
	return h, nil
}

func (s *FleetService) ambulanceFor(ctx context.Context, actor models.Actor) (*models.Ambulance, error) {
	amb, err := s.ambulances.GetByOperator(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, forbidden(RuleNoAmbulance, "no ambulance registered to this operator")
		}
		return nil, err
	}
	return amb, nil
}

func (s *FleetService) hospitalFor(ctx context.Context, actor models.Actor) (*models.Hospital, error) {
	if actor.Role != models.RoleHospital {
		return nil, forbidden(RuleRoleNotPermitted, "only hospitals manage intake")
	}
	h, err := s.hospitals.GetByOwner(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, forbidden(RuleNoHospital, "no hospital registered to this account")
		}
		return nil, err
	}
	return h, nil
}

func checkSearch(at models.Coordinates, radius float64) (float64, error) {
	if err := at.Validate(); err != nil {
		return 0, invalid(RuleInvalidCoordinates, "%v", err)
	}
	if radius == 0 {
		radius = DefaultSearchRadius
	}
	if radius < 0 || radius > MaxSearchRadius {
		return 0, invalid(RuleInvalidRadius, "radius must be between 0 and %v degrees", MaxSearchRadius)
	}
	return radius, nil
}
