package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"github.com/otcheredev/emergency-dispatch/internal/repository"
	"github.com/otcheredev/emergency-dispatch/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// parties are the identities attached to one request
type parties struct {
	Patient           uuid.UUID
	AmbulanceID       *uuid.UUID
	AmbulanceOperator *uuid.UUID
	HospitalID        *uuid.UUID
	HospitalOwner     *uuid.UUID
}

func (p parties) actors() []models.Actor {
	out := []models.Actor{{UserID: p.Patient, Role: models.RolePatient}}
	if p.AmbulanceOperator != nil {
		out = append(out, models.Actor{UserID: *p.AmbulanceOperator, Role: models.RoleAmbulance})
	}
	if p.HospitalOwner != nil {
		out = append(out, models.Actor{UserID: *p.HospitalOwner, Role: models.RoleHospital})
	}
	return out
}

func (p parties) includes(a models.Actor) bool {
	for _, party := range p.actors() {
		if party == a {
			return true
		}
	}
	return false
}

// privileged reports whether a may drive the lifecycle of the request
func (p parties) privileged(a models.Actor) bool {
	switch a.Role {
	case models.RoleAdmin:
		return true
	case models.RoleAmbulance:
		return p.AmbulanceOperator != nil && *p.AmbulanceOperator == a.UserID
	case models.RoleHospital:
		return p.HospitalOwner != nil && *p.HospitalOwner == a.UserID
	}
	return false
}

type partyResolver struct {
	ambulances AmbulanceStore
	hospitals  HospitalStore
}

func (r partyResolver) resolve(ctx context.Context, req *models.EmergencyRequest) (parties, error) {
	p := parties{Patient: req.PatientID, AmbulanceID: req.AmbulanceID, HospitalID: req.HospitalID}

	if req.AmbulanceID != nil {
		amb, err := r.ambulances.GetByID(ctx, *req.AmbulanceID)
		switch {
		case err == nil:
			p.AmbulanceOperator = &amb.OperatorID
		case !errors.Is(err, repository.ErrNotFound):
			return p, err
		}
	}
	if req.HospitalID != nil {
		h, err := r.hospitals.GetByID(ctx, *req.HospitalID)
		switch {
		case err == nil:
			p.HospitalOwner = &h.OwnerID
		case !errors.Is(err, repository.ErrNotFound):
			return p, err
		}
	}
	return p, nil
}

// fanOut sends frame to every party of the request that is connected
func fanOut(notify Broadcaster, p parties, frame protocol.Frame) {
	delivered := 0
	for _, a := range p.actors() {
		if notify.SendToIdentity(a.Role, a.UserID, frame) {
			delivered++
		}
	}
	log.Debug().
		Str("type", frame.Type).
		Int("delivered", delivered).
		Msg("Fanned out to request parties")
}
