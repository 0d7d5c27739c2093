package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/cache"
	"github.com/otcheredev/emergency-dispatch/internal/metrics"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"github.com/otcheredev/emergency-dispatch/internal/repository"
	"github.com/otcheredev/emergency-dispatch/pkg/protocol"
	"github.com/rs/zerolog/log"
)

const maxETAMinutes = 24 * 60

// EmergencyService owns the lifecycle of emergency requests. Every accepted
// operation persists first and then notifies the audience fixed for it.
type EmergencyService struct {
	requests  EmergencyStore
	users     UserStore
	audit     AuditStore
	locations cache.Cache
	notify    Broadcaster
	parties   partyResolver
}

// NewEmergencyService creates a new emergency service
func NewEmergencyService(
	requests EmergencyStore,
	ambulances AmbulanceStore,
	hospitals HospitalStore,
	users UserStore,
	audit AuditStore,
	locations cache.Cache,
	notify Broadcaster,
) *EmergencyService {
	return &EmergencyService{
		requests:  requests,
		users:     users,
		audit:     audit,
		locations: locations,
		notify:    notify,
		parties:   partyResolver{ambulances: ambulances, hospitals: hospitals},
	}
}

// Create files a new pending request and announces it to every ambulance
func (s *EmergencyService) Create(ctx context.Context, actor models.Actor, in *models.CreateEmergencyRequest) (*models.EmergencyRequest, error) {
	if actor.Role != models.RolePatient {
		return nil, forbidden(RuleRoleNotPermitted, "only patients can raise emergencies")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, invalid(RuleInvalidPriority, "unknown priority %q", in.Priority)
	}
	at := models.Coordinates{Latitude: in.Latitude, Longitude: in.Longitude}
	if err := at.Validate(); err != nil {
		return nil, invalid(RuleInvalidCoordinates, "%v", err)
	}
	if strings.TrimSpace(in.Condition) == "" {
		return nil, invalid(RuleConditionRequired, "condition is required")
	}
	if in.HospitalID != nil {
		if _, err := s.parties.hospitals.GetByID(ctx, *in.HospitalID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, invalid(RuleUnknownHospital, "hospital %s does not exist", in.HospitalID)
			}
			return nil, err
		}
	}

	req := &models.EmergencyRequest{
		PatientID:  actor.UserID,
		HospitalID: in.HospitalID,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		Address:    strings.TrimSpace(in.Address),
		Condition:  strings.TrimSpace(in.Condition),
		Notes:      in.Notes,
		Priority:   in.Priority,
		Status:     models.StatusPending,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	s.record(ctx, actor, req, "created", "", models.StatusPending, string(req.Priority))
	metrics.Transition(string(models.StatusPending))

	n := s.notify.BroadcastToRole(models.RoleAmbulance, protocol.MustNew(protocol.TypeNewEmergencyRequest, req))
	log.Info().
		Str("request_id", req.ID.String()).
		Str("priority", string(req.Priority)).
		Int("ambulances_notified", n).
		Msg("Emergency request created")

	return req, nil
}

// Accept claims a pending request for the caller's ambulance. Of two
// concurrent accepts exactly one succeeds; the other gets a conflict.
func (s *EmergencyService) Accept(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.EmergencyRequest, error) {
	if actor.Role != models.RoleAmbulance {
		return nil, forbidden(RuleRoleNotPermitted, "only ambulances can accept emergencies")
	}
	amb, err := s.parties.ambulances.GetByOperator(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, forbidden(RuleNoAmbulance, "no ambulance registered to this operator")
		}
		return nil, err
	}
	if !amb.IsActive {
		return nil, conflict(RuleAmbulanceInactive, "ambulance %s is not active", amb.VehicleNumber)
	}
	if amb.Status != models.AmbulanceAvailable {
		return nil, conflict(RuleAmbulanceUnavailable, "ambulance is %s", amb.Status)
	}

	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusPending || req.AmbulanceID != nil {
		return nil, conflict(RuleAlreadyClaimed, "request is %s", req.Status)
	}

	eta := s.estimateETA(ctx, amb, req)
	if err := s.requests.Claim(ctx, id, amb.ID, eta); err != nil {
		switch {
		case errors.Is(err, repository.ErrAmbulanceUnavailable):
			return nil, conflict(RuleAmbulanceUnavailable, "ambulance was reserved by another request")
		case errors.Is(err, repository.ErrAlreadyClaimed):
			return nil, conflict(RuleAlreadyClaimed, "request was accepted by another ambulance")
		}
		return nil, err
	}

	return s.afterTransition(ctx, actor, id, "accepted", models.StatusPending, "")
}

// AssignETA records the owning ambulance's estimated arrival in minutes
func (s *EmergencyService) AssignETA(ctx context.Context, actor models.Actor, id uuid.UUID, minutes int) (*models.EmergencyRequest, error) {
	if minutes <= 0 || minutes > maxETAMinutes {
		return nil, invalid(RuleInvalidETA, "eta must be between 1 and %d minutes", maxETAMinutes)
	}
	req, p, err := s.loadWithParties(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && !(actor.Role == models.RoleAmbulance && p.privileged(actor)) {
		return nil, forbidden(RuleNotRequestOwner, "only the assigned ambulance can set the eta")
	}
	if req.Status == models.StatusPending || req.Status.Terminal() {
		return nil, conflict(RuleETANotApplicable, "cannot set eta on a %s request", req.Status)
	}

	if err := s.requests.SetETA(ctx, id, minutes); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, conflict(RuleStaleStatus, "request changed while setting eta")
		}
		return nil, err
	}

	return s.afterTransition(ctx, actor, id, "eta_assigned", req.Status, fmt.Sprintf("%d minutes", minutes))
}

// Advance moves an accepted request one step along the dispatch path
func (s *EmergencyService) Advance(ctx context.Context, actor models.Actor, id uuid.UUID, to models.EmergencyStatus) (*models.EmergencyRequest, error) {
	switch to {
	case models.StatusDispatched, models.StatusEnRoute, models.StatusAtScene, models.StatusTransporting:
	default:
		return nil, invalid(RuleInvalidTarget, "cannot advance to %q", to)
	}

	req, p, err := s.loadWithParties(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.privileged(actor) {
		return nil, forbidden(RuleRoleNotPermitted, "%s cannot change this request", actor.Role)
	}
	if !CanTransition(req.Status, to) {
		return nil, conflict(RuleInvalidTransition, "cannot move from %s to %s", req.Status, to)
	}
	if to == models.StatusDispatched && req.EstimatedArrivalMinutes == nil {
		return nil, conflict(RuleETARequired, "an eta must be recorded before dispatch")
	}

	err = s.requests.Transition(ctx, repository.StatusTransition{
		ID:         id,
		From:       req.Status,
		To:         to,
		RequireETA: to == models.StatusDispatched,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, conflict(RuleStaleStatus, "request changed from %s", req.Status)
		}
		return nil, err
	}

	return s.afterTransition(ctx, actor, id, "status_changed", req.Status, "")
}

// Complete closes a transporting request, optionally admitting the patient
// to a bed in the same transaction, and frees the ambulance.
func (s *EmergencyService) Complete(ctx context.Context, actor models.Actor, id uuid.UUID, in models.StatusChangeRequest) (*models.EmergencyRequest, error) {
	req, p, err := s.loadWithParties(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.privileged(actor) {
		return nil, forbidden(RuleRoleNotPermitted, "%s cannot complete this request", actor.Role)
	}
	if !CanTransition(req.Status, models.StatusCompleted) {
		return nil, conflict(RuleInvalidTransition, "cannot move from %s to %s", req.Status, models.StatusCompleted)
	}

	hospitalID := req.HospitalID
	if in.HospitalID != nil {
		if actor.Role == models.RoleHospital && p.HospitalID != nil && *in.HospitalID != *p.HospitalID {
			return nil, forbidden(RuleNotRequestOwner, "hospital can only admit to itself")
		}
		if _, err := s.parties.hospitals.GetByID(ctx, *in.HospitalID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, invalid(RuleUnknownHospital, "hospital %s does not exist", in.HospitalID)
			}
			return nil, err
		}
		hospitalID = in.HospitalID
	}

	bedType := in.BedType
	if in.AssignBed {
		if hospitalID == nil {
			return nil, invalid(RuleHospitalRequired, "a hospital is required to assign a bed")
		}
		if bedType == "" {
			bedType = models.BedGeneral
		}
		if !bedType.Valid() {
			return nil, invalid(RuleInvalidBedType, "unknown bed type %q", bedType)
		}
	}

	result, err := s.requests.Complete(ctx, repository.Completion{
		ID:           id,
		From:         req.Status,
		AmbulanceID:  req.AmbulanceID,
		HospitalID:   hospitalID,
		AssignBed:    in.AssignBed,
		BedType:      bedType,
		OccupantName: s.occupantName(ctx, req.PatientID),
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNoBedAvailable):
			return nil, conflict(RuleNoBedAvailable, "no %s bed available", bedType)
		case errors.Is(err, repository.ErrStaleStatus):
			return nil, conflict(RuleStaleStatus, "request changed from %s", req.Status)
		}
		return nil, err
	}

	detail := ""
	if result.Bed != nil {
		detail = "bed " + result.Bed.BedNumber
	}
	done, err := s.afterTransition(ctx, actor, id, "completed", req.Status, detail)
	if err != nil {
		return nil, err
	}

	if result.Counts != nil && hospitalID != nil {
		if h, err := s.parties.hospitals.GetByID(ctx, *hospitalID); err == nil {
			broadcastHospital(s.notify, h)
		} else {
			log.Warn().Err(err).Str("hospital_id", hospitalID.String()).Msg("Failed to load hospital for status broadcast")
		}
	}
	return done, nil
}

// Cancel abandons a non-terminal request and frees its ambulance
func (s *EmergencyService) Cancel(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.EmergencyRequest, error) {
	req, p, err := s.loadWithParties(ctx, id)
	if err != nil {
		return nil, err
	}
	ownPatient := actor.Role == models.RolePatient && actor.UserID == req.PatientID
	if !ownPatient && !p.privileged(actor) {
		return nil, forbidden(RuleNotRequestOwner, "%s cannot cancel this request", actor.Role)
	}
	if req.Status.Terminal() {
		return nil, conflict(RuleTerminalState, "request is already %s", req.Status)
	}

	err = s.requests.Transition(ctx, repository.StatusTransition{
		ID:           id,
		From:         req.Status,
		To:           models.StatusCancelled,
		AmbulanceID:  req.AmbulanceID,
		CancelReason: strings.TrimSpace(reason),
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, conflict(RuleStaleStatus, "request changed from %s", req.Status)
		}
		return nil, err
	}

	// The cancelled row no longer names its ambulance, so the audience is the
	// one resolved before the transition.
	return s.announceTransition(ctx, actor, id, "cancelled", req.Status, reason, &p)
}

// ChangeStatus routes a generic status change to the matching operation
func (s *EmergencyService) ChangeStatus(ctx context.Context, actor models.Actor, id uuid.UUID, in models.StatusChangeRequest) (*models.EmergencyRequest, error) {
	if in.AssignBed && in.Status != models.StatusCompleted {
		return nil, invalid(RuleBedOnlyOnCompletion, "a bed can only be assigned on completion")
	}
	switch in.Status {
	case models.StatusAccepted:
		return s.Accept(ctx, actor, id)
	case models.StatusCompleted:
		return s.Complete(ctx, actor, id, in)
	case models.StatusCancelled:
		return s.Cancel(ctx, actor, id, in.Reason)
	default:
		return s.Advance(ctx, actor, id, in.Status)
	}
}

// Update edits the descriptive fields of a request still in progress
func (s *EmergencyService) Update(ctx context.Context, actor models.Actor, id uuid.UUID, in *models.UpdateEmergencyRequest) (*models.EmergencyRequest, error) {
	req, p, err := s.loadWithParties(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && !(actor.Role == models.RolePatient && actor.UserID == req.PatientID) {
		return nil, forbidden(RuleNotRequestOwner, "only the patient can edit this request")
	}
	if req.Status.Terminal() {
		return nil, conflict(RuleTerminalState, "request is already %s", req.Status)
	}

	updates := map[string]interface{}{}
	if in.Address != nil {
		updates["address"] = strings.TrimSpace(*in.Address)
	}
	if in.Condition != nil {
		if strings.TrimSpace(*in.Condition) == "" {
			return nil, invalid(RuleConditionRequired, "condition cannot be empty")
		}
		updates["condition"] = strings.TrimSpace(*in.Condition)
	}
	if in.Notes != nil {
		updates["notes"] = *in.Notes
	}
	if in.Priority != nil {
		if !in.Priority.Valid() {
			return nil, invalid(RuleInvalidPriority, "unknown priority %q", *in.Priority)
		}
		updates["priority"] = *in.Priority
	}
	if len(updates) == 0 {
		return req, nil
	}

	if err := s.requests.UpdateDetails(ctx, id, updates); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, conflict(RuleTerminalState, "request finished before the edit")
		}
		return nil, err
	}

	updated, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, updated, "updated", updated.Status, updated.Status, "")
	fanOut(s.notify, p, statusFrame(updated, updated.Status, "updated"))
	return updated, nil
}

// Get returns a request the actor is allowed to see
func (s *EmergencyService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.EmergencyRequest, error) {
	req, p, err := s.loadWithParties(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleAdmin || p.includes(actor) {
		return req, nil
	}
	if actor.Role == models.RoleAmbulance && req.Status == models.StatusPending && req.AmbulanceID == nil {
		return req, nil
	}
	return nil, forbidden(RuleNotAParty, "not a party to this request")
}

// ListForActor returns the requests visible to the actor's role
func (s *EmergencyService) ListForActor(ctx context.Context, actor models.Actor, statuses []models.EmergencyStatus, limit int) ([]models.EmergencyRequest, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, invalid(RuleInvalidTarget, "unknown status %q", st)
		}
	}
	filter := repository.EmergencyFilter{Statuses: statuses, Limit: limit}

	switch actor.Role {
	case models.RolePatient:
		filter.PatientID = &actor.UserID
	case models.RoleAmbulance:
		filter.IncludePending = true
		amb, err := s.parties.ambulances.GetByOperator(ctx, actor.UserID)
		switch {
		case err == nil:
			filter.AmbulanceID = &amb.ID
		case !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
	case models.RoleHospital:
		h, err := s.parties.hospitals.GetByOwner(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return []models.EmergencyRequest{}, nil
			}
			return nil, err
		}
		filter.HospitalID = &h.ID
	case models.RoleAdmin:
	default:
		return nil, forbidden(RuleRoleNotPermitted, "unknown role %q", actor.Role)
	}

	return s.requests.List(ctx, filter)
}

// Delete soft deletes a finished request
func (s *EmergencyService) Delete(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	req, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleAdmin && !(actor.Role == models.RolePatient && actor.UserID == req.PatientID) {
		return forbidden(RuleNotRequestOwner, "only the patient can delete this request")
	}
	if !req.Status.Terminal() {
		return conflict(RuleNotTerminal, "request is still %s", req.Status)
	}
	if err := s.requests.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return conflict(RuleNotTerminal, "request is not finished")
		}
		return err
	}
	s.record(ctx, actor, req, "deleted", req.Status, req.Status, "")
	return nil
}

func (s *EmergencyService) load(ctx context.Context, id uuid.UUID) (*models.EmergencyRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("emergency request %s not found", id)
		}
		return nil, err
	}
	return req, nil
}

func (s *EmergencyService) loadWithParties(ctx context.Context, id uuid.UUID) (*models.EmergencyRequest, parties, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, parties{}, err
	}
	p, err := s.parties.resolve(ctx, req)
	if err != nil {
		return nil, parties{}, err
	}
	return req, p, nil
}

// afterTransition reloads the committed request, audits it and tells every
// party about it.
func (s *EmergencyService) afterTransition(ctx context.Context, actor models.Actor, id uuid.UUID, action string, from models.EmergencyStatus, detail string) (*models.EmergencyRequest, error) {
	return s.announceTransition(ctx, actor, id, action, from, detail, nil)
}

// announceTransition is afterTransition with an optional audience fixed by
// the caller. A nil audience is resolved from the reloaded request.
func (s *EmergencyService) announceTransition(ctx context.Context, actor models.Actor, id uuid.UUID, action string, from models.EmergencyStatus, detail string, audience *parties) (*models.EmergencyRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != from {
		metrics.Transition(string(req.Status))
	}
	s.record(ctx, actor, req, action, from, req.Status, detail)

	var p parties
	if audience != nil {
		p = *audience
	} else if p, err = s.parties.resolve(ctx, req); err != nil {
		log.Warn().Err(err).Str("request_id", id.String()).Msg("Failed to resolve parties, notifying patient only")
		p = parties{Patient: req.PatientID}
	}
	fanOut(s.notify, p, statusFrame(req, from, action))

	log.Info().
		Str("request_id", id.String()).
		Str("actor_role", string(actor.Role)).
		Str("from", string(from)).
		Str("to", string(req.Status)).
		Msg("Emergency request " + action)
	return req, nil
}

func (s *EmergencyService) record(ctx context.Context, actor models.Actor, req *models.EmergencyRequest, action string, from, to models.EmergencyStatus, detail string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		EmergencyRequestID: req.ID,
		ActorID:            actor.UserID,
		ActorRole:          actor.Role,
		Action:             action,
		FromStatus:         from,
		ToStatus:           to,
		Detail:             detail,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		log.Warn().Err(err).Str("request_id", req.ID.String()).Str("action", action).Msg("Failed to write audit log")
	}
}

// estimateETA uses the freshest known ambulance position, preferring the
// cache over the stored row.
func (s *EmergencyService) estimateETA(ctx context.Context, amb *models.Ambulance, req *models.EmergencyRequest) *int {
	var from models.Coordinates
	found := false
	if s.locations != nil {
		if at, err := cache.GetLocation(ctx, s.locations, amb.ID); err == nil {
			from, found = at, true
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			log.Debug().Err(err).Str("ambulance_id", amb.ID.String()).Msg("Location cache lookup failed")
		}
	}
	if !found {
		from, found = amb.Position()
	}
	if !found {
		return nil
	}
	eta := EstimateETAMinutes(from, req.Location())
	return &eta
}

func (s *EmergencyService) occupantName(ctx context.Context, patientID uuid.UUID) string {
	if s.users == nil {
		return "Patient"
	}
	u, err := s.users.GetByID(ctx, patientID)
	if err != nil || u.Name == "" {
		return "Patient"
	}
	return u.Name
}

func statusFrame(req *models.EmergencyRequest, from models.EmergencyStatus, action string) protocol.Frame {
	return protocol.MustNew(protocol.TypeEmergencyStatusUpdate, StatusUpdate{
		EmergencyRequestID:      req.ID,
		Status:                  req.Status,
		PreviousStatus:          from,
		Action:                  action,
		EstimatedArrivalMinutes: req.EstimatedArrivalMinutes,
		AssignedBedNumber:       req.AssignedBedNumber,
		Request:                 req,
	})
}

func broadcastHospital(notify Broadcaster, h *models.Hospital) {
	frame := protocol.MustNew(protocol.TypeHospitalStatusUpdate, hospitalUpdate(h))
	n := notify.BroadcastToRole(models.RoleAmbulance, frame)
	owner := notify.SendToIdentity(models.RoleHospital, h.OwnerID, frame)
	log.Debug().
		Str("hospital_id", h.ID.String()).
		Str("status", string(h.EmergencyStatus)).
		Int("ambulances", n).
		Bool("owner", owner).
		Msg("Hospital status broadcast")
}
