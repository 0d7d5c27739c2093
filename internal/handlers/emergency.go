package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/models"
)

// EmergencyAPI is the lifecycle surface exposed over HTTP
type EmergencyAPI interface {
	Create(ctx context.Context, actor models.Actor, in *models.CreateEmergencyRequest) (*models.EmergencyRequest, error)
	Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.EmergencyRequest, error)
	ListForActor(ctx context.Context, actor models.Actor, statuses []models.EmergencyStatus, limit int) ([]models.EmergencyRequest, error)
	Update(ctx context.Context, actor models.Actor, id uuid.UUID, in *models.UpdateEmergencyRequest) (*models.EmergencyRequest, error)
	Accept(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.EmergencyRequest, error)
	AssignETA(ctx context.Context, actor models.Actor, id uuid.UUID, minutes int) (*models.EmergencyRequest, error)
	ChangeStatus(ctx context.Context, actor models.Actor, id uuid.UUID, in models.StatusChangeRequest) (*models.EmergencyRequest, error)
	Delete(ctx context.Context, actor models.Actor, id uuid.UUID) error
}

type EmergencyHandler struct {
	emergencies EmergencyAPI
}

func NewEmergencyHandler(emergencies EmergencyAPI) *EmergencyHandler {
	return &EmergencyHandler{emergencies: emergencies}
}

// Create files a new emergency request for the calling patient
func (h *EmergencyHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	var req models.CreateEmergencyRequest
	if !decode(w, r, &req) {
		return
	}

	created, err := h.emergencies.Create(r.Context(), actor, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// List returns requests visible to the caller, optionally filtered by ?status=a,b
func (h *EmergencyHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}

	var statuses []models.EmergencyStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, models.EmergencyStatus(s))
			}
		}
	}

	list, err := h.emergencies.ListForActor(r.Context(), actor, statuses, queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *EmergencyHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	req, err := h.emergencies.Get(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *EmergencyHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in models.UpdateEmergencyRequest
	if !decode(w, r, &in) {
		return
	}

	updated, err := h.emergencies.Update(r.Context(), actor, id, &in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Accept claims a pending request for the calling ambulance
func (h *EmergencyHandler) Accept(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	req, err := h.emergencies.Accept(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *EmergencyHandler) AssignETA(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in models.ETARequest
	if !decode(w, r, &in) {
		return
	}

	req, err := h.emergencies.AssignETA(r.Context(), actor, id, in.Minutes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *EmergencyHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in models.StatusChangeRequest
	if !decode(w, r, &in) {
		return
	}

	req, err := h.emergencies.ChangeStatus(r.Context(), actor, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *EmergencyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.emergencies.Delete(r.Context(), actor, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
