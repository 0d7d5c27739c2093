package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/emergency-dispatch/internal/models"
)

type HospitalHandler struct {
	fleet FleetAPI
}

func NewHospitalHandler(fleet FleetAPI) *HospitalHandler {
	return &HospitalHandler{fleet: fleet}
}

func (h *HospitalHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	at, radius, ok := searchArea(w, r)
	if !ok {
		return
	}

	list, err := h.fleet.NearbyHospitals(r.Context(), at, radius, queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *HospitalHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	var body statusBody[models.HospitalStatus]
	if !decode(w, r, &body) {
		return
	}

	hosp, err := h.fleet.UpdateHospitalStatus(r.Context(), actor, body.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hosp)
}

func (h *HospitalHandler) ListBeds(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}

	beds, err := h.fleet.ListBeds(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, beds)
}

type seedResponse struct {
	Beds     []models.BedStatusLog `json:"beds"`
	Hospital *models.Hospital      `json:"hospital"`
}

// SeedBeds adds empty bed slots to the caller's hospital
func (h *HospitalHandler) SeedBeds(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	var in models.SeedBedsRequest
	if !decode(w, r, &in) {
		return
	}

	beds, hosp, err := h.fleet.SeedBeds(r.Context(), actor, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, seedResponse{Beds: beds, Hospital: hosp})
}

type admitResponse struct {
	Bed      *models.BedStatusLog `json:"bed"`
	Hospital *models.Hospital     `json:"hospital"`
}

// Admit occupies a free slot for a walk-in patient
func (h *HospitalHandler) Admit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	var in models.AdmitRequest
	if !decode(w, r, &in) {
		return
	}

	bed, hosp, err := h.fleet.Admit(r.Context(), actor, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, admitResponse{Bed: bed, Hospital: hosp})
}

func (h *HospitalHandler) ReleaseBed(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}

	hosp, err := h.fleet.ReleaseBed(r.Context(), actor, chi.URLParam(r, "bedNumber"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hosp)
}
