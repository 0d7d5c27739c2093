package handlers

import (
	"net/http"

	"github.com/otcheredev/emergency-dispatch/internal/models"
)

type AmbulanceHandler struct {
	fleet FleetAPI
}

func NewAmbulanceHandler(fleet FleetAPI) *AmbulanceHandler {
	return &AmbulanceHandler{fleet: fleet}
}

// ReportLocation is the HTTP fallback for the push channel's location_update
func (h *AmbulanceHandler) ReportLocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	var at models.Coordinates
	if !decode(w, r, &at) {
		return
	}

	if err := h.fleet.ReportLocation(r.Context(), actor, at); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AmbulanceHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	var body statusBody[models.AmbulanceStatus]
	if !decode(w, r, &body) {
		return
	}

	amb, err := h.fleet.SetAmbulanceStatus(r.Context(), actor, body.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amb)
}

// Nearby lists available ambulances around ?lat=&lng=&radius=
func (h *AmbulanceHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	at, radius, ok := searchArea(w, r)
	if !ok {
		return
	}

	list, err := h.fleet.NearbyAmbulances(r.Context(), at, radius, queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func searchArea(w http.ResponseWriter, r *http.Request) (models.Coordinates, float64, bool) {
	if r.URL.Query().Get("lat") == "" || r.URL.Query().Get("lng") == "" {
		writeMessage(w, http.StatusBadRequest, "lat and lng are required")
		return models.Coordinates{}, 0, false
	}
	lat, err := queryFloat(r, "lat", 0)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid lat")
		return models.Coordinates{}, 0, false
	}
	lng, err := queryFloat(r, "lng", 0)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid lng")
		return models.Coordinates{}, 0, false
	}
	radius, err := queryFloat(r, "radius", 0)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid radius")
		return models.Coordinates{}, 0, false
	}
	return models.Coordinates{Latitude: lat, Longitude: lng}, radius, true
}
