package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/auth"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"github.com/otcheredev/emergency-dispatch/internal/repository"
	"github.com/otcheredev/emergency-dispatch/internal/services"
	"github.com/rs/zerolog/log"
)

type errorResponse struct {
	Error string `json:"error"`
	Rule  string `json:"rule,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeError maps service errors onto HTTP status codes
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if re, ok := services.AsRuleError(err); ok {
		writeJSON(w, statusForKind(re.Kind), errorResponse{Error: re.Message, Rule: re.Rule})
		return
	}
	if errors.Is(err, repository.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}

	log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
	writeMessage(w, http.StatusInternalServerError, "internal server error")
}

func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func actorOf(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "not authenticated")
	}
	return actor, ok
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func queryInt(r *http.Request, key string, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && n > 0 {
		return n
	}
	return def
}
