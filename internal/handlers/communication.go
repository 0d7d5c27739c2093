package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/models"
)

// ChatAPI covers messaging between the parties of a request
type ChatAPI interface {
	Send(ctx context.Context, actor models.Actor, in models.SendMessageRequest) (*models.Communication, error)
	List(ctx context.Context, actor models.Actor, requestID uuid.UUID) ([]models.Communication, error)
	MarkRead(ctx context.Context, actor models.Actor, messageID uuid.UUID) error
}

type CommunicationHandler struct {
	chat ChatAPI
}

func NewCommunicationHandler(chat ChatAPI) *CommunicationHandler {
	return &CommunicationHandler{chat: chat}
}

func (h *CommunicationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	msgs, err := h.chat.List(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// Send posts a message on the request named in the path; the path wins over
// any request id in the body
func (h *CommunicationHandler) Send(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in models.SendMessageRequest
	if !decode(w, r, &in) {
		return
	}
	in.EmergencyRequestID = id

	msg, err := h.chat.Send(r.Context(), actor, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *CommunicationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.chat.MarkRead(r.Context(), actor, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
