package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"github.com/otcheredev/emergency-dispatch/internal/repository"
	"github.com/otcheredev/emergency-dispatch/pkg/protocol"
	"github.com/rs/zerolog/log"
)

const maxMessageLength = 2000

// ChatService relays messages between the parties of a request. A message
// is always persisted before any delivery is attempted; delivery to an
// offline receiver is dropped and the stored copy is the only record.
type ChatService struct {
	requests EmergencyStore
	messages MessageStore
	notify   Broadcaster
	parties  partyResolver
}

// NewChatService creates a new chat service
func NewChatService(
	requests EmergencyStore,
	ambulances AmbulanceStore,
	hospitals HospitalStore,
	messages MessageStore,
	notify Broadcaster,
) *ChatService {
	return &ChatService{
		requests: requests,
		messages: messages,
		notify:   notify,
		parties:  partyResolver{ambulances: ambulances, hospitals: hospitals},
	}
}

// Send validates, persists and delivers a chat message, then acknowledges
// the sender.
func (s *ChatService) Send(ctx context.Context, actor models.Actor, in models.SendMessageRequest) (*models.Communication, error) {
	text := strings.TrimSpace(in.Message)
	if text == "" {
		return nil, invalid(RuleEmptyMessage, "message is empty")
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, invalid(RuleMessageTooLong, "message exceeds %d characters", maxMessageLength)
	}
	if !in.ReceiverRole.Valid() || in.ReceiverID == uuid.Nil {
		return nil, invalid(RuleInvalidReceiver, "receiver is required")
	}
	receiver := models.Actor{UserID: in.ReceiverID, Role: in.ReceiverRole}
	if receiver == actor {
		return nil, invalid(RuleInvalidReceiver, "cannot message yourself")
	}

	p, err := s.partiesOf(ctx, in.EmergencyRequestID)
	if err != nil {
		return nil, err
	}
	if !p.includes(actor) && actor.Role != models.RoleAdmin {
		return nil, forbidden(RuleNotAParty, "sender is not a party to this request")
	}
	if !p.includes(receiver) {
		return nil, invalid(RuleInvalidReceiver, "receiver is not a party to this request")
	}

	msg := &models.Communication{
		EmergencyRequestID: in.EmergencyRequestID,
		SenderID:           actor.UserID,
		SenderRole:         actor.Role,
		ReceiverID:         receiver.UserID,
		ReceiverRole:       receiver.Role,
		Message:            text,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	delivered := s.notify.SendToIdentity(receiver.Role, receiver.UserID, protocol.MustNew(protocol.TypeNewMessage, msg))
	s.notify.SendToIdentity(actor.Role, actor.UserID, protocol.MustNew(protocol.TypeMessageSent, MessageAck{
		MessageID:          msg.ID,
		EmergencyRequestID: msg.EmergencyRequestID,
		CreatedAt:          msg.CreatedAt,
	}))

	log.Debug().
		Str("message_id", msg.ID.String()).
		Str("request_id", msg.EmergencyRequestID.String()).
		Bool("delivered", delivered).
		Msg("Chat message relayed")
	return msg, nil
}

// List returns the conversation on a request, oldest first
func (s *ChatService) List(ctx context.Context, actor models.Actor, requestID uuid.UUID) ([]models.Communication, error) {
	p, err := s.partiesOf(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !p.includes(actor) && actor.Role != models.RoleAdmin {
		return nil, forbidden(RuleNotAParty, "not a party to this request")
	}
	return s.messages.ListByRequest(ctx, requestID)
}

// MarkRead flags a message as read by its receiver
func (s *ChatService) MarkRead(ctx context.Context, actor models.Actor, messageID uuid.UUID) error {
	if err := s.messages.MarkRead(ctx, messageID, actor.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("message %s not found", messageID)
		}
		return err
	}
	return nil
}

func (s *ChatService) partiesOf(ctx context.Context, requestID uuid.UUID) (parties, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return parties{}, notFound("emergency request %s not found", requestID)
		}
		return parties{}, err
	}
	return s.parties.resolve(ctx, req)
}
