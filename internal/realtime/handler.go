package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/otcheredev/emergency-dispatch/internal/metrics"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"github.com/otcheredev/emergency-dispatch/internal/services"
	"github.com/otcheredev/emergency-dispatch/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// Verifier turns a connection credential into an actor
type Verifier interface {
	Verify(token string) (models.Actor, error)
}

// LocationReporter accepts ambulance position pings
type LocationReporter interface {
	ReportLocation(ctx context.Context, actor models.Actor, at models.Coordinates) error
}

// ChatSender relays chat messages
type ChatSender interface {
	Send(ctx context.Context, actor models.Actor, in models.SendMessageRequest) (*models.Communication, error)
}

// HandlerConfig tunes the push endpoint
type HandlerConfig struct {
	SendBuffer     int
	WriteWait      time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

func (c HandlerConfig) withDefaults() HandlerConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 * 1024
	}
	return c
}

// Handler upgrades GET /ws?token=... to a push connection. The credential is
// checked once at the handshake; every frame on the connection is handled in
// order by a single read loop.
type Handler struct {
	registry *Registry
	verifier Verifier
	location LocationReporter
	chat     ChatSender
	cfg      HandlerConfig
	upgrader websocket.Upgrader
}

// NewHandler creates the push endpoint
func NewHandler(registry *Registry, verifier Verifier, location LocationReporter, chat ChatSender, cfg HandlerConfig) *Handler {
	cfg = cfg.withDefaults()
	h := &Handler{
		registry: registry,
		verifier: verifier,
		location: location,
		chat:     chat,
		cfg:      cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, authErr := h.verifier.Verify(r.URL.Query().Get("token"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Websocket upgrade failed")
		return
	}

	if authErr != nil {
		metrics.HandshakeRejected()
		log.Info().Err(authErr).Str("remote", r.RemoteAddr).Msg("Push connection refused")
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(protocol.CloseUnauthorized, "unauthorized"),
			time.Now().Add(h.cfg.WriteWait),
		)
		conn.Close()
		return
	}

	c := newClient(actor, conn, h.cfg.SendBuffer, h.cfg.WriteWait)
	h.registry.Register(actor.Role, actor.UserID, c)
	metrics.ConnectionOpened(string(actor.Role))
	log.Info().
		Str("user_id", actor.UserID.String()).
		Str("role", string(actor.Role)).
		Msg("Push client connected")

	go c.writePump()
	go h.readPump(c)
}

func (h *Handler) readPump(c *client) {
	defer func() {
		h.registry.UnregisterChannel(c.actor.Role, c.actor.UserID, c)
		c.Close()
		metrics.ConnectionClosed(string(c.actor.Role))
		log.Info().
			Str("user_id", c.actor.UserID.String()).
			Str("role", string(c.actor.Role)).
			Msg("Push client disconnected")
	}()

	c.conn.SetReadLimit(h.cfg.MaxMessageSize)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Str("user_id", c.actor.UserID.String()).Msg("Push read failed")
			}
			return
		}
		h.handleFrame(c, protocol.Decode(msg))
	}
}

// handleFrame processes one inbound frame. A panic is contained to the frame.
func (h *Handler) handleFrame(c *client, frame protocol.Frame) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Str("type", frame.Type).
				Str("user_id", c.actor.UserID.String()).
				Msg("Panic while handling push frame")
			h.reply(c, protocol.TypeError, protocol.ErrorPayload{Code: "internal", Message: "internal error", InReply: frame.Type})
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch frame.Type {
	case protocol.TypePing:
		h.reply(c, protocol.TypePong, nil)

	case protocol.TypePong:

	case protocol.TypeLocationUpdate:
		var in protocol.LocationUpdate
		if err := frame.Bind(&in); err != nil {
			h.replyBadRequest(c, frame.Type, err)
			return
		}
		at := models.Coordinates{Latitude: in.Lat, Longitude: in.Lng}
		if err := h.location.ReportLocation(ctx, c.actor, at); err != nil {
			h.replyError(c, frame.Type, err)
		}

	case protocol.TypeChatMessage:
		var in protocol.ChatMessage
		if err := frame.Bind(&in); err != nil {
			h.replyBadRequest(c, frame.Type, err)
			return
		}
		req, err := chatRequest(in)
		if err != nil {
			h.replyBadRequest(c, frame.Type, err)
			return
		}
		if _, err := h.chat.Send(ctx, c.actor, req); err != nil {
			h.replyError(c, frame.Type, err)
		}

	case protocol.TypeUnparseable:
		h.reply(c, protocol.TypeError, protocol.ErrorPayload{Code: "unparseable", Message: "frame is not a valid {type,data} object"})

	default:
		h.reply(c, protocol.TypeError, protocol.ErrorPayload{
			Code:    "unknown_type",
			Message: fmt.Sprintf("unsupported frame type %q", frame.Type),
			InReply: frame.Type,
		})
	}
}

func chatRequest(in protocol.ChatMessage) (models.SendMessageRequest, error) {
	requestID, err := uuid.Parse(in.EmergencyRequestID)
	if err != nil {
		return models.SendMessageRequest{}, fmt.Errorf("invalid emergencyRequestId: %w", err)
	}
	receiverID, err := uuid.Parse(in.ReceiverID)
	if err != nil {
		return models.SendMessageRequest{}, fmt.Errorf("invalid receiverId: %w", err)
	}
	return models.SendMessageRequest{
		EmergencyRequestID: requestID,
		ReceiverID:         receiverID,
		ReceiverRole:       models.Role(in.ReceiverRole),
		Message:            in.Message,
	}, nil
}

func (h *Handler) replyBadRequest(c *client, inReply string, err error) {
	h.reply(c, protocol.TypeError, protocol.ErrorPayload{Code: "bad_request", Message: err.Error(), InReply: inReply})
}

// replyError reports a rejected frame back to its sender only
func (h *Handler) replyError(c *client, inReply string, err error) {
	re, ok := services.AsRuleError(err)
	if !ok {
		log.Error().Err(err).Str("type", inReply).Str("user_id", c.actor.UserID.String()).Msg("Push frame failed")
		h.reply(c, protocol.TypeError, protocol.ErrorPayload{Code: "internal", Message: "internal error", InReply: inReply})
		return
	}
	h.reply(c, protocol.TypeError, protocol.ErrorPayload{
		Code:    string(re.Kind),
		Rule:    re.Rule,
		Message: re.Message,
		InReply: inReply,
	})
}

func (h *Handler) reply(c *client, frameType string, data interface{}) {
	frame, err := protocol.New(frameType, data)
	if err != nil {
		log.Error().Err(err).Str("type", frameType).Msg("Failed to build reply")
		return
	}
	msg, err := frame.Encode()
	if err != nil {
		return
	}
	if err := c.Send(msg); err != nil {
		metrics.FrameDropped(frameType, "reply")
	}
}
