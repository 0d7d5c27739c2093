package realtime

import (
	"errors"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/metrics"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"github.com/otcheredev/emergency-dispatch/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// Dispatcher fans frames out to registered channels. Delivery is best
// effort: failures are logged and counted, never returned.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a dispatcher over the registry
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// BroadcastToRole sends frame to every connected client of role and returns
// how many accepted it.
func (d *Dispatcher) BroadcastToRole(role models.Role, frame protocol.Frame) int {
	data, ok := encode(frame)
	if !ok {
		return 0
	}
	delivered := 0
	for _, ch := range d.registry.FindAllByRole(role) {
		if deliver(ch, frame.Type, data) {
			delivered++
		}
	}
	return delivered
}

// SendToIdentity sends frame to one identity. An absent recipient is a
// silent drop.
func (d *Dispatcher) SendToIdentity(role models.Role, userID uuid.UUID, frame protocol.Frame) bool {
	ch, found := d.registry.FindByIdentity(role, userID)
	if !found {
		metrics.FrameDropped(frame.Type, "offline")
		return false
	}
	data, ok := encode(frame)
	if !ok {
		return false
	}
	return deliver(ch, frame.Type, data)
}

func encode(frame protocol.Frame) ([]byte, bool) {
	data, err := frame.Encode()
	if err != nil {
		log.Error().Err(err).Str("type", frame.Type).Msg("Failed to encode frame")
		metrics.FrameDropped(frame.Type, "encode")
		return nil, false
	}
	return data, true
}

func deliver(ch Channel, frameType string, data []byte) bool {
	if err := ch.Send(data); err != nil {
		reason := "send"
		switch {
		case errors.Is(err, ErrBufferFull):
			reason = "buffer_full"
		case errors.Is(err, ErrChannelClosed):
			reason = "closed"
		}
		log.Debug().Err(err).Str("type", frameType).Msg("Frame dropped")
		metrics.FrameDropped(frameType, reason)
		return false
	}
	metrics.FrameDelivered(frameType)
	return true
}
