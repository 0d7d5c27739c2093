// Package protocol defines the JSON frames exchanged over the push channel.
//
// Every frame is an object {"type": string, "data": object}. Inbound frames
// may also carry their fields flat beside the type, {"type": string, ...};
// Decode folds those into Data. Anything else becomes a frame of type
// TypeUnparseable carrying the raw bytes, and is never interpreted further.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Server-emitted event types
const (
	TypeNewEmergencyRequest     = "new_emergency_request"
	TypeEmergencyStatusUpdate   = "emergency_status_update"
	TypeAmbulanceLocationUpdate = "ambulance_location_update"
	TypeHospitalStatusUpdate    = "hospital_status_update"
	TypeNewMessage              = "new_message"
	TypeMessageSent             = "message_sent"
	TypeError                   = "error"
)

// Client-originated message types
const (
	TypeLocationUpdate = "location_update"
	TypeChatMessage    = "chat_message"
	TypePing           = "ping"
	TypePong           = "pong"
)

// TypeUnparseable tags inbound bytes that were not a valid frame
const TypeUnparseable = "unparseable"

// CloseUnauthorized is the websocket close code sent when the connection
// credential is missing or invalid.
const CloseUnauthorized = 4001

// ErrEmptyType is returned when a frame has no type
var ErrEmptyType = errors.New("frame type is required")

// Frame is one message on the push channel
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`

	// Raw holds the original bytes of an unparseable frame
	Raw []byte `json:"-"`
}

// New builds a frame with data marshalled to JSON
func New(frameType string, data interface{}) (Frame, error) {
	if frameType == "" {
		return Frame{}, ErrEmptyType
	}
	if data == nil {
		return Frame{Type: frameType}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to marshal %s payload: %w", frameType, err)
	}
	return Frame{Type: frameType, Data: raw}, nil
}

// MustNew is New for payloads that cannot fail to marshal
func MustNew(frameType string, data interface{}) Frame {
	f, err := New(frameType, data)
	if err != nil {
		panic(err)
	}
	return f
}

// Encode renders the frame as a JSON text message
func (f Frame) Encode() ([]byte, error) {
	if f.Type == "" {
		return nil, ErrEmptyType
	}
	return json.Marshal(f)
}

// Decode parses a text message. It never fails: malformed input yields an
// unparseable frame. Without a "data" key, the remaining top-level fields
// become the frame data.
func Decode(msg []byte) Frame {
	trimmed := bytes.TrimSpace(msg)

	var fields map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(&fields); err != nil || fields == nil || dec.More() {
		return unparseable(msg)
	}

	var f Frame
	if err := json.Unmarshal(fields["type"], &f.Type); err != nil || f.Type == "" {
		return unparseable(msg)
	}
	delete(fields, "type")

	if data, ok := fields["data"]; ok {
		if !bytes.Equal(data, []byte("null")) && (len(data) == 0 || data[0] != '{') {
			return unparseable(msg)
		}
		f.Data = data
		return f
	}
	if len(fields) > 0 {
		raw, err := json.Marshal(fields)
		if err != nil {
			return unparseable(msg)
		}
		f.Data = raw
	}
	return f
}

// Bind unmarshals the frame data into v
func (f Frame) Bind(v interface{}) error {
	if f.Type == TypeUnparseable {
		return fmt.Errorf("cannot bind unparseable frame")
	}
	if len(f.Data) == 0 {
		return fmt.Errorf("%s frame has no data", f.Type)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", f.Type, err)
	}
	return nil
}

func unparseable(msg []byte) Frame {
	raw := make([]byte, len(msg))
	copy(raw, msg)
	return Frame{Type: TypeUnparseable, Raw: raw}
}
