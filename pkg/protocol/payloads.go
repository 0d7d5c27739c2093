package protocol

// LocationUpdate is sent by an ambulance operator client
type LocationUpdate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ChatMessage is sent by any party on an emergency request
type ChatMessage struct {
	EmergencyRequestID string `json:"emergencyRequestId"`
	ReceiverID         string `json:"receiverId"`
	ReceiverRole       string `json:"receiverRole"`
	Message            string `json:"message"`
}

// ErrorPayload reports a rejected inbound message to its sender only
type ErrorPayload struct {
	Code    string `json:"code"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
	InReply string `json:"inReplyTo,omitempty"`
}
