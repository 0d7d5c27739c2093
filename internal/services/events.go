package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/otcheredev/emergency-dispatch/internal/models"
)

// StatusUpdate is the payload of emergency_status_update
type StatusUpdate struct {
	EmergencyRequestID      uuid.UUID                `json:"emergencyRequestId"`
	Status                  models.EmergencyStatus   `json:"status"`
	PreviousStatus          models.EmergencyStatus   `json:"previousStatus,omitempty"`
	Action                  string                   `json:"action"`
	EstimatedArrivalMinutes *int                     `json:"estimatedArrivalMinutes,omitempty"`
	AssignedBedNumber       *string                  `json:"assignedBedNumber,omitempty"`
	Request                 *models.EmergencyRequest `json:"request"`
}

// LocationUpdate is the payload of ambulance_location_update
type LocationUpdate struct {
	AmbulanceID        uuid.UUID `json:"ambulanceId"`
	EmergencyRequestID uuid.UUID `json:"emergencyRequestId"`
	Lat                float64   `json:"lat"`
	Lng                float64   `json:"lng"`
	At                 time.Time `json:"at"`
}

// HospitalUpdate is the payload of hospital_status_update
type HospitalUpdate struct {
	HospitalID       uuid.UUID             `json:"hospitalId"`
	Name             string                `json:"name"`
	EmergencyStatus  models.HospitalStatus `json:"emergencyStatus"`
	TotalBeds        int                   `json:"totalBeds"`
	AvailableBeds    int                   `json:"availableBeds"`
	ICUBeds          int                   `json:"icuBeds"`
	AvailableICUBeds int                   `json:"availableIcuBeds"`
}

// MessageAck is the locally built acknowledgment sent back to a chat sender.
// It confirms persistence only, not delivery.
type MessageAck struct {
	MessageID          uuid.UUID `json:"messageId"`
	EmergencyRequestID uuid.UUID `json:"emergencyRequestId"`
	CreatedAt          time.Time `json:"createdAt"`
}

func hospitalUpdate(h *models.Hospital) HospitalUpdate {
	return HospitalUpdate{
		HospitalID:       h.ID,
		Name:             h.Name,
		EmergencyStatus:  h.EmergencyStatus,
		TotalBeds:        h.TotalBeds,
		AvailableBeds:    h.AvailableBeds,
		ICUBeds:          h.ICUBeds,
		AvailableICUBeds: h.AvailableICUBeds,
	}
}
