package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Priority is the triage priority chosen by the patient
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// EmergencyStatus is a state of the emergency request lifecycle
type EmergencyStatus string

const (
	StatusPending      EmergencyStatus = "pending"
	StatusAccepted     EmergencyStatus = "accepted"
	StatusDispatched   EmergencyStatus = "dispatched"
	StatusEnRoute      EmergencyStatus = "en_route"
	StatusAtScene      EmergencyStatus = "at_scene"
	StatusTransporting EmergencyStatus = "transporting"
	StatusCompleted    EmergencyStatus = "completed"
	StatusCancelled    EmergencyStatus = "cancelled"
)

// Terminal reports whether no further transition is possible
func (s EmergencyStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is a known status
func (s EmergencyStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDispatched, StatusEnRoute,
		StatusAtScene, StatusTransporting, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// EmergencyRequest is a patient's call for an ambulance
type EmergencyRequest struct {
	ID                      uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	PatientID               uuid.UUID       `gorm:"type:uuid;not null;index" json:"patient_id"`
	AmbulanceID             *uuid.UUID      `gorm:"type:uuid;index" json:"ambulance_id,omitempty"`
	HospitalID              *uuid.UUID      `gorm:"type:uuid;index" json:"hospital_id,omitempty"`
	Latitude                float64         `gorm:"not null" json:"latitude"`
	Longitude               float64         `gorm:"not null" json:"longitude"`
	Address                 string          `gorm:"type:text" json:"address"`
	Condition               string          `gorm:"type:text" json:"condition"`
	Notes                   string          `gorm:"type:text" json:"notes,omitempty"`
	Priority                Priority        `gorm:"type:varchar(20);not null;index" json:"priority"`
	Status                  EmergencyStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	AssignedBedNumber       *string         `gorm:"type:varchar(50)" json:"assigned_bed_number,omitempty"`
	EstimatedArrivalMinutes *int            `json:"estimated_arrival_minutes,omitempty"`
	CancelReason            string          `gorm:"type:text" json:"cancel_reason,omitempty"`
	CreatedAt               time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
	DeletedAt               gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (EmergencyRequest) TableName() string {
	return "emergency_requests"
}

// BeforeCreate hook
func (e *EmergencyRequest) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Location returns the pickup coordinates
func (e *EmergencyRequest) Location() Coordinates {
	return Coordinates{Latitude: e.Latitude, Longitude: e.Longitude}
}

// CreateEmergencyRequest is the payload a patient submits
type CreateEmergencyRequest struct {
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	Address    string     `json:"address"`
	Condition  string     `json:"condition"`
	Notes      string     `json:"notes,omitempty"`
	Priority   Priority   `json:"priority"`
	HospitalID *uuid.UUID `json:"hospital_id,omitempty"`
}

// UpdateEmergencyRequest edits the descriptive fields of a request
type UpdateEmergencyRequest struct {
	Address   *string   `json:"address,omitempty"`
	Condition *string   `json:"condition,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	Priority  *Priority `json:"priority,omitempty"`
}

// StatusChangeRequest moves a request along its lifecycle
type StatusChangeRequest struct {
	Status     EmergencyStatus `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	HospitalID *uuid.UUID      `json:"hospital_id,omitempty"`
	AssignBed  bool            `json:"assign_bed,omitempty"`
	BedType    BedType         `json:"bed_type,omitempty"`
}

// ETARequest records an ambulance's estimated arrival
type ETARequest struct {
	Minutes int `json:"minutes"`
}
