package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AmbulanceStatus represents the operational state of an ambulance
type AmbulanceStatus string

const (
	AmbulanceAvailable  AmbulanceStatus = "available"
	AmbulanceDispatched AmbulanceStatus = "dispatched"
	AmbulanceBusy       AmbulanceStatus = "busy"
	AmbulanceOffline    AmbulanceStatus = "offline"
)

// Valid reports whether s is a known ambulance status
func (s AmbulanceStatus) Valid() bool {
	switch s {
	case AmbulanceAvailable, AmbulanceDispatched, AmbulanceBusy, AmbulanceOffline:
		return true
	}
	return false
}

// Ambulance represents a vehicle driven by an operator account
type Ambulance struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OperatorID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"operator_id"`
	HospitalID    *uuid.UUID      `gorm:"type:uuid;index" json:"hospital_id,omitempty"`
	VehicleNumber string          `gorm:"type:varchar(50);not null" json:"vehicle_number"`
	Latitude      *float64        `json:"latitude,omitempty"`
	Longitude     *float64        `json:"longitude,omitempty"`
	Status        AmbulanceStatus `gorm:"type:varchar(20);not null;default:'offline';index" json:"status"`
	IsActive      bool            `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName overrides the table name
func (Ambulance) TableName() string {
	return "ambulances"
}

// BeforeCreate hook
func (a *Ambulance) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Position returns the last known coordinates, if any
func (a *Ambulance) Position() (Coordinates, bool) {
	if a.Latitude == nil || a.Longitude == nil {
		return Coordinates{}, false
	}
	return Coordinates{Latitude: *a.Latitude, Longitude: *a.Longitude}, true
}
