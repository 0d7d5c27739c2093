package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BedType distinguishes general ward beds from ICU beds
type BedType string

const (
	BedGeneral BedType = "general"
	BedICU     BedType = "icu"
)

// Valid reports whether t is a known bed type
func (t BedType) Valid() bool {
	return t == BedGeneral || t == BedICU
}

// BedState is the occupancy of one bed slot
type BedState string

const (
	BedAvailable BedState = "available"
	BedOccupied  BedState = "occupied"
)

// BedStatusLog is one physical bed slot. Hospital bed counters are derived
// from these rows; occupancy changes flip a row in place.
type BedStatusLog struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	HospitalID         uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_hospital_bed" json:"hospital_id"`
	BedNumber          string     `gorm:"type:varchar(50);not null;uniqueIndex:idx_hospital_bed" json:"bed_number"`
	BedType            BedType    `gorm:"type:varchar(20);not null;default:'general'" json:"bed_type"`
	Status             BedState   `gorm:"type:varchar(20);not null;default:'available';index" json:"status"`
	OccupantName       string     `gorm:"type:varchar(255)" json:"occupant_name,omitempty"`
	EmergencyRequestID *uuid.UUID `gorm:"type:uuid;index" json:"emergency_request_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName overrides the table name
func (BedStatusLog) TableName() string {
	return "bed_status_logs"
}

// BeforeCreate hook
func (b *BedStatusLog) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// SeedBedsRequest adds physical bed slots to a hospital
type SeedBedsRequest struct {
	BedType BedType `json:"bed_type"`
	Prefix  string  `json:"prefix"`
	Count   int     `json:"count"`
}

// AdmitRequest occupies a bed for a walk-in admission
type AdmitRequest struct {
	BedType      BedType `json:"bed_type"`
	OccupantName string  `json:"occupant_name"`
}
