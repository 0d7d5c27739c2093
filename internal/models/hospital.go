package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HospitalStatus is the emergency intake status a hospital advertises
type HospitalStatus string

const (
	HospitalAvailable HospitalStatus = "available"
	HospitalBusy      HospitalStatus = "busy"
	HospitalFull      HospitalStatus = "full"
)

// Valid reports whether s is a known hospital status
func (s HospitalStatus) Valid() bool {
	switch s {
	case HospitalAvailable, HospitalBusy, HospitalFull:
		return true
	}
	return false
}

// Hospital represents a receiving hospital. Bed counters are derived from
// bed_status_logs and are never written directly by callers.
type Hospital struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OwnerID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_id"`
	Name             string         `gorm:"type:varchar(255);not null" json:"name"`
	Address          string         `gorm:"type:text" json:"address"`
	Phone            string         `gorm:"type:varchar(50)" json:"phone,omitempty"`
	Latitude         float64        `gorm:"not null;index:idx_hospital_coords" json:"latitude"`
	Longitude        float64        `gorm:"not null;index:idx_hospital_coords" json:"longitude"`
	TotalBeds        int            `gorm:"not null;default:0" json:"total_beds"`
	AvailableBeds    int            `gorm:"not null;default:0" json:"available_beds"`
	ICUBeds          int            `gorm:"column:icu_beds;not null;default:0" json:"icu_beds"`
	AvailableICUBeds int            `gorm:"column:available_icu_beds;not null;default:0" json:"available_icu_beds"`
	EmergencyStatus  HospitalStatus `gorm:"type:varchar(20);not null;default:'available'" json:"emergency_status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TableName overrides the table name
func (Hospital) TableName() string {
	return "hospitals"
}

// BeforeCreate hook
func (h *Hospital) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// BedCounts is the aggregate view over a hospital's bed slots
type BedCounts struct {
	TotalBeds        int `json:"total_beds"`
	AvailableBeds    int `json:"available_beds"`
	ICUBeds          int `json:"icu_beds"`
	AvailableICUBeds int `json:"available_icu_beds"`
}

// DerivedStatus maps bed availability onto an intake status. Nothing free at
// all is full. Under a fifth of general beds free, or an ICU with no free
// bed, is busy.
func (c BedCounts) DerivedStatus() HospitalStatus {
	switch {
	case c.AvailableBeds == 0 && c.AvailableICUBeds == 0:
		return HospitalFull
	case c.AvailableBeds*5 < c.TotalBeds:
		return HospitalBusy
	case c.ICUBeds > 0 && c.AvailableICUBeds == 0:
		return HospitalBusy
	default:
		return HospitalAvailable
	}
}
