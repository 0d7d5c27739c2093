package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role identifies which kind of party a user acts as
type Role string

const (
	RolePatient   Role = "patient"
	RoleAmbulance Role = "ambulance"
	RoleHospital  Role = "hospital"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleAmbulance, RoleHospital, RoleAdmin:
		return true
	}
	return false
}

// User represents an account of any role
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Phone     string    `gorm:"type:varchar(50)" json:"phone,omitempty"`
	Role      Role      `gorm:"type:varchar(20);not null;index" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (User) TableName() string {
	return "users"
}

// BeforeCreate hook
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Actor is the authenticated identity behind an operation
type Actor struct {
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}
