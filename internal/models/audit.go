package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog records one accepted lifecycle transition of an emergency request
type AuditLog struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	EmergencyRequestID uuid.UUID       `gorm:"type:uuid;not null;index" json:"emergency_request_id"`
	ActorID            uuid.UUID       `gorm:"type:uuid;index" json:"actor_id"`
	ActorRole          Role            `gorm:"type:varchar(20)" json:"actor_role"`
	Action             string          `gorm:"type:varchar(100);not null;index" json:"action"`
	FromStatus         EmergencyStatus `gorm:"type:varchar(20)" json:"from_status,omitempty"`
	ToStatus           EmergencyStatus `gorm:"type:varchar(20);index" json:"to_status"`
	Detail             string          `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt          time.Time       `gorm:"index" json:"timestamp"`
}

// TableName overrides the table name
func (AuditLog) TableName() string {
	return "audit_logs"
}

// BeforeCreate hook
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
