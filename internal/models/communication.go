package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Communication is a chat message exchanged on an emergency request
type Communication struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	EmergencyRequestID uuid.UUID `gorm:"type:uuid;not null;index" json:"emergency_request_id"`
	SenderID           uuid.UUID `gorm:"type:uuid;not null;index" json:"sender_id"`
	SenderRole         Role      `gorm:"type:varchar(20);not null" json:"sender_role"`
	ReceiverID         uuid.UUID `gorm:"type:uuid;not null;index" json:"receiver_id"`
	ReceiverRole       Role      `gorm:"type:varchar(20);not null" json:"receiver_role"`
	Message            string    `gorm:"type:text;not null" json:"message"`
	IsRead             bool      `gorm:"default:false" json:"is_read"`
	CreatedAt          time.Time `gorm:"index" json:"created_at"`
}

// TableName overrides the table name
func (Communication) TableName() string {
	return "communications"
}

// BeforeCreate hook
func (c *Communication) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// SendMessageRequest is a chat message submitted by a party on a request
type SendMessageRequest struct {
	EmergencyRequestID uuid.UUID `json:"emergencyRequestId"`
	ReceiverID         uuid.UUID `json:"receiverId"`
	ReceiverRole       Role      `json:"receiverRole"`
	Message            string    `json:"message"`
}
