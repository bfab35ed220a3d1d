package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog records one state-changing request against the registry
type AuditLog struct {
	ID           uuid.UUID  `gorm:"type:char(36);primary_key" json:"id"`
	UserID       *uuid.UUID `gorm:"type:char(36);index" json:"user_id,omitempty"`
	Action       string     `gorm:"size:100;not null;index" json:"action"`
	ResourceType string     `gorm:"size:50;index" json:"resource_type"`
	ResourceID   string     `gorm:"size:64;index" json:"resource_id"`
	IPAddress    string     `gorm:"size:45" json:"ip_address"`
	UserAgent    string     `gorm:"size:500" json:"user_agent"`
	Success      bool       `gorm:"not null" json:"success"`
	ErrorMessage string     `gorm:"size:500" json:"error_message,omitempty"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"-"`

	Username string `gorm:"-" json:"username,omitempty"`
}

// BeforeCreate hook to set UUID
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// AfterFind fills the display fields from the preloaded user
func (a *AuditLog) AfterFind(tx *gorm.DB) error {
	if a.User != nil {
		a.Username = a.User.Username
	}
	return nil
}
