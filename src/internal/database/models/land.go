package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LandStatus is the verification status of a land record
type LandStatus string

const (
	LandStatusPending  LandStatus = "pending"
	LandStatusVerified LandStatus = "verified"
	LandStatusRejected LandStatus = "rejected"
)

// PropertyType classifies a land record
type PropertyType string

const (
	PropertyTypeResidential  PropertyType = "residential"
	PropertyTypeCommercial   PropertyType = "commercial"
	PropertyTypeAgricultural PropertyType = "agricultural"
)

// Valid reports whether p is a known property type
func (p PropertyType) Valid() bool {
	switch p {
	case PropertyTypeResidential, PropertyTypeCommercial, PropertyTypeAgricultural:
		return true
	}
	return false
}

// Land represents a registered real-property record
type Land struct {
	ID           uuid.UUID           `gorm:"type:char(36);primary_key" json:"id"`
	PropertyID   string              `gorm:"uniqueIndex;size:64;not null" json:"property_id"`
	Title        string              `gorm:"size:200;not null" json:"title"`
	Description  string              `gorm:"type:text" json:"description"`
	Location     string              `gorm:"size:500;not null" json:"location"`
	Latitude     *float64            `json:"latitude"`
	Longitude    *float64            `json:"longitude"`
	Area         float64             `gorm:"not null" json:"area"`
	PropertyType PropertyType        `gorm:"size:20;index;not null" json:"property_type"`
	Price        decimal.NullDecimal `gorm:"type:decimal(20,2)" json:"price"`
	Status       LandStatus          `gorm:"size:20;index;not null;default:'pending'" json:"status"`
	OwnerID      uuid.UUID           `gorm:"type:char(36);index;not null" json:"owner_id"`

	ReviewedBy     *uuid.UUID `gorm:"type:char(36)" json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	ReviewComments string     `gorm:"size:1000" json:"review_comments,omitempty"`

	IsRegisteredOnBlockchain bool      `gorm:"default:false;index" json:"is_registered_on_blockchain"`
	TokenID                  *string   `gorm:"size:78" json:"token_id"`
	BlockchainTxHash         *string   `gorm:"size:66" json:"blockchain_tx_hash"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`

	// Relations
	Owner *User `gorm:"foreignKey:OwnerID" json:"-"`

	// Computed fields (not stored in DB)
	OwnerName     string `gorm:"-" json:"owner_name,omitempty"`
	OwnerUsername string `gorm:"-" json:"owner_username,omitempty"`
}

// BeforeCreate hooks
func (l *Land) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = LandStatusPending
	}
	return nil
}

// AfterFind fills the computed owner fields when the owner was preloaded
func (l *Land) AfterFind(tx *gorm.DB) error {
	if l.Owner != nil {
		l.OwnerName = l.Owner.FullName()
		l.OwnerUsername = l.Owner.Username
	}
	return nil
}
